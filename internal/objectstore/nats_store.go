package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsStore keeps blobs in a JetStream object store bucket.
type NatsStore struct {
	bucket string
	store  nats.ObjectStore
}

// NewNats creates the bucket if needed and binds to it.
func NewNats(js nats.JetStreamContext, bucket string) (*NatsStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Voice clips for the %s bucket.", bucket),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("create object store bucket %q: %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("bind object store bucket %q: %w", bucket, err)
		}
	}
	return &NatsStore{bucket: bucket, store: store}, nil
}

// Put overwrites the object stored under key.
func (n *NatsStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("%w: put %q to %q: %w", core.ErrStorageWrite, key, n.bucket, err)
	}
	return nil
}

func (n *NatsStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get %q from %q: %w", core.ErrStorageRead, key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, fmt.Errorf("%w: read %q: %w", core.ErrStorageRead, key, readErr)
	}
	if closeErr != nil {
		return data, fmt.Errorf("%w: close %q: %w", core.ErrStorageRead, key, closeErr)
	}
	return data, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (n *NatsStore) Delete(_ context.Context, key string) error {
	err := n.store.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("%w: delete %q from %q: %w", core.ErrStorageWrite, key, n.bucket, err)
	}
	return nil
}
