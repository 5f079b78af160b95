package objectstore_test

import (
	"context"
	"testing"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// startTestServer starts an in-process NATS server with JetStream enabled.
func startTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	nc, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("failed to connect to test NATS server: %v", err)
	}
	return natsServer, nc
}

func TestNatsStore_PutGetDelete(t *testing.T) {
	srv, nc := startTestServer(t)
	defer srv.Shutdown()
	defer nc.Close()

	js, err := nc.JetStream()
	require.NoError(t, err)

	store, err := objectstore.NewNats(js, "voice-clips")
	require.NoError(t, err)

	ctx := context.Background()
	key := "user-1/opening_wife.mp3"

	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, store.Put(ctx, key, []byte("first")))
	require.NoError(t, store.Put(ctx, key, []byte("second")))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestNatsStore_BindsExistingBucket(t *testing.T) {
	srv, nc := startTestServer(t)
	defer srv.Shutdown()
	defer nc.Close()

	js, err := nc.JetStream()
	require.NoError(t, err)

	first, err := objectstore.NewNats(js, "voice-clips")
	require.NoError(t, err)
	require.NoError(t, first.Put(context.Background(), "k", []byte("v")))

	second, err := objectstore.NewNats(js, "voice-clips")
	require.NoError(t, err)
	got, err := second.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestMemoryStore(t *testing.T) {
	m := objectstore.NewMemory()
	ctx := context.Background()

	data := []byte("abc")
	require.NoError(t, m.Put(ctx, "k", data))
	data[0] = 'z'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)

	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	require.ErrorIs(t, err, core.ErrNotFound)
}
