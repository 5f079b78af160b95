package wizard

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestRedis(t *testing.T) *RedisSessions {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb, err := DialRedis(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisSessions(rdb, time.Minute)
}

func TestRedisSessionsRoundTrip(t *testing.T) {
	r := getTestRedis(t)
	ctx := context.Background()
	id := "test-" + t.Name()
	t.Cleanup(func() { _ = r.Delete(context.Background(), id) })

	s := &Session{
		ID:     id,
		UserID: "u1",
		Role:   core.RoleWife,
		Step:   5,
		Tokens: map[core.Role]string{core.RoleWife: "ABC234"},
	}
	require.NoError(t, r.Put(ctx, s))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Step)
	assert.Equal(t, "ABC234", got.Tokens[core.RoleWife])

	require.NoError(t, r.Delete(ctx, id))
	_, err = r.Get(ctx, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
