package presence

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMirror(t *testing.T) (*RedisMirror, *redis.Client) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	return NewRedisMirror(client, "test-instance"), client
}

func TestRedisMirror_OnlineOffline(t *testing.T) {
	m, client := newTestMirror(t)
	ctx := context.Background()
	user := uuid.NewString()

	sub := client.Subscribe(ctx, PresenceUpdate)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Online(ctx, user, "c1"))
	online, err := m.IsOnline(ctx, user)
	require.NoError(t, err)
	assert.True(t, online)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var ev UpdateEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, user, ev.UserID)
	assert.Equal(t, StatusOnline, ev.Status)

	ttl, err := client.TTL(ctx, userKey(user)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, m.Online(ctx, user, "c2"))
	require.NoError(t, m.Offline(ctx, user, "c1"))
	online, err = m.IsOnline(ctx, user)
	require.NoError(t, err)
	assert.True(t, online, "stale offline must not clear a newer connection")

	require.NoError(t, m.Refresh(ctx, user, "c2"))
	require.NoError(t, m.Offline(ctx, user, "c2"))
	online, err = m.IsOnline(ctx, user)
	require.NoError(t, err)
	assert.False(t, online)
}
