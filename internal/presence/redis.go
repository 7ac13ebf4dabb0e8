package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	TTL            = 60 * time.Second
	PresenceUpdate = "presence:updates"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Mirror publishes local connection state to a shared store so other
// services can read it. Delivery never consults it.
type Mirror interface {
	Online(ctx context.Context, userID, channelID string) error
	Offline(ctx context.Context, userID, channelID string) error
	Refresh(ctx context.Context, userID, channelID string) error
}

type NopMirror struct{}

func (NopMirror) Online(context.Context, string, string) error  { return nil }
func (NopMirror) Offline(context.Context, string, string) error { return nil }
func (NopMirror) Refresh(context.Context, string, string) error { return nil }

// UpdateEvent is published on PresenceUpdate.
type UpdateEvent struct {
	UserID     string `json:"user_id"`
	InstanceID string `json:"instance_id"`
	Status     Status `json:"status"`
	OccurredAt int64  `json:"occurred_at"`
}

// Deletes the key only while it still belongs to the given channel.
var releaseScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "channel") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the TTL only while the key still belongs to the given channel.
var refreshScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "channel") == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisMirror struct {
	client     redis.UniversalClient
	instanceID string
	ttl        time.Duration
}

var _ Mirror = (*RedisMirror)(nil)

func NewRedisMirror(client redis.UniversalClient, instanceID string) *RedisMirror {
	return &RedisMirror{
		client:     client,
		instanceID: instanceID,
		ttl:        TTL,
	}
}

func userKey(userID string) string {
	return "presence:user:" + userID
}

func (m *RedisMirror) Online(ctx context.Context, userID, channelID string) error {
	pipe := m.client.TxPipeline()

	pipe.HSet(ctx, userKey(userID), map[string]any{
		"channel":  channelID,
		"instance": m.instanceID,
		"since":    time.Now().Unix(),
	})
	pipe.Expire(ctx, userKey(userID), m.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return m.publish(ctx, userID, StatusOnline)
}

func (m *RedisMirror) Offline(ctx context.Context, userID, channelID string) error {
	n, err := releaseScript.Run(ctx, m.client, []string{userKey(userID)}, channelID).Int()
	if err != nil {
		return err
	}

	// A newer connection owns the key.
	if n == 0 {
		return nil
	}

	return m.publish(ctx, userID, StatusOffline)
}

func (m *RedisMirror) Refresh(ctx context.Context, userID, channelID string) error {
	return refreshScript.Run(ctx, m.client, []string{userKey(userID)}, channelID, m.ttl.Milliseconds()).Err()
}

// IsOnline reports whether any instance holds a live connection for userID.
func (m *RedisMirror) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := m.client.Exists(ctx, userKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *RedisMirror) publish(ctx context.Context, userID string, status Status) error {
	payload, err := json.Marshal(UpdateEvent{
		UserID:     userID,
		InstanceID: m.instanceID,
		Status:     status,
		OccurredAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	return m.client.Publish(ctx, PresenceUpdate, payload).Err()
}
