package websocket

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/presence"
)

const HeartbeatInterval = 20 * time.Second

// StartHeartbeat keeps the mirrored presence entry alive until done closes.
func StartHeartbeat(mirror presence.Mirror, userID, channelID string, interval time.Duration, done <-chan struct{}, log *zap.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval/2)
				if err := mirror.Refresh(ctx, userID, channelID); err != nil {
					log.Warn("heartbeat: presence refresh failed", zap.String("user_id", userID), zap.Error(err))
				}
				cancel()
			case <-done:
				return
			}
		}
	}()
}
