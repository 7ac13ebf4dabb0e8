package dispatcher

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/presence"
)

type Outcome int

const (
	Skipped Outcome = iota
	Delivered
)

func (o Outcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "skipped"
}

// Locator finds the live channel of a user.
type Locator interface {
	Lookup(userID string) (presence.Channel, bool)
}

// Frame is the push envelope written to a recipient's channel.
type Frame struct {
	Event   domain.EventName `json:"event"`
	Payload any              `json:"payload"`
}

// Dispatcher performs a single push attempt per call. It never retries and
// never returns an error: an unreachable recipient is an outcome.
type Dispatcher struct {
	locator Locator
	log     *zap.Logger
}

func New(locator Locator, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		locator: locator,
		log:     log,
	}
}

// Deliver pushes msg to its recipient under the given event name.
func (d *Dispatcher) Deliver(ctx context.Context, msg *domain.Message, event domain.EventName) Outcome {
	outcome := d.push(ctx, msg.RecipientID, msg.ID, Frame{Event: event, Payload: msg})
	observability.DeliveriesTotal.WithLabelValues(string(event), outcome.String()).Inc()
	return outcome
}

// NotifyDeleted tells the connected recipient that a message is gone.
func (d *Dispatcher) NotifyDeleted(ctx context.Context, msg *domain.Message) Outcome {
	payload := struct {
		ID string `json:"id"`
	}{ID: msg.ID}

	outcome := d.push(ctx, msg.RecipientID, msg.ID, Frame{Event: domain.EventMessageDeleted, Payload: payload})
	observability.DeliveriesTotal.WithLabelValues(string(domain.EventMessageDeleted), outcome.String()).Inc()
	return outcome
}

func (d *Dispatcher) push(ctx context.Context, recipientID, messageID string, frame Frame) Outcome {
	log := d.log.With(
		zap.String("recipient_id", recipientID),
		zap.String("message_id", messageID),
		zap.String("event", string(frame.Event)),
	)

	ch, ok := d.locator.Lookup(recipientID)
	if !ok {
		log.Debug("dispatcher: recipient not connected")
		return Skipped
	}

	raw, err := json.Marshal(frame)
	if err != nil {
		log.Error("dispatcher: failed to encode frame", zap.Error(err))
		return Skipped
	}

	if err := ch.Push(raw); err != nil {
		observability.PushFailuresTotal.Inc()
		log.Warn("dispatcher: push failed",
			zap.String("channel_id", ch.ID()),
			zap.Error(err),
		)
		return Skipped
	}

	log.Debug("dispatcher: delivered", zap.String("channel_id", ch.ID()))
	return Delivered
}
