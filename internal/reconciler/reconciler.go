package reconciler

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/dispatcher"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/observability"
)

type Store interface {
	DueForDelivery(ctx context.Context, now time.Time) iter.Seq2[*domain.Message, error]
	MarkDelivered(ctx context.Context, id string) (bool, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, msg *domain.Message, event domain.EventName) dispatcher.Outcome
}

// SweepResult summarises one pass over the due messages.
type SweepResult struct {
	Due       int // messages yielded by the store
	Delivered int // transitions won by this sweep
	Pushed    int // of those, pushes that reached a live channel
	LostRace  int // already delivered by a concurrent sweep
	Failed    int // mark errors and panics
	Err       error
}

// Reconciler periodically moves due deferred messages to delivered and
// pushes each one it transitioned. Marking precedes the push, so a crash
// between the two loses the push rather than duplicating it.
type Reconciler struct {
	store     Store
	deliverer Deliverer
	schedule  Schedule
	log       *zap.Logger

	// Clock supplies the sweep instant. Defaults to UTC now.
	Clock func() time.Time
}

func New(store Store, deliverer Deliverer, schedule Schedule, log *zap.Logger) *Reconciler {
	if schedule == nil {
		schedule = Every(DefaultInterval)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		store:     store,
		deliverer: deliverer,
		schedule:  schedule,
		log:       log,
		Clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on every schedule tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("reconciler started")
	for {
		now := r.Clock()
		wait := r.schedule.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.log.Info("reconciler stopped")
			return
		case <-timer.C:
		}

		r.Sweep(ctx, r.Clock())
	}
}

// Sweep handles every message due at now, earliest first. A failed or
// panicking message is logged and skipped; a failed due query ends the
// sweep early.
func (r *Reconciler) Sweep(ctx context.Context, now time.Time) (res SweepResult) {
	ctx, span := observability.Tracer().Start(ctx, "reconciler.Sweep")
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("sweep panicked: %v", p)
			r.log.Error("reconciler: sweep panicked", zap.Any("panic", p))
		}

		if res.Err != nil {
			observability.SweepFailuresTotal.Inc()
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.SetAttributes(
			attribute.Int("sweep.due", res.Due),
			attribute.Int("sweep.delivered", res.Delivered),
			attribute.Int("sweep.failed", res.Failed),
		)
		span.End()
		observability.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	log := r.log
	if sc := span.SpanContext(); sc.IsValid() {
		log = log.With(zap.String("trace_id", sc.TraceID().String()))
	}

	for msg, err := range r.store.DueForDelivery(ctx, now) {
		if err != nil {
			res.Err = err
			log.Error("reconciler: due query failed", zap.Error(err))
			return res
		}
		res.Due++
		r.process(ctx, msg, &res, log)
	}

	if res.Due > 0 {
		log.Info("reconciler: sweep complete",
			zap.Int("due", res.Due),
			zap.Int("delivered", res.Delivered),
			zap.Int("pushed", res.Pushed),
			zap.Int("lost_race", res.LostRace),
			zap.Int("failed", res.Failed),
		)
	}
	return res
}

// process marks one due message and pushes it if this sweep won the
// transition. A panic is contained to the message that caused it.
func (r *Reconciler) process(ctx context.Context, msg *domain.Message, res *SweepResult, log *zap.Logger) {
	defer func() {
		if p := recover(); p != nil {
			res.Failed++
			observability.SweepMessagesTotal.WithLabelValues("error").Inc()
			log.Error("reconciler: message panicked",
				zap.String("message_id", msg.ID),
				zap.Any("panic", p),
			)
		}
	}()

	changed, err := r.store.MarkDelivered(ctx, msg.ID)
	if err != nil {
		res.Failed++
		observability.SweepMessagesTotal.WithLabelValues("error").Inc()
		log.Error("reconciler: failed to mark delivered",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}

	if !changed {
		res.LostRace++
		observability.SweepMessagesTotal.WithLabelValues("lost_race").Inc()
		return
	}

	res.Delivered++
	observability.SweepMessagesTotal.WithLabelValues("delivered").Inc()

	msg.State = domain.StateDelivered
	if r.deliverer.Deliver(ctx, msg, domain.EventScheduledMessage) == dispatcher.Delivered {
		res.Pushed++
	}
}
