package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/dispatcher"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/presence"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/repository/memory"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/store"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/tx"
)

var tenAM = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type channel struct {
	id string

	mu     sync.Mutex
	frames []string
}

func (c *channel) ID() string { return c.id }

func (c *channel) Push(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, string(payload))
	return nil
}

func (c *channel) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

type fixture struct {
	store    *store.Store
	registry *presence.Registry
	rec      *Reconciler
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: tenAM, registry: presence.NewRegistry()}

	f.store = store.New(memory.New(), tx.Nop{}, nil)
	f.store.Clock = func() time.Time { return f.now }

	f.rec = New(f.store, dispatcher.New(f.registry, nil), Every(time.Minute), nil)
	f.rec.Clock = func() time.Time { return f.now }
	return f
}

func (f *fixture) schedule(t *testing.T, from, to, text string, at time.Time) *domain.Message {
	t.Helper()
	msg, err := f.store.Create(context.Background(), store.CreateParams{
		SenderID:      from,
		RecipientID:   to,
		Payload:       domain.Payload{Text: text},
		DeferredUntil: &at,
	})
	require.NoError(t, err)
	return msg
}

func TestSweep_DeliversToConnectedRecipient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bob := &channel{id: "bob-1"}
	f.registry.Register("bob", bob)

	msg := f.schedule(t, "alice", "bob", "happy birthday", tenAM.Add(5*time.Minute))

	res := f.rec.Sweep(ctx, tenAM.Add(4*time.Minute))
	assert.Zero(t, res.Due)
	assert.Empty(t, bob.Frames())

	f.now = tenAM.Add(5 * time.Minute)
	res = f.rec.Sweep(ctx, f.now)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Pushed)

	frames := bob.Frames()
	require.Len(t, frames, 1)
	var frame struct {
		Event   string          `json:"event"`
		Payload *domain.Message `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[0]), &frame))
	assert.Equal(t, "scheduledMessage", frame.Event)
	assert.Equal(t, msg.ID, frame.Payload.ID)

	conv, err := f.store.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, conv, 1)
	assert.Equal(t, domain.StateDelivered, conv[0].State)

	res = f.rec.Sweep(ctx, f.now.Add(time.Minute))
	assert.Zero(t, res.Due, "delivered messages are never swept again")
	assert.Len(t, bob.Frames(), 1)
}

func TestSweep_RecipientConnectsAfterScheduling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	msg := f.schedule(t, "alice", "bob", "see you", tenAM.Add(2*time.Minute))

	f.now = tenAM.Add(time.Minute)
	bob := &channel{id: "bob-late"}
	f.registry.Register("bob", bob)
	assert.Zero(t, f.rec.Sweep(ctx, f.now).Due)

	f.now = tenAM.Add(2 * time.Minute)
	res := f.rec.Sweep(ctx, f.now)
	assert.Equal(t, 1, res.Pushed)

	frames := bob.Frames()
	require.Len(t, frames, 1)
	var frame struct {
		Event   string          `json:"event"`
		Payload *domain.Message `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[0]), &frame))
	assert.Equal(t, "scheduledMessage", frame.Event)
	assert.Equal(t, msg.ID, frame.Payload.ID)
	assert.Equal(t, "see you", frame.Payload.Text)
	assert.Equal(t, domain.StateDelivered, frame.Payload.State)

	f.rec.Sweep(ctx, f.now.Add(time.Minute))
	assert.Len(t, bob.Frames(), 1, "exactly one scheduledMessage push")
}

func TestSweep_OfflineRecipientStillTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.schedule(t, "alice", "bob", "later", tenAM.Add(time.Minute))

	f.now = tenAM.Add(time.Minute)
	res := f.rec.Sweep(ctx, f.now)
	assert.Equal(t, 1, res.Delivered)
	assert.Zero(t, res.Pushed)

	conv, err := f.store.Conversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, conv, 1)
	assert.Equal(t, domain.StateDelivered, conv[0].State)
	assert.True(t, conv[0].VisibleTo("bob", f.now))
}

func TestSweep_OverlappingSweepsPushOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bob := &channel{id: "bob-1"}
	f.registry.Register("bob", bob)

	for i := 0; i < 20; i++ {
		f.schedule(t, "alice", "bob", "m", tenAM.Add(time.Minute))
	}
	f.now = tenAM.Add(time.Minute)

	var delivered atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := f.rec.Sweep(ctx, f.now)
			delivered.Add(int32(res.Delivered))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 20, delivered.Load())
	assert.Len(t, bob.Frames(), 20)
}

func TestSweep_EarliestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bob := &channel{id: "bob-1"}
	f.registry.Register("bob", bob)

	late := f.schedule(t, "alice", "bob", "second", tenAM.Add(2*time.Minute))
	early := f.schedule(t, "carol", "bob", "first", tenAM.Add(time.Minute))

	f.now = tenAM.Add(3 * time.Minute)
	f.rec.Sweep(ctx, f.now)

	frames := bob.Frames()
	require.Len(t, frames, 2)
	assert.Contains(t, frames[0], early.ID)
	assert.Contains(t, frames[1], late.ID)
}

type scriptedStore struct {
	due       []*domain.Message
	queryErr  error
	markErr   map[string]error
	markPanic map[string]bool
	marked    []string
}

func (s *scriptedStore) DueForDelivery(ctx context.Context, now time.Time) iter.Seq2[*domain.Message, error] {
	return func(yield func(*domain.Message, error) bool) {
		for _, m := range s.due {
			if !yield(m, nil) {
				return
			}
		}
		if s.queryErr != nil {
			yield(nil, s.queryErr)
		}
	}
}

func (s *scriptedStore) MarkDelivered(ctx context.Context, id string) (bool, error) {
	if s.markPanic[id] {
		panic("corrupt row " + id)
	}
	if err := s.markErr[id]; err != nil {
		return false, err
	}
	s.marked = append(s.marked, id)
	return true, nil
}

type countingDeliverer struct {
	ids   []string
	panic bool
}

func (d *countingDeliverer) Deliver(ctx context.Context, msg *domain.Message, event domain.EventName) dispatcher.Outcome {
	if d.panic {
		panic("channel exploded")
	}
	d.ids = append(d.ids, msg.ID)
	return dispatcher.Delivered
}

func TestSweep_MarkErrorDoesNotStopSweep(t *testing.T) {
	st := &scriptedStore{
		due:     []*domain.Message{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}},
		markErr: map[string]error{"m2": errors.New("deadlock detected")},
	}
	d := &countingDeliverer{}

	res := New(st, d, nil, nil).Sweep(context.Background(), tenAM)

	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.Due)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"m1", "m3"}, d.ids)
}

func TestSweep_QueryErrorEndsSweep(t *testing.T) {
	st := &scriptedStore{
		due:      []*domain.Message{{ID: "m1"}},
		queryErr: errors.New("connection reset"),
	}

	res := New(st, &countingDeliverer{}, nil, nil).Sweep(context.Background(), tenAM)

	assert.Error(t, res.Err)
	assert.Equal(t, 1, res.Delivered)
}

func TestSweep_PanickingDeliveryIsContained(t *testing.T) {
	st := &scriptedStore{due: []*domain.Message{{ID: "m1"}}}

	var res SweepResult
	assert.NotPanics(t, func() {
		res = New(st, &countingDeliverer{panic: true}, nil, nil).Sweep(context.Background(), tenAM)
	})
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"m1"}, st.marked)
}

func TestSweep_PanickingRecordDoesNotStarveOthers(t *testing.T) {
	st := &scriptedStore{
		due:       []*domain.Message{{ID: "bad"}, {ID: "m2"}, {ID: "m3"}},
		markPanic: map[string]bool{"bad": true},
	}
	d := &countingDeliverer{}
	r := New(st, d, nil, nil)

	res := r.Sweep(context.Background(), tenAM)

	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.Due)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, []string{"m2", "m3"}, st.marked)
	assert.Equal(t, []string{"m2", "m3"}, d.ids)

	// The bad record keeps coming back first; it never blocks the rest.
	st.due = []*domain.Message{{ID: "bad"}, {ID: "m4"}}
	res = r.Sweep(context.Background(), tenAM.Add(time.Minute))
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"m2", "m3", "m4"}, d.ids)
}

type countingStore struct {
	sweeps atomic.Int32
}

func (s *countingStore) DueForDelivery(ctx context.Context, now time.Time) iter.Seq2[*domain.Message, error] {
	s.sweeps.Add(1)
	return func(yield func(*domain.Message, error) bool) {}
}

func (s *countingStore) MarkDelivered(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func TestRun_SweepsUntilCancelled(t *testing.T) {
	st := &countingStore{}
	r := New(st, &countingDeliverer{}, Every(5*time.Millisecond), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return st.sweeps.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
