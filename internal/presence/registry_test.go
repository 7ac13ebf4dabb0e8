package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id     string
	closed bool
}

func (c *fakeChannel) ID() string {
	return c.id
}

func (c *fakeChannel) Push(payload []byte) error {
	return nil
}

func (c *fakeChannel) Close() {
	c.closed = true
}

func TestRegistry_LastConnectionWins(t *testing.T) {
	r := NewRegistry()
	c1 := &fakeChannel{id: "c1"}
	c2 := &fakeChannel{id: "c2"}

	assert.Nil(t, r.Register("bob", c1))

	replaced := r.Register("bob", c2)
	require.NotNil(t, replaced)
	assert.Equal(t, "c1", replaced.ID())

	ch, ok := r.Lookup("bob")
	require.True(t, ok)
	assert.Equal(t, "c2", ch.ID())
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_OnlineUsers(t *testing.T) {
	r := NewRegistry()
	r.Register("carol", &fakeChannel{id: "c3"})
	r.Register("alice", &fakeChannel{id: "c1"})

	assert.Equal(t, []string{"alice", "carol"}, r.OnlineUsers())
}

func TestRegistry_StaleUnregisterIsNoop(t *testing.T) {
	r := NewRegistry()
	c1 := &fakeChannel{id: "c1"}
	c2 := &fakeChannel{id: "c2"}

	r.Register("bob", c1)
	r.Register("bob", c2)

	assert.False(t, r.Unregister("bob", c1), "late disconnect of a replaced channel")

	ch, ok := r.Lookup("bob")
	require.True(t, ok)
	assert.Equal(t, "c2", ch.ID())

	assert.True(t, r.Unregister("bob", c2))
	_, ok = r.Lookup("bob")
	assert.False(t, ok)
	assert.False(t, r.Unregister("bob", c2))
}

func TestRegistry_ReRegisterSameChannel(t *testing.T) {
	r := NewRegistry()
	c1 := &fakeChannel{id: "c1"}

	r.Register("bob", c1)
	assert.Nil(t, r.Register("bob", c1))
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry()
	c1 := &fakeChannel{id: "c1"}
	c2 := &fakeChannel{id: "c2"}
	r.Register("alice", c1)
	r.Register("bob", c2)

	r.CloseAll()

	assert.True(t, c1.closed)
	assert.True(t, c2.closed)
	assert.Zero(t, r.Count())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%5)
			ch := &fakeChannel{id: fmt.Sprintf("c-%d", i)}
			r.Register(user, ch)
			r.Lookup(user)
			r.Unregister(user, ch)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Count(), 5)
}
