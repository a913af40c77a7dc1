package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zavolah/marketplace/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool
}

func (c *fakeConn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.frames = append(c.frames, payload)
	return true
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type staticMembers map[string][]string

func (m staticMembers) RoomMembers(_ context.Context, roomID string) ([]string, error) {
	members, ok := m[roomID]
	if !ok {
		return nil, errors.New("room lookup failed")
	}
	return members, nil
}

type countingObserver struct {
	mu     sync.Mutex
	conns  int
	frames map[string]int
}

func (o *countingObserver) SetRelayConnections(n int) {
	o.mu.Lock()
	o.conns = n
	o.mu.Unlock()
}

func (o *countingObserver) RecordRelayFrame(result string) {
	o.mu.Lock()
	if o.frames == nil {
		o.frames = map[string]int{}
	}
	o.frames[result]++
	o.mu.Unlock()
}

func newTestRegistry(members MemberSource) *Registry {
	return NewRegistry(members, WithLogger(logging.Discard()))
}

func TestRegistry_DeliverToUnknownUser(t *testing.T) {
	r := newTestRegistry(nil)
	assert.False(t, r.Deliver("nobody", []byte("x")))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := newTestRegistry(nil)
	c := &fakeConn{}

	r.Register("u1", c)
	assert.True(t, r.Connected("u1"))
	assert.Equal(t, 1, r.Count())

	r.Unregister("u1")
	assert.False(t, r.Connected("u1"))
	assert.Equal(t, 0, r.Count())

	r.Unregister("u1")
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_RegisterReplacesAndClosesPrevious(t *testing.T) {
	r := newTestRegistry(nil)
	first, second := &fakeConn{}, &fakeConn{}

	r.Register("u1", first)
	r.Register("u1", second)

	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.Equal(t, 1, r.Count())

	assert.True(t, r.Deliver("u1", []byte("hello")))
	assert.Empty(t, first.received())
	assert.Equal(t, [][]byte{[]byte("hello")}, second.received())
}

func TestRegistry_UnregisterConnKeepsSuccessor(t *testing.T) {
	r := newTestRegistry(nil)
	old, cur := &fakeConn{}, &fakeConn{}

	r.Register("u1", old)
	r.Register("u1", cur)

	assert.False(t, r.UnregisterConn("u1", old))
	assert.True(t, r.Connected("u1"))

	assert.True(t, r.UnregisterConn("u1", cur))
	assert.False(t, r.Connected("u1"))
}

func TestRegistry_DeliverDropsWhenFull(t *testing.T) {
	obs := &countingObserver{}
	r := NewRegistry(nil, WithLogger(logging.Discard()), WithObserver(obs))
	r.Register("u1", &fakeConn{full: true})

	assert.False(t, r.Deliver("u1", []byte("x")))
	assert.False(t, r.Deliver("u2", []byte("x")))

	assert.Equal(t, 1, obs.frames[FrameDropped])
	assert.Equal(t, 1, obs.frames[FrameOffline])
	assert.Equal(t, 1, obs.conns)
}

func TestRegistry_DeliverToRoomExcludesSender(t *testing.T) {
	r := newTestRegistry(staticMembers{"room1": {"u1", "u2", "u3"}})
	u1, u2 := &fakeConn{}, &fakeConn{}
	r.Register("u1", u1)
	r.Register("u2", u2)

	n, err := r.DeliverToRoom(context.Background(), "room1", []byte("msg"), "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, n, "u3 is offline and u1 is the sender")
	assert.Empty(t, u1.received())
	assert.Len(t, u2.received(), 1)
}

func TestRegistry_DeliverToRoomErrors(t *testing.T) {
	_, err := newTestRegistry(nil).DeliverToRoom(context.Background(), "room1", nil, "")
	assert.Error(t, err)

	_, err = newTestRegistry(staticMembers{}).DeliverToRoom(context.Background(), "missing", nil, "")
	assert.Error(t, err)
}

func TestRegistry_ConcurrentDistinctUsers(t *testing.T) {
	r := newTestRegistry(nil)
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Register(fmt.Sprintf("user-%d", i), &fakeConn{})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, r.Count())
	for i := 0; i < n; i++ {
		assert.True(t, r.Connected(fmt.Sprintf("user-%d", i)))
	}
}

func TestRegistry_ConcurrentSameUser(t *testing.T) {
	r := newTestRegistry(nil)
	const n = 100

	conns := make([]*fakeConn, n)
	for i := range conns {
		conns[i] = &fakeConn{}
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			r.Register("same", c)
		}(c)
	}
	wg.Wait()

	require.Equal(t, 1, r.Count())
	current, ok := r.Current("same")
	require.True(t, ok)

	open := 0
	for _, c := range conns {
		if !c.isClosed() {
			open++
			assert.True(t, current == Connection(c), "the open connection is the registered one")
		}
	}
	assert.Equal(t, 1, open, "every superseded connection is closed")
}

func TestRegistry_CloseAll(t *testing.T) {
	r := newTestRegistry(nil)
	a, b := &fakeConn{}, &fakeConn{}
	r.Register("a", a)
	r.Register("b", b)

	r.CloseAll()

	assert.Equal(t, 0, r.Count())
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
}
