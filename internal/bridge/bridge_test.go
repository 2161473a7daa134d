package bridge

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/pusherbridge/internal/action"
	"github.com/crystaldolphin/pusherbridge/internal/transport"
	"github.com/crystaldolphin/pusherbridge/internal/transport/memory"
)

// recorder is a Dispatcher that keeps every action it receives.
type recorder struct {
	mu      sync.Mutex
	actions []action.Action
}

func (r *recorder) Dispatch(a action.Action) {
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
}

func (r *recorder) all() []action.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]action.Action(nil), r.actions...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.actions = nil
	r.mu.Unlock()
}

// syncBuffer guards a bytes.Buffer for use as a log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	store  *recorder
	logs   *syncBuffer
	sock   *memory.Socket
	bridge *Bridge
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{store: &recorder{}, logs: &syncBuffer{}}
	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f.bridge = New(f.store, append([]Option{WithLogger(logger)}, opts...)...)
	f.sock = memory.New("app-key", transport.Options{})
	require.NoError(t, f.bridge.Attach(f.sock))
	return f
}

func TestBridge_EndToEnd(t *testing.T) {
	f := newFixture(t)

	// (a) subscribe before connecting: queued, nothing bound, nothing dispatched.
	f.bridge.Subscribe("room1", "message", "MSG_RECEIVED")
	assert.Empty(t, f.store.all())
	assert.Equal(t, 1, f.bridge.Pending())
	assert.Nil(t, f.sock.Channel("room1"))

	// (b) state change then connected: CONNECTED dispatched, queue drained.
	f.sock.SetState(transport.StateConnecting)
	f.store.reset()
	f.sock.SetState(transport.StateConnected)
	assert.Equal(t, []action.Action{{
		Type:    action.Connected,
		Payload: &transport.StateChange{Previous: "connecting", Current: "connected"},
	}}, f.store.all())
	assert.Equal(t, 0, f.bridge.Pending())
	assert.Equal(t, 1, f.sock.BindCount("room1", "message"))

	// (c) a channel message becomes an action.
	f.store.reset()
	f.sock.Emit("room1", "message", map[string]any{"text": "hi"})
	assert.Equal(t, []action.Action{{
		Type:    "MSG_RECEIVED",
		Channel: "room1",
		Event:   "message",
		Data:    map[string]any{"text": "hi"},
	}}, f.store.all())

	// (d) unsubscribe removes the handler without dispatching.
	f.store.reset()
	f.bridge.Unsubscribe("room1", "message", "MSG_RECEIVED")
	assert.Equal(t, 0, f.sock.BindCount("room1", "message"))
	assert.Empty(t, f.bridge.Bindings())
	assert.Empty(t, f.store.all())

	// (e) repeating it only logs.
	assert.NotPanics(t, func() { f.bridge.Unsubscribe("room1", "message", "MSG_RECEIVED") })
	assert.Empty(t, f.store.all())
	assert.Contains(t, f.logs.String(), "bridge: not subscribed to event")
}

func TestQueue_PreservesOrderAcrossReadiness(t *testing.T) {
	ready := false
	q := NewQueue(func() bool { return ready }, slog.Default())

	var log []int
	for i := 0; i < 5; i++ {
		q.Enqueue(func() { log = append(log, i) })
	}
	assert.Empty(t, log)
	assert.Equal(t, 5, q.Len())

	ready = true
	q.Drain()
	q.Enqueue(func() { log = append(log, 5) })

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, log)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ReentrantEnqueueRunsAfterPending(t *testing.T) {
	ready := false
	q := NewQueue(func() bool { return ready }, slog.Default())

	var log []string
	q.Enqueue(func() {
		log = append(log, "a")
		q.Enqueue(func() { log = append(log, "a.child") })
	})
	q.Enqueue(func() { log = append(log, "b") })

	ready = true
	q.Drain()
	assert.Equal(t, []string{"a", "b", "a.child"}, log)
}

func TestQueue_StopsWhenReadinessDrops(t *testing.T) {
	ready := false
	q := NewQueue(func() bool { return ready }, slog.Default())

	var ran []int
	q.Enqueue(func() { ran = append(ran, 1); ready = false })
	q.Enqueue(func() { ran = append(ran, 2) })
	q.Enqueue(func() { ran = append(ran, 3) })

	ready = true
	q.Drain()
	assert.Equal(t, []int{1}, ran)
	assert.Equal(t, 2, q.Len())

	ready = true
	q.Drain()
	assert.Equal(t, []int{1, 2, 3}, ran)
}

func TestQueue_PanickingCommandDoesNotStopDrain(t *testing.T) {
	var buf syncBuffer
	q := NewQueue(func() bool { return true }, slog.New(slog.NewTextHandler(&buf, nil)))
	ran := false
	q.Enqueue(func() { panic("boom") })
	q.Enqueue(func() { ran = true })
	assert.True(t, ran)
	assert.Contains(t, buf.String(), "command panicked")
}

func TestQueue_ConcurrentEnqueueRunsEveryCommandOnce(t *testing.T) {
	q := NewQueue(func() bool { return true }, slog.Default())
	var mu sync.Mutex
	counts := make(map[int]int)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(func() {
				mu.Lock()
				counts[i]++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	assert.Len(t, counts, 50)
	for i, n := range counts {
		assert.Equal(t, 1, n, "command %d", i)
	}
}

func TestBridge_DeferredSubscribeDoesNotBindBeforeConnected(t *testing.T) {
	f := newFixture(t)
	f.bridge.Subscribe("room1", "message", "MSG")
	f.sock.SetState(transport.StateConnecting)
	f.sock.SetState(transport.StateUnavailable)
	f.sock.SetState(transport.StateConnecting)

	assert.False(t, f.bridge.Ready())
	assert.Nil(t, f.sock.Channel("room1"))
	assert.Equal(t, 1, f.bridge.Pending())

	f.sock.SetState(transport.StateConnected)
	assert.True(t, f.bridge.Ready())
	assert.Equal(t, 1, f.sock.BindCount("room1", "message"))
}

func TestBridge_IdempotentSubscribe(t *testing.T) {
	f := newFixture(t)
	f.sock.Connect()

	f.bridge.Subscribe("room1", "message", "MSG")
	f.bridge.Subscribe("room1", "message", "MSG")

	assert.Equal(t, 1, f.sock.BindCount("room1", "message"))
	assert.Equal(t, []Key{{Channel: "room1", Event: "message", ActionType: "MSG"}}, f.bridge.Bindings())

	f.store.reset()
	f.sock.Emit("room1", "message", "x")
	assert.Len(t, f.store.all(), 1)
}

func TestBridge_SameEventDifferentActionTypes(t *testing.T) {
	f := newFixture(t)
	f.sock.Connect()

	f.bridge.Subscribe("room1", "message", "A")
	f.bridge.Subscribe("room1", "message", "B")
	assert.Equal(t, 2, f.sock.BindCount("room1", "message"))

	f.bridge.Unsubscribe("room1", "message", "A")
	assert.Equal(t, 1, f.sock.BindCount("room1", "message"))

	f.store.reset()
	f.sock.Emit("room1", "message", 1)
	got := f.store.all()
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Type)
}

func TestBridge_UnsubscribeSoftFailures(t *testing.T) {
	f := newFixture(t)
	f.sock.Connect()

	f.bridge.Unsubscribe("nowhere", "message", "MSG")
	assert.Contains(t, f.logs.String(), "bridge: not subscribed to channel")

	f.bridge.Subscribe("room1", "message", "MSG")
	f.bridge.Unsubscribe("room1", "other", "MSG")
	assert.Contains(t, f.logs.String(), "bridge: not subscribed to event")

	f.bridge.Unsubscribe("room1", "message", "OTHER")
	assert.Contains(t, f.logs.String(), "bridge: handler not registered for event")

	// The soft failures did not disturb the binding or later commands.
	assert.Equal(t, 1, f.sock.BindCount("room1", "message"))
	f.bridge.Subscribe("room2", "message", "MSG")
	assert.Equal(t, 1, f.sock.BindCount("room2", "message"))
}

func TestBridge_UnsubscribeChannelUnknown(t *testing.T) {
	f := newFixture(t)
	f.sock.Connect()
	f.bridge.UnsubscribeChannel("room9")
	assert.Contains(t, f.logs.String(), "bridge: not subscribed to channel")
}

func TestBridge_UnsubscribeChannelPurgesBindings(t *testing.T) {
	f := newFixture(t)
	f.sock.Connect()

	f.bridge.Subscribe("room1", "message", "MSG")
	f.bridge.Subscribe("room1", "typing", "TYPING")
	f.bridge.Subscribe("room2", "message", "MSG")
	f.bridge.UnsubscribeChannel("room1")

	assert.Nil(t, f.sock.Channel("room1"))
	assert.Equal(t, []Key{{Channel: "room2", Event: "message", ActionType: "MSG"}}, f.bridge.Bindings())

	// Re-subscribing binds a fresh handler on the new channel.
	f.bridge.Subscribe("room1", "message", "MSG")
	assert.Equal(t, 1, f.sock.BindCount("room1", "message"))
}

func TestBridge_KeepStaleBindings(t *testing.T) {
	f := newFixture(t, WithKeepStaleBindings())
	f.sock.Connect()

	f.bridge.Subscribe("room1", "message", "MSG")
	f.bridge.UnsubscribeChannel("room1")
	assert.Len(t, f.bridge.Bindings(), 1)

	// The stale entry makes the re-subscribe a no-op.
	f.bridge.Subscribe("room1", "message", "MSG")
	assert.NotNil(t, f.sock.Channel("room1"))
	assert.Equal(t, 0, f.sock.BindCount("room1", "message"))
}

func TestBridge_LifecycleFanOut(t *testing.T) {
	f := newFixture(t)
	f.sock.SetState(transport.StateConnecting)
	f.sock.SetState(transport.StateConnected)
	f.sock.SetState(transport.StateUnavailable)
	f.sock.SetState(transport.StateFailed)
	f.sock.SetState(transport.StateDisconnected)
	f.sock.SetState("initialized")

	var types []string
	for _, a := range f.store.all() {
		types = append(types, a.Type)
		assert.Nil(t, a.Data)
		assert.Empty(t, a.Channel)
	}
	assert.Equal(t, []string{
		action.Connecting,
		action.Connected,
		action.Unavailable,
		action.Failed,
		action.Disconnected,
	}, types)
	assert.Equal(t, transport.State("initialized"), f.bridge.State())
}

func TestBridge_ReadinessCompatStaysReadyOnDisconnect(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, ReadinessCompat, f.bridge.Mode())
	f.sock.Connect()
	f.sock.Disconnect()

	assert.True(t, f.bridge.Ready())
	assert.EqualValues(t, 1, f.bridge.Disconnects())

	f.bridge.Subscribe("room1", "message", "MSG")
	assert.Equal(t, 0, f.bridge.Pending())
}

func TestBridge_ReadinessCompatDisconnectBeforeConnect(t *testing.T) {
	f := newFixture(t)
	f.bridge.Subscribe("room1", "message", "MSG")
	f.sock.Disconnect()

	// The flag is set but no drain happens until the next command or connect.
	assert.True(t, f.bridge.Ready())
	assert.Equal(t, 1, f.bridge.Pending())
	f.bridge.Subscribe("room2", "message", "MSG")
	assert.Equal(t, 0, f.bridge.Pending())
}

func TestBridge_ReadinessStrictQueuesWhileDisconnected(t *testing.T) {
	f := newFixture(t, WithReadinessMode(ReadinessStrict))
	f.sock.Connect()
	f.sock.Disconnect()

	assert.False(t, f.bridge.Ready())
	f.bridge.Subscribe("room1", "message", "MSG")
	f.bridge.Unsubscribe("room1", "message", "MSG")
	f.bridge.Subscribe("room1", "message", "MSG2")
	assert.Equal(t, 3, f.bridge.Pending())

	f.sock.Connect()
	assert.Equal(t, 0, f.bridge.Pending())
	assert.Equal(t, []Key{{Channel: "room1", Event: "message", ActionType: "MSG2"}}, f.bridge.Bindings())
}

func TestBridge_GetChannel(t *testing.T) {
	b := New(&recorder{})
	_, err := b.GetChannel("room1")
	assert.ErrorIs(t, err, ErrNoSocket)

	sock := memory.New("k", transport.Options{})
	require.NoError(t, b.Attach(sock))

	// Not queued: works before connect.
	ch, err := b.GetChannel("room1")
	require.NoError(t, err)
	assert.Equal(t, "room1", ch.Name())
	again, err := b.GetChannel("room1")
	require.NoError(t, err)
	assert.Same(t, ch, again)
}

func TestBridge_AttachTwice(t *testing.T) {
	b := New(&recorder{})
	require.NoError(t, b.Attach(memory.New("k", transport.Options{})))
	assert.ErrorIs(t, b.Attach(memory.New("k", transport.Options{})), ErrAttached)
}

func TestBridge_AttachAlreadyConnectedSocket(t *testing.T) {
	sock := memory.New("k", transport.Options{})
	sock.Connect()
	b := New(&recorder{})
	require.NoError(t, b.Attach(sock))
	assert.True(t, b.Ready())
}

func TestConfigure(t *testing.T) {
	store := &recorder{}
	var gotKey string
	var gotOpts transport.Options
	factory := func(key string, opts transport.Options) (transport.Socket, error) {
		gotKey, gotOpts = key, opts
		return memory.New(key, opts), nil
	}

	b, err := Configure(store, factory, "app", transport.Options{Cluster: "eu"})
	require.NoError(t, err)
	assert.Equal(t, "app", gotKey)
	assert.Equal(t, "eu", gotOpts.Cluster)
	require.NotNil(t, b.Socket())

	_, err = b.Start(transport.Options{})
	assert.ErrorIs(t, err, ErrNotDelayed)
}

func TestConfigure_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Configure(&recorder{}, func(string, transport.Options) (transport.Socket, error) {
		return nil, boom
	}, "app", transport.Options{})
	assert.ErrorIs(t, err, boom)
}

func TestDelayThenStart(t *testing.T) {
	store := &recorder{}
	var gotOpts transport.Options
	factory := func(key string, opts transport.Options) (transport.Socket, error) {
		gotOpts = opts
		return memory.New(key, opts), nil
	}

	b := Delay(store, factory, "app", transport.Options{Cluster: "eu", Host: "ws.example.com"})
	assert.Nil(t, b.Socket())
	b.Subscribe("room1", "message", "MSG")
	assert.Equal(t, 1, b.Pending())

	sock, err := b.Start(transport.Options{Cluster: "us2"})
	require.NoError(t, err)
	assert.Equal(t, "us2", gotOpts.Cluster)
	assert.Equal(t, "ws.example.com", gotOpts.Host)

	mem := sock.(*memory.Socket)
	mem.Connect()
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 1, mem.BindCount("room1", "message"))

	_, err = b.Start(transport.Options{})
	assert.ErrorIs(t, err, ErrAttached)
}

func TestParseReadinessMode(t *testing.T) {
	m, err := ParseReadinessMode("")
	require.NoError(t, err)
	assert.Equal(t, ReadinessCompat, m)

	m, err = ParseReadinessMode(" Strict ")
	require.NoError(t, err)
	assert.Equal(t, ReadinessStrict, m)
	assert.Equal(t, "strict", m.String())

	_, err = ParseReadinessMode("eager")
	assert.Error(t, err)
}
