package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/HamzaShahid59/Smart-Genk/internal/chat"
	"github.com/HamzaShahid59/Smart-Genk/internal/config"
	"github.com/HamzaShahid59/Smart-Genk/internal/protocol"
	"github.com/HamzaShahid59/Smart-Genk/internal/transport"
)

type scriptConn struct {
	mu       sync.Mutex
	frames   []protocol.ServerFrame
	pos      int
	requests []protocol.Request
	finalErr error
}

func (c *scriptConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req, ok := v.(protocol.Request); ok {
		c.requests = append(c.requests, req)
	}
	return nil
}

func (c *scriptConn) ReadJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos >= len(c.frames) {
		if c.finalErr != nil {
			return c.finalErr
		}
		return io.EOF
	}
	*(v.(*protocol.ServerFrame)) = c.frames[c.pos]
	c.pos++
	return nil
}

func (c *scriptConn) SetReadDeadline(time.Time) error { return nil }

func (c *scriptConn) Close() error { return nil }

func (c *scriptConn) sentRequests() []protocol.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

type blockConn struct {
	unblock   chan struct{}
	closeOnce sync.Once
}

func newBlockConn() *blockConn {
	return &blockConn{unblock: make(chan struct{})}
}

func (c *blockConn) WriteJSON(v interface{}) error { return nil }

func (c *blockConn) ReadJSON(v interface{}) error {
	<-c.unblock
	return errors.New("use of closed network connection")
}

func (c *blockConn) SetReadDeadline(time.Time) error { return nil }

func (c *blockConn) Close() error {
	c.closeOnce.Do(func() { close(c.unblock) })
	return nil
}

// queueDialer hands out one conn per dial, in order.
type queueDialer struct {
	mu    sync.Mutex
	conns []transport.Conn
	dials int
}

func (d *queueDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("no connection scripted")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *queueDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type testNotifier struct {
	mu       sync.Mutex
	partials []string
	failures []error
	history  int
	done     chan struct{}
}

func newTestNotifier() *testNotifier {
	return &testNotifier{done: make(chan struct{}, 8)}
}

func (n *testNotifier) PartialChanged(partial string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.partials = append(n.partials, partial)
}

func (n *testNotifier) HistoryChanged() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history++
}

func (n *testNotifier) SessionFailed(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
}

func (n *testNotifier) SessionDone() {
	n.done <- struct{}{}
}

func (n *testNotifier) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the session to finish")
	}
}

func (n *testNotifier) seenPartials() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.partials))
	copy(out, n.partials)
	return out
}

func (n *testNotifier) seenFailures() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]error, len(n.failures))
	copy(out, n.failures)
	return out
}

func newTestController(dialer transport.Dialer, notifier Notifier) *Controller {
	cfg := config.Config{Endpoint: "ws://example.test/ws/chat", ReadTimeoutSecs: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := tracenoop.NewTracerProvider().Tracer("test")
	meter := metricnoop.NewMeterProvider().Meter("test")
	return New(cfg, dialer, notifier, logger, tracer, meter)
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	dialer := &queueDialer{}
	notifier := newTestNotifier()
	c := newTestController(dialer, notifier)

	for _, input := range []string{"", "   ", "\t\n"} {
		err := c.Submit(context.Background(), input)
		require.Error(t, err)
		assert.True(t, errors.Is(err, chat.ErrEmptyQuery))
		kind, ok := chat.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, chat.KindValidation, kind)
	}

	assert.Equal(t, 0, c.History().Len())
	assert.False(t, c.Busy())
	assert.Equal(t, 0, dialer.dialCount(), "validation failures must not open a channel")
}

func TestSubmitHappyPath(t *testing.T) {
	conn := &scriptConn{frames: []protocol.ServerFrame{
		{Type: protocol.TypeChunk, Content: "Hi"},
		{Type: protocol.TypeChunk, Content: " there"},
		{Type: protocol.TypeComplete, Answer: "Hi there!"},
	}}
	notifier := newTestNotifier()
	c := newTestController(&queueDialer{conns: []transport.Conn{conn}}, notifier)

	require.NoError(t, c.Submit(context.Background(), "hello"))
	notifier.waitDone(t)

	messages := c.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, chat.RoleHuman, messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, chat.RoleAssistant, messages[1].Role)
	assert.Equal(t, "Hi there!", messages[1].Content)

	assert.Equal(t, []string{"Hi", "Hi there", ""}, notifier.seenPartials())
	assert.Empty(t, notifier.seenFailures())
	assert.Empty(t, c.Partial())
	assert.False(t, c.Busy())
}

func TestSubmitTrimsQueryBeforeSending(t *testing.T) {
	conn := &scriptConn{frames: []protocol.ServerFrame{
		{Type: protocol.TypeComplete, Answer: "ok"},
	}}
	notifier := newTestNotifier()
	c := newTestController(&queueDialer{conns: []transport.Conn{conn}}, notifier)

	require.NoError(t, c.Submit(context.Background(), "  hello  "))
	notifier.waitDone(t)

	requests := conn.sentRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, "hello", requests[0].Message)
	assert.Equal(t, "hello", c.Messages()[0].Content)
}

func TestSubmitServerError(t *testing.T) {
	conn := &scriptConn{frames: []protocol.ServerFrame{
		{Error: "rate limited"},
	}}
	notifier := newTestNotifier()
	c := newTestController(&queueDialer{conns: []transport.Conn{conn}}, notifier)

	require.NoError(t, c.Submit(context.Background(), "x"))
	notifier.waitDone(t)

	// Only the human turn survives; the error is surfaced, not swallowed.
	messages := c.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, chat.RoleHuman, messages[0].Role)

	failures := notifier.seenFailures()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "rate limited")
	assert.False(t, c.Busy())
	assert.Empty(t, c.Partial())
}

func TestSubmitNoPartialCommittedOnTransportFailure(t *testing.T) {
	conn := &scriptConn{
		frames: []protocol.ServerFrame{
			{Type: protocol.TypeChunk, Content: "almost"},
			{Type: protocol.TypeChunk, Content: " done"},
		},
		finalErr: io.ErrUnexpectedEOF,
	}
	notifier := newTestNotifier()
	c := newTestController(&queueDialer{conns: []transport.Conn{conn}}, notifier)

	before := c.History().Len()
	require.NoError(t, c.Submit(context.Background(), "x"))
	notifier.waitDone(t)

	assert.Equal(t, before+1, c.History().Len(), "only the human turn may be committed")
	assert.Empty(t, c.Partial())
	failures := notifier.seenFailures()
	require.Len(t, failures, 1)
	kind, _ := chat.KindOf(failures[0])
	assert.Equal(t, chat.KindTransport, kind)
}

func TestSubmitWhileBusyIsRejected(t *testing.T) {
	conn := newBlockConn()
	notifier := newTestNotifier()
	c := newTestController(&queueDialer{conns: []transport.Conn{conn}}, notifier)

	require.NoError(t, c.Submit(context.Background(), "first"))
	require.Eventually(t, c.Busy, time.Second, 5*time.Millisecond)

	err := c.Submit(context.Background(), "second")
	require.Error(t, err)
	assert.True(t, errors.Is(err, chat.ErrBusy))
	kind, ok := chat.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, chat.KindBusy, kind)

	// The rejected submission must not have touched history.
	require.Len(t, c.Messages(), 1)
	assert.Equal(t, "first", c.Messages()[0].Content)

	c.Abort()
	notifier.waitDone(t)
	assert.False(t, c.Busy())
}

func TestAbortIsRoutineTeardown(t *testing.T) {
	conn := newBlockConn()
	notifier := newTestNotifier()
	c := newTestController(&queueDialer{conns: []transport.Conn{conn}}, notifier)

	require.NoError(t, c.Submit(context.Background(), "x"))
	require.Eventually(t, c.Busy, time.Second, 5*time.Millisecond)

	c.Abort()
	notifier.waitDone(t)

	assert.Empty(t, notifier.seenFailures(), "abort must not raise a user-visible error")
	assert.Empty(t, c.Partial())
	assert.False(t, c.Busy())

	// Idempotent with no session in flight.
	c.Abort()
}

func TestRequestHistoryExcludesSubmittedTurn(t *testing.T) {
	first := &scriptConn{frames: []protocol.ServerFrame{
		{Type: protocol.TypeComplete, Answer: "first answer"},
	}}
	second := &scriptConn{frames: []protocol.ServerFrame{
		{Type: protocol.TypeComplete, Answer: "second answer"},
	}}
	notifier := newTestNotifier()
	c := newTestController(&queueDialer{conns: []transport.Conn{first, second}}, notifier)

	require.NoError(t, c.Submit(context.Background(), "one"))
	notifier.waitDone(t)
	require.NoError(t, c.Submit(context.Background(), "two"))
	notifier.waitDone(t)

	firstReq := first.sentRequests()
	require.Len(t, firstReq, 1)
	assert.Empty(t, firstReq[0].History)

	secondReq := second.sentRequests()
	require.Len(t, secondReq, 1)
	require.Len(t, secondReq[0].History, 2)
	assert.Equal(t, "one", secondReq[0].History[0].Content)
	assert.Equal(t, "first answer", secondReq[0].History[1].Content)

	require.Len(t, c.Messages(), 4)
}

func TestGateReopensAfterFailure(t *testing.T) {
	failing := &scriptConn{finalErr: io.ErrUnexpectedEOF}
	working := &scriptConn{frames: []protocol.ServerFrame{
		{Type: protocol.TypeComplete, Answer: "recovered"},
	}}
	notifier := newTestNotifier()
	c := newTestController(&queueDialer{conns: []transport.Conn{failing, working}}, notifier)

	require.NoError(t, c.Submit(context.Background(), "a"))
	notifier.waitDone(t)
	require.NoError(t, c.Submit(context.Background(), "b"))
	notifier.waitDone(t)

	messages := c.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "recovered", messages[2].Content)
}
