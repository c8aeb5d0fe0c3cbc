// Package controller is the single entry point for submitting queries. It
// enforces the one-session-at-a-time gate, owns the conversation history
// and the live partial-answer projection, and wires session outcomes back
// into both.
package controller

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/HamzaShahid59/Smart-Genk/internal/chat"
	"github.com/HamzaShahid59/Smart-Genk/internal/config"
	"github.com/HamzaShahid59/Smart-Genk/internal/session"
	"github.com/HamzaShahid59/Smart-Genk/internal/transport"
)

// Notifier is the rendering collaborator. The controller calls it whenever
// the history or the partial answer changes; presentation is entirely its
// business. Callbacks arrive one at a time.
type Notifier interface {
	// PartialChanged delivers the in-progress answer, or "" once cleared.
	PartialChanged(partial string)
	// HistoryChanged fires after a turn is appended.
	HistoryChanged()
	// SessionFailed delivers the user-visible error for a failed session.
	SessionFailed(err error)
	// SessionDone fires on every terminal outcome, after the gate is
	// released. The input affordance can be re-enabled on it.
	SessionDone()
}

// Controller owns the gate and the conversation state.
type Controller struct {
	cfg      config.Config
	dialer   transport.Dialer
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter

	mu      sync.Mutex
	history *chat.History
	partial string
	active  *session.Session
}

// New creates a controller with an empty history.
func New(cfg config.Config, dialer transport.Dialer, notifier Notifier, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Controller {
	return &Controller{
		cfg:      cfg,
		dialer:   dialer,
		notifier: notifier,
		logger:   logger,
		tracer:   tracer,
		meter:    meter,
		history:  chat.NewHistory(),
	}
}

// Submit validates raw input and, if the gate is free, appends the human
// turn and starts a session for it. The returned error is nil when a
// session was started; validation and busy rejections leave history, the
// partial answer and the gate untouched.
func (c *Controller) Submit(ctx context.Context, raw string) error {
	query := strings.TrimSpace(raw)
	if query == "" {
		return chat.NewError(chat.KindValidation, chat.ErrEmptyQuery)
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return chat.NewError(chat.KindBusy, chat.ErrBusy)
	}

	// The request carries only the turns prior to this one; the query
	// itself travels in the request's message field.
	snapshot := c.history.Snapshot()
	c.history.Append(chat.NewHumanMessage(query))
	c.partial = ""

	sess := session.New(c.cfg.Endpoint, c.dialer, c, c.logger, c.tracer, c.meter, c.cfg.ReadTimeout())
	c.active = sess
	c.mu.Unlock()

	c.logger.Info("query submitted", "session_id", sess.ID, "query_len", len(query))
	c.notifier.HistoryChanged()

	go func() {
		state := sess.Run(ctx, query, snapshot)

		c.mu.Lock()
		if state == session.StateAborted {
			// Discard any partial progress published before the abort.
			c.partial = ""
		}
		c.active = nil
		c.mu.Unlock()

		c.notifier.SessionDone()
	}()

	return nil
}

// Busy reports whether a session is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Partial returns the live partial answer, or "" when nothing is streaming.
func (c *Controller) Partial() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partial
}

// Messages returns a snapshot of the finalized conversation for rendering.
func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Snapshot()
}

// History exposes the underlying log. Read it only from notifier callbacks
// or while no session is in flight.
func (c *Controller) History() *chat.History {
	return c.history
}

// Abort tears down any in-flight session as routine cleanup; no error is
// surfaced for it. Used when the owning context goes away.
func (c *Controller) Abort() {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()
	if sess != nil {
		sess.Abort()
	}
}

// OnPartial implements session.Handler.
func (c *Controller) OnPartial(partial string) {
	c.mu.Lock()
	c.partial = partial
	c.mu.Unlock()
	c.notifier.PartialChanged(partial)
}

// OnComplete implements session.Handler. The finalized assistant turn is
// appended and the partial projection cleared before the gate is released.
func (c *Controller) OnComplete(msg chat.Message) {
	c.mu.Lock()
	c.history.Append(msg)
	c.partial = ""
	c.mu.Unlock()

	c.notifier.PartialChanged("")
	c.notifier.HistoryChanged()
}

// OnFailed implements session.Handler. Partial progress is discarded, never
// committed; the error is always surfaced.
func (c *Controller) OnFailed(err error) {
	c.mu.Lock()
	c.partial = ""
	c.mu.Unlock()

	c.notifier.PartialChanged("")
	c.notifier.SessionFailed(err)
}
