// Package session implements the streaming state machine for one
// query/answer exchange. A Session owns exactly one channel: it dials,
// sends the request, consumes inbound frames one at a time in arrival
// order, and always closes the channel on its terminal transition.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/HamzaShahid59/Smart-Genk/internal/chat"
	"github.com/HamzaShahid59/Smart-Genk/internal/protocol"
	"github.com/HamzaShahid59/Smart-Genk/internal/transport"
)

// State is where a session is in its lifecycle. Finalized, Failed and
// Aborted are terminal; a session is discarded once it reaches any of them.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateAwaiting
	StateStreaming
	StateFinalized
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateAwaiting:
		return "awaiting_response"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateFailed || s == StateAborted
}

// Handler receives a session's outputs. Callbacks run on the session's read
// loop, one at a time, in frame arrival order. Exactly one of OnComplete or
// OnFailed is called, unless the session is aborted, in which case neither
// is.
type Handler interface {
	// OnPartial delivers the accumulated partial answer after each chunk.
	OnPartial(partial string)
	// OnComplete delivers the finalized assistant turn.
	OnComplete(msg chat.Message)
	// OnFailed delivers the terminal error for any failure path.
	OnFailed(err error)
}

// Session drives one exchange. Create with New, run once with Run, discard.
type Session struct {
	ID string

	endpoint    string
	dialer      transport.Dialer
	handler     Handler
	logger      *slog.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	readTimeout time.Duration

	partial strings.Builder
	aborted atomic.Bool

	mu    sync.Mutex
	state State
	conn  transport.Conn
}

// New creates a session for a single query. readTimeout bounds the wait for
// each inbound frame; 0 disables the deadline.
func New(endpoint string, dialer transport.Dialer, handler Handler, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter, readTimeout time.Duration) *Session {
	return &Session{
		ID:          uuid.NewString(),
		endpoint:    endpoint,
		dialer:      dialer,
		handler:     handler,
		logger:      logger,
		tracer:      tracer,
		meter:       meter,
		readTimeout: readTimeout,
		state:       StateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run executes the whole exchange and blocks until a terminal state is
// reached, which it returns. history is the conversation snapshot to send
// with the request; it must not include the query itself.
func (s *Session) Run(ctx context.Context, query string, history []chat.Message) State {
	ctx, span := s.tracer.Start(ctx, "chat_session",
		trace.WithAttributes(attribute.String("session.id", s.ID)))
	defer span.End()

	start := time.Now()
	defer func() {
		s.recordDuration(ctx, time.Since(start))
		span.SetAttributes(attribute.String("session.outcome", s.State().String()))
	}()

	s.setState(StateOpening)
	conn, err := s.dialer.Dial(ctx, s.endpoint)
	if err != nil {
		return s.fail(ctx, chat.NewError(chat.KindTransport, fmt.Errorf("failed to open channel: %w", err)))
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	if s.aborted.Load() {
		// Abort raced the dial and had no conn to close yet.
		return s.abort()
	}

	req := protocol.Request{Message: query, History: history}
	if err := conn.WriteJSON(req); err != nil {
		if s.aborted.Load() {
			return s.abort()
		}
		return s.fail(ctx, chat.NewError(chat.KindTransport, fmt.Errorf("failed to send request: %w", err)))
	}
	s.setState(StateAwaiting)
	s.logger.Debug("request sent", "session_id", s.ID, "history_len", len(history))

	for {
		if s.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
				return s.fail(ctx, chat.NewError(chat.KindTransport, fmt.Errorf("failed to set read deadline: %w", err)))
			}
		}

		var frame protocol.ServerFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if s.aborted.Load() {
				return s.abort()
			}
			return s.fail(ctx, chat.NewError(chat.KindTransport, fmt.Errorf("channel closed before completion: %w", err)))
		}

		switch frame.Classify() {
		case protocol.EventChunk:
			s.partial.WriteString(frame.Content)
			s.setState(StateStreaming)
			s.countChunk(ctx)
			s.handler.OnPartial(s.partial.String())

		case protocol.EventComplete:
			if assembled := s.partial.String(); assembled != frame.Answer {
				s.logger.Warn("assembled chunks differ from final answer",
					"session_id", s.ID,
					"assembled_len", len(assembled),
					"answer_len", len(frame.Answer))
				s.countMismatch(ctx)
			}
			msg := chat.NewAssistantMessage(frame.Answer)
			s.setState(StateFinalized)
			s.handler.OnComplete(msg)
			s.partial.Reset()
			s.logger.Info("session finalized", "session_id", s.ID, "answer_len", len(frame.Answer))
			return StateFinalized

		case protocol.EventError:
			text := frame.Error
			if text == "" {
				text = "server reported an error"
			}
			return s.fail(ctx, chat.NewError(chat.KindProtocol, errors.New(text)))

		default:
			s.logger.Debug("ignoring frame with unknown type", "session_id", s.ID, "type", frame.Type)
		}
	}
}

// Abort tears the session down without raising a user-visible error. It is
// safe to call from another goroutine, more than once, and after the
// session has already terminated.
func (s *Session) Abort() {
	if !s.aborted.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		// Unblocks a pending read; the loop observes the flag and exits.
		conn.Close()
	}
}

func (s *Session) abort() State {
	s.partial.Reset()
	s.setState(StateAborted)
	s.logger.Info("session aborted", "session_id", s.ID)
	return StateAborted
}

func (s *Session) fail(ctx context.Context, err *chat.Error) State {
	s.partial.Reset()
	s.setState(StateFailed)
	s.countFailure(ctx, err.Kind)
	s.logger.Error("session failed", "session_id", s.ID, "kind", string(err.Kind), "error", err.Err)
	s.handler.OnFailed(err)
	return StateFailed
}

func (s *Session) countChunk(ctx context.Context) {
	counter, err := s.meter.Int64Counter(
		"chat.chunks.received",
		metric.WithDescription("Answer fragments received over all sessions"),
	)
	if err != nil {
		s.logger.Warn("failed to create counter", "name", "chat.chunks.received", "error", err)
		return
	}
	counter.Add(ctx, 1)
}

func (s *Session) countMismatch(ctx context.Context) {
	counter, err := s.meter.Int64Counter(
		"chat.answer.mismatches",
		metric.WithDescription("Completions whose answer differed from the assembled chunks"),
	)
	if err != nil {
		s.logger.Warn("failed to create counter", "name", "chat.answer.mismatches", "error", err)
		return
	}
	counter.Add(ctx, 1)
}

func (s *Session) countFailure(ctx context.Context, kind chat.ErrorKind) {
	counter, err := s.meter.Int64Counter(
		"chat.sessions.failed",
		metric.WithDescription("Sessions that ended on a failure path"),
	)
	if err != nil {
		s.logger.Warn("failed to create counter", "name", "chat.sessions.failed", "error", err)
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("error.kind", string(kind))))
}

func (s *Session) recordDuration(ctx context.Context, d time.Duration) {
	histogram, err := s.meter.Float64Histogram(
		"chat.session.duration",
		metric.WithDescription("Session duration in milliseconds"),
	)
	if err != nil {
		return
	}
	histogram.Record(ctx, float64(d.Milliseconds()))
}
