// Package protocol defines the wire frames exchanged with the answer
// service. Each WebSocket text message carries exactly one JSON frame; the
// field names here are part of the wire contract.
package protocol

import "github.com/HamzaShahid59/Smart-Genk/internal/chat"

// Request is the single outbound frame, sent once immediately after the
// channel opens. History holds the turns prior to the one being submitted;
// the submitted text itself travels in Message.
type Request struct {
	Message string         `json:"message"`
	History []chat.Message `json:"history"`
}

// Inbound frame type discriminators.
const (
	TypeChunk    = "chunk"
	TypeComplete = "complete"
	TypeError    = "error"
)

// ServerFrame is an inbound frame. Which fields are meaningful depends on
// the frame's classification: Content for chunks, Answer for completion,
// Error for server-reported failures.
type ServerFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Answer  string `json:"answer,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Event is the classified meaning of an inbound frame.
type Event int

const (
	// EventUnknown marks frames with an unrecognized type and no error
	// field; sessions skip them.
	EventUnknown Event = iota
	EventChunk
	EventComplete
	EventError
)

// Classify maps a frame to its event. A non-empty Error field wins over any
// declared Type, so a malformed or hybrid frame can never be mistaken for
// forward progress.
func (f ServerFrame) Classify() Event {
	if f.Error != "" {
		return EventError
	}
	switch f.Type {
	case TypeChunk:
		return EventChunk
	case TypeComplete:
		return EventComplete
	case TypeError:
		return EventError
	default:
		return EventUnknown
	}
}
