package chat

import "iter"

// History is the append-only log of finalized turns for one conversation.
// Entries are never reordered, mutated, or removed. History is not safe for
// concurrent use on its own; the controller serializes all access to it.
type History struct {
	messages []Message
}

// NewHistory creates an empty conversation log.
func NewHistory() *History {
	return &History{messages: []Message{}}
}

// Append adds a finalized message to the end of the log.
func (h *History) Append(msg Message) {
	h.messages = append(h.messages, msg)
}

// Snapshot returns a copy of the log as of the call. Later appends do not
// affect the returned slice, so it is safe to hand to a request frame.
func (h *History) Snapshot() []Message {
	snapshot := make([]Message, len(h.messages))
	copy(snapshot, h.messages)
	return snapshot
}

// All iterates the log in insertion order. The sequence is restartable.
func (h *History) All() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for _, msg := range h.messages {
			if !yield(msg) {
				return
			}
		}
	}
}

// Len returns the number of finalized turns.
func (h *History) Len() int {
	return len(h.messages)
}
