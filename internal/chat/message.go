package chat

import "time"

// Role identifies which side of the conversation produced a message. The
// string values are part of the wire contract for history entries.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "ai"
)

// Message represents a single finalized conversational turn. A Message is
// created once its content is fully known and is immutable afterwards.
type Message struct {
	Content   string    `json:"content"`
	Role      Role      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHumanMessage creates a human turn stamped with the current time.
func NewHumanMessage(content string) Message {
	return Message{
		Content:   content,
		Role:      RoleHuman,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant turn stamped with the current time.
func NewAssistantMessage(content string) Message {
	return Message{
		Content:   content,
		Role:      RoleAssistant,
		Timestamp: time.Now(),
	}
}
