package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConversationMessage is one agent (or human) utterance. It is treated as
// immutable after creation. Thinking holds the separated reasoning trace and
// is never replayed to the other participant.
type ConversationMessage struct {
	ID         string    `json:"id"`
	Slot       Slot      `json:"slot"`
	Model      string    `json:"model"`
	Turn       int       `json:"turn"`
	Answer     string    `json:"answer"`
	Thinking   string    `json:"thinking"`
	Confidence float64   `json:"confidence"`
	Tokens     int       `json:"tokens"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MessageID renders the identifier of the message a slot contributes to a turn.
func MessageID(slot Slot, turn int) string { return fmt.Sprintf("%s-%d", slot, turn) }

// NewID generates a new unique identifier for experiments and sessions.
func NewID() string { return uuid.NewString() }
