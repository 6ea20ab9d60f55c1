package testutil

import (
	"time"

	"github.com/hupe1980/agentdialog/core"
)

// ConversationBuilder helps construct alternating conversations for tests.
// Example:
//
//	conv := NewConversationBuilder().Round("offer", "counter").Message("final").Build()
type ConversationBuilder struct {
	msgs []core.ConversationMessage
	at   time.Time
}

// NewConversationBuilder creates an empty builder.
func NewConversationBuilder() *ConversationBuilder {
	return &ConversationBuilder{at: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Message appends the next message; slot and turn follow the A,B alternation (chainable).
func (b *ConversationBuilder) Message(answer string) *ConversationBuilder {
	k := len(b.msgs) + 1
	slot, turn := core.SlotForIndex(k), core.TurnForIndex(k)
	b.msgs = append(b.msgs, core.ConversationMessage{
		ID:        core.MessageID(slot, turn),
		Slot:      slot,
		Model:     "model-" + string(slot),
		Turn:      turn,
		Answer:    answer,
		CreatedAt: b.at.Add(time.Duration(k) * time.Second),
	})
	return b
}

// Round appends one A message and one B message (chainable).
func (b *ConversationBuilder) Round(a, bAnswer string) *ConversationBuilder {
	return b.Message(a).Message(bAnswer)
}

// Build returns a copy of the accumulated conversation.
func (b *ConversationBuilder) Build() []core.ConversationMessage {
	return append([]core.ConversationMessage(nil), b.msgs...)
}

// SharedConfig returns a valid shared-prompt configuration.
func SharedConfig(prompt string, maxTurns int, mode core.Mode) core.ExperimentConfig {
	return core.ExperimentConfig{
		PromptingMode: core.PromptingShared,
		SharedPrompt:  prompt,
		MaxTurns:      maxTurns,
		ModelA:        "X",
		ModelB:        "Y",
		Mode:          mode,
	}
}
