// Package push delivers experiment lifecycle and message stream events to
// external observers.
package push

import (
	"errors"
	"time"

	"github.com/hupe1980/agentdialog/core"
)

// Metadata describes a newly created experiment or session.
type Metadata struct {
	Kind      string    `json:"kind"` // "experiment" or "session"
	Mode      core.Mode `json:"mode,omitempty"`
	ModelA    string    `json:"modelA,omitempty"`
	ModelB    string    `json:"modelB,omitempty"`
	MaxTurns  int       `json:"maxTurns,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chunk is one step of a streamed message. PartialAnswer holds the answer
// accumulated so far; the chunk with IsComplete set carries the final answer.
type Chunk struct {
	MessageID     string    `json:"messageId"`
	Slot          core.Slot `json:"slot"`
	Turn          int       `json:"turn,omitempty"`
	PartialAnswer string    `json:"partialAnswer"`
	Thinking      string    `json:"thinking,omitempty"`
	IsComplete    bool      `json:"isComplete"`
}

// Broadcaster is the outbound push channel.
type Broadcaster interface {
	BroadcastCreated(experimentID string, meta Metadata) error
	BroadcastMessageChunk(experimentID string, chunk Chunk) error
}

// NoOp discards all events.
type NoOp struct{}

// BroadcastCreated implements Broadcaster.
func (NoOp) BroadcastCreated(string, Metadata) error { return nil }

// BroadcastMessageChunk implements Broadcaster.
func (NoOp) BroadcastMessageChunk(string, Chunk) error { return nil }

// Multi fans events out to several broadcasters. Every target is tried; the
// returned error joins individual failures.
type Multi []Broadcaster

// BroadcastCreated implements Broadcaster.
func (m Multi) BroadcastCreated(experimentID string, meta Metadata) error {
	var errs []error
	for _, b := range m {
		if err := b.BroadcastCreated(experimentID, meta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BroadcastMessageChunk implements Broadcaster.
func (m Multi) BroadcastMessageChunk(experimentID string, chunk Chunk) error {
	var errs []error
	for _, b := range m {
		if err := b.BroadcastMessageChunk(experimentID, chunk); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
