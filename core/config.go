package core

import (
	"fmt"
	"strings"
)

// PromptingMode selects whether both slots share one seed prompt.
type PromptingMode string

const (
	// PromptingShared seeds both slots with SharedPrompt.
	PromptingShared PromptingMode = "shared"
	// PromptingIndividual seeds slot A with PromptA and slot B with PromptB.
	PromptingIndividual PromptingMode = "individual"
)

// Mode selects how turns are advanced.
type Mode string

const (
	// ModeAuto drives rounds continuously until the turn ceiling.
	ModeAuto Mode = "auto"
	// ModeManual waits for an explicit step request before every exchange.
	ModeManual Mode = "manual"
)

// ExperimentConfig is the immutable configuration of one experiment. The
// engine keeps its own copy once Start accepts it.
type ExperimentConfig struct {
	PromptingMode PromptingMode `json:"promptingMode" yaml:"prompting_mode"`
	SharedPrompt  string        `json:"sharedPrompt,omitempty" yaml:"shared_prompt,omitempty"`
	PromptA       string        `json:"promptA,omitempty" yaml:"prompt_a,omitempty"`
	PromptB       string        `json:"promptB,omitempty" yaml:"prompt_b,omitempty"`
	MaxTurns      int           `json:"maxTurns" yaml:"max_turns"`
	ModelA        string        `json:"modelA" yaml:"model_a"`
	ModelB        string        `json:"modelB" yaml:"model_b"`
	// Per-slot credentials; empty falls back to the process-wide default.
	APIKeyA string `json:"-" yaml:"api_key_a,omitempty"`
	APIKeyB string `json:"-" yaml:"api_key_b,omitempty"`
	Mode    Mode   `json:"mode" yaml:"mode"`
}

// WithDefaults returns a copy with empty modes filled in (shared, auto).
func (c ExperimentConfig) WithDefaults() ExperimentConfig {
	if c.PromptingMode == "" {
		c.PromptingMode = PromptingShared
	}
	if c.Mode == "" {
		c.Mode = ModeAuto
	}
	return c
}

// Validate checks the configuration. All returned errors wrap ErrValidation.
func (c ExperimentConfig) Validate() error {
	switch c.PromptingMode {
	case PromptingShared:
		if strings.TrimSpace(c.SharedPrompt) == "" {
			return fmt.Errorf("%w: shared prompting requires sharedPrompt", ErrValidation)
		}
	case PromptingIndividual:
		if strings.TrimSpace(c.PromptA) == "" || strings.TrimSpace(c.PromptB) == "" {
			return fmt.Errorf("%w: individual prompting requires promptA and promptB", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown prompting mode %q", ErrValidation, c.PromptingMode)
	}

	switch c.Mode {
	case ModeAuto, ModeManual:
	default:
		return fmt.Errorf("%w: unknown experiment mode %q", ErrValidation, c.Mode)
	}

	if c.MaxTurns <= 0 {
		return fmt.Errorf("%w: maxTurns must be positive, got %d", ErrValidation, c.MaxTurns)
	}
	if strings.TrimSpace(c.ModelA) == "" || strings.TrimSpace(c.ModelB) == "" {
		return fmt.Errorf("%w: modelA and modelB are required", ErrValidation)
	}
	return nil
}

// SeedFor returns the seed prompt for slot.
func (c ExperimentConfig) SeedFor(slot Slot) string {
	if c.PromptingMode == PromptingIndividual {
		if slot == SlotB {
			return c.PromptB
		}
		return c.PromptA
	}
	return c.SharedPrompt
}

// ModelFor returns the model identifier configured for slot.
func (c ExperimentConfig) ModelFor(slot Slot) string {
	if slot == SlotB {
		return c.ModelB
	}
	return c.ModelA
}

// APIKeyFor returns the slot credential, or fallback when none is set.
func (c ExperimentConfig) APIKeyFor(slot Slot, fallback string) string {
	key := c.APIKeyA
	if slot == SlotB {
		key = c.APIKeyB
	}
	if key == "" {
		return fallback
	}
	return key
}
