package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validShared() ExperimentConfig {
	return ExperimentConfig{
		PromptingMode: PromptingShared,
		SharedPrompt:  "Negotiate for GPUs",
		MaxTurns:      2,
		ModelA:        "X",
		ModelB:        "Y",
		Mode:          ModeAuto,
	}
}

func TestExperimentConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ExperimentConfig)
		wantErr bool
	}{
		{name: "valid shared", mutate: func(c *ExperimentConfig) {}},
		{name: "shared without prompt", mutate: func(c *ExperimentConfig) { c.SharedPrompt = "  " }, wantErr: true},
		{name: "individual with both prompts", mutate: func(c *ExperimentConfig) {
			c.PromptingMode = PromptingIndividual
			c.PromptA, c.PromptB = "buy", "sell"
		}},
		{name: "individual missing promptB", mutate: func(c *ExperimentConfig) {
			c.PromptingMode = PromptingIndividual
			c.PromptA = "buy"
		}, wantErr: true},
		{name: "unknown prompting mode", mutate: func(c *ExperimentConfig) { c.PromptingMode = "both" }, wantErr: true},
		{name: "unknown mode", mutate: func(c *ExperimentConfig) { c.Mode = "stepwise" }, wantErr: true},
		{name: "zero turns", mutate: func(c *ExperimentConfig) { c.MaxTurns = 0 }, wantErr: true},
		{name: "missing model", mutate: func(c *ExperimentConfig) { c.ModelB = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validShared()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrValidation), "expected ErrValidation, got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestExperimentConfig_Accessors(t *testing.T) {
	cfg := ExperimentConfig{
		PromptingMode: PromptingIndividual,
		PromptA:       "seller brief",
		PromptB:       "buyer brief",
		ModelA:        "m-a",
		ModelB:        "m-b",
		APIKeyB:       "key-b",
	}

	assert.Equal(t, "seller brief", cfg.SeedFor(SlotA))
	assert.Equal(t, "buyer brief", cfg.SeedFor(SlotB))
	assert.Equal(t, "m-b", cfg.ModelFor(SlotB))
	assert.Equal(t, "default", cfg.APIKeyFor(SlotA, "default"))
	assert.Equal(t, "key-b", cfg.APIKeyFor(SlotB, "default"))

	shared := validShared()
	assert.Equal(t, shared.SharedPrompt, shared.SeedFor(SlotB))

	defaulted := ExperimentConfig{}.WithDefaults()
	assert.Equal(t, PromptingShared, defaulted.PromptingMode)
	assert.Equal(t, ModeAuto, defaulted.Mode)
}
