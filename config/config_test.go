package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/reasoning"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderCompat, cfg.Provider.Name)
	assert.True(t, cfg.Exchange.Streaming())
	assert.Equal(t, 120*time.Second, cfg.Exchange.StreamTimeout)
	assert.Equal(t, reasoning.DefaultGreeting, cfg.Policy().Greeting)
	assert.Empty(t, cfg.Server.Listen)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("AGENTDIALOG_TEST_KEY", "sk-test")
	path := writeFile(t, `
provider:
  name: openai
  default_api_key: ${AGENTDIALOG_TEST_KEY}
exchange:
  temperature: 0.2
  stream: false
  stream_timeout: 45s
prompt:
  fallback_greeting: "Hi again."
models:
  - name: my-reasoner*
    native_reasoning: true
confidence:
  tagged: 0.85
logging:
  level: debug
  format: json
server:
  listen: ":9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Provider.Name)
	assert.Equal(t, "sk-test", cfg.Provider.DefaultAPIKey)
	assert.InDelta(t, 0.2, cfg.Exchange.Temperature, 1e-9)
	assert.False(t, cfg.Exchange.Streaming())
	assert.Equal(t, 45*time.Second, cfg.Exchange.StreamTimeout)
	assert.Equal(t, 1024, cfg.Exchange.MaxTokens)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":9090", cfg.Server.Listen)

	policy := cfg.Policy()
	assert.InDelta(t, 0.85, policy.Tagged, 1e-9)
	assert.Equal(t, "Hi again.", policy.Greeting)

	reg := cfg.Registry()
	assert.True(t, reg.Profile("my-reasoner-large").NativeReasoning)
	assert.True(t, reg.Profile("deepseek-reasoner").NativeReasoning)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "provider: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "provider:\n  name: bogus\nexchange:\n  temperature: 3\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Contains(t, err.Error(), "bogus")
	assert.Contains(t, err.Error(), "temperature")
}

func TestLoadExperiment(t *testing.T) {
	path := writeFile(t, `
shared_prompt: "Negotiate the split of {{.MaxTurns}} GPUs."
max_turns: 3
model_a: X
model_b: Y
`)
	cfg, err := LoadExperiment(path)
	require.NoError(t, err)
	assert.Equal(t, core.PromptingShared, cfg.PromptingMode)
	assert.Equal(t, core.ModeAuto, cfg.Mode)
	assert.Equal(t, 3, cfg.MaxTurns)

	_, err = LoadExperiment(writeFile(t, "max_turns: 0\nmodel_a: X\nmodel_b: Y\nshared_prompt: p\n"))
	assert.ErrorIs(t, err, core.ErrValidation)
}
