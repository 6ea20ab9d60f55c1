package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/model"
)

func TestBuildMessages_SkipsSystem(t *testing.T) {
	contents := []core.Content{
		core.NewTextContent(core.RoleSystem, "seed"),
		core.NewTextContent(core.RoleUser, "hello"),
		core.NewTextContent(core.RoleAssistant, "hi"),
		core.NewTextContent(core.RoleUser, ""),
	}
	assert.Len(t, buildMessages(contents), 2)

	system := extractSystem(contents)
	require.Len(t, system, 1)
	assert.Equal(t, "seed", system[0].Text)
}

func TestThinkingBudget(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.ThinkingBudget = 100
		o.Registry = model.NewRegistry(model.Profile{Name: "claude-thinker", ThinkingBudget: 4096})
	})
	assert.Equal(t, int64(minThinkingBudget), m.thinkingBudget("claude-other"))
	assert.Equal(t, int64(4096), m.thinkingBudget("claude-thinker"))
	assert.True(t, m.Info().SupportsReasoning)

	params := m.buildParams(model.Request{
		Model:     "claude-thinker",
		Contents:  []core.Content{core.NewTextContent(core.RoleUser, "go")},
		MaxTokens: 1000,
	})
	assert.Equal(t, int64(5096), params.MaxTokens)
	assert.Equal(t, "claude-thinker", string(params.Model))
}

func TestUsage(t *testing.T) {
	assert.Nil(t, usage(0, 0))
	assert.Equal(t, 9, usage(4, 5).TotalTokens)
}

func TestBuildParams_DefaultModel(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })
	assert.Equal(t, "claude-3-7-sonnet-latest", m.Info().Name)

	params := m.buildParams(model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "go")},
	})
	assert.Equal(t, "claude-3-7-sonnet-latest", string(params.Model))
	assert.Equal(t, int64(4096), params.MaxTokens)
	assert.True(t, params.Temperature.Valid())
}
