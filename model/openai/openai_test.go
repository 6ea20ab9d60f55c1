package openai

import (
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/model"
)

func TestReasoningFrom(t *testing.T) {
	assert.Equal(t, "step one", reasoningFrom(`{"content":"","reasoning_content":"step one"}`))
	assert.Equal(t, "alt", reasoningFrom(`{"reasoning":"alt"}`))
	assert.Empty(t, reasoningFrom(`{"content":"hi"}`))
	assert.Empty(t, reasoningFrom(""))
}

func TestUsageFrom(t *testing.T) {
	assert.Nil(t, usageFrom(0, 0, 0))
	u := usageFrom(3, 4, 0)
	assert.Equal(t, 7, u.TotalTokens)
}

func TestBuildParams(t *testing.T) {
	client := openai.NewClient()
	m := NewModelFromClient(&client, func(o *Options) { o.Model = "default-model" })

	params := m.buildParams(model.Request{
		Model: "gpt-4o",
		Contents: []core.Content{
			core.NewTextContent(core.RoleSystem, "seed"),
			core.NewTextContent(core.RoleUser, "hello"),
			core.NewTextContent(core.RoleAssistant, "hi"),
		},
		MaxTokens: 128,
		Stream:    true,
	})
	assert.Len(t, params.Messages, 3)
	assert.Equal(t, "gpt-4o", string(params.Model))
	assert.Equal(t, int64(128), params.MaxCompletionTokens.Value)
	assert.Equal(t, "default-model", m.Info().Name)
}
