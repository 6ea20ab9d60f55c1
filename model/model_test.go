package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdialog/core"
)

// generate runs one request against m and drains both channels.
func generate(t *testing.T, m Model, req Request) ([]Response, error) {
	t.Helper()
	respCh, errCh := m.Generate(context.Background(), req)
	var out []Response
	for r := range respCh {
		out = append(out, r)
	}
	return out, <-errCh
}

func TestNewCompletion_Kind(t *testing.T) {
	assert.Equal(t, KindAnswer, NewCompletion("m", "hi", "", 1).Kind)
	assert.Equal(t, KindReasoningOnly, NewCompletion("m", "  ", "thought", 1).Kind)
	assert.Equal(t, KindBoth, NewCompletion("m", "hi", "thought", 1).Kind)
	assert.False(t, NewCompletion("m", "hi", "", 1).HasReasoning())
	assert.True(t, NewCompletion("m", "", "x", 1).HasReasoning())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens())
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcd", "e"))
}

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	p := r.Profile("deepseek-r1:14b")
	assert.True(t, p.NativeReasoning)
	assert.False(t, p.Elicits())
	assert.Equal(t, "deepseek-r1:14b", p.Name)

	p = r.Profile("llama3")
	assert.False(t, p.NativeReasoning)
	assert.True(t, p.Elicits())

	off := false
	r.Register(Profile{Name: "llama3", ElicitThinking: &off})
	assert.False(t, r.Profile("llama3").Elicits())

	r.Register(Profile{Name: "o3-mini", NativeReasoning: false})
	p, ok := r.Lookup("o3-mini")
	require.True(t, ok)
	assert.False(t, p.NativeReasoning, "exact entry wins over prefix")

	assert.Equal(t, []string{
		"deepseek-r1*", "deepseek-reasoner", "llama3", "o1*", "o3*", "o3-mini", "o4*", "qwq*",
	}, r.Names())
}

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.Enqueue(Scripted{Text: "hello there friend", Reasoning: "plan", Tokens: 7})

	out, err := generate(t, m, Request{
		Model:    "mock-a",
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")},
		Stream:   true,
	})
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.True(t, out[0].Partial)
	assert.Equal(t, "hello ", out[0].Content.Text())

	final := out[len(out)-1]
	assert.False(t, final.Partial)
	c := final.Completion("mock-a")
	assert.Equal(t, KindBoth, c.Kind)
	assert.Equal(t, "hello there friend", c.Text)
	assert.Equal(t, 7, c.TokensUsed)
	assert.Equal(t, "mock-a", c.Model)
	assert.Len(t, m.Requests(), 1)
}

func TestMockModel_DefaultsAndErrors(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("ping", "pong")

	out, err := generate(t, m, Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "ping")},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "pong", out[0].Content.Text())

	boom := errors.New("boom")
	m.Enqueue(Scripted{Err: boom})
	_, err = generate(t, m, Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "ping")},
	})
	assert.ErrorIs(t, err, boom)

	_, err = generate(t, m, Request{})
	assert.Error(t, err)
}

func TestMockModel_Catalog(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.SetModels("a", "b")
	assert.True(t, m.HealthCheck(context.Background()))
	names, err := m.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

var (
	_ Model   = (*MockModel)(nil)
	_ Catalog = (*MockModel)(nil)
)
