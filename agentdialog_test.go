package agentdialog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdialog/config"
	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/internal/testutil"
	"github.com/hupe1980/agentdialog/model"
	"github.com/hupe1980/agentdialog/model/anthropic"
	"github.com/hupe1980/agentdialog/model/compat"
	"github.com/hupe1980/agentdialog/model/openai"
	"github.com/hupe1980/agentdialog/session"
)

func TestNewModel_Providers(t *testing.T) {
	cases := map[string]any{
		config.ProviderOpenAI:    &openai.Model{},
		config.ProviderAnthropic: &anthropic.Model{},
		config.ProviderCompat:    &compat.Model{},
		config.ProviderMock:      &model.MockModel{},
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Provider.Name = name
			cfg.Provider.DefaultAPIKey = "test-key"
			m, err := NewModel(cfg)
			require.NoError(t, err)
			assert.IsType(t, want, m)
		})
	}

	cfg := config.Default()
	cfg.Provider.Name = "bogus"
	_, err := NewModel(cfg)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(func(o *Options) {
		o.Config = config.Default()
		o.Config.Exchange.Temperature = 5
	})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRunExperiment(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(
		model.Scripted{Text: "I need four GPUs."},
		model.Scripted{Text: "<think>two is fair</think>I can give you two."},
	)
	rec := &testutil.RecordingBroadcaster{}
	d, err := New(func(o *Options) {
		o.Model = m
		o.Broadcaster = rec
	})
	require.NoError(t, err)

	st, err := d.RunExperiment(context.Background(), testutil.SharedConfig("Negotiate GPUs.", 1, core.ModeAuto))
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, st.Status)
	require.Len(t, st.Conversation, 2)
	assert.Equal(t, "I can give you two.", st.Conversation[1].Answer)
	assert.Equal(t, "two is fair", st.Conversation[1].Thinking)
	require.Len(t, rec.Created(), 1)
	assert.Equal(t, "experiment", rec.Created()[0].Meta.Kind)

	_, err = d.RunExperiment(context.Background(), testutil.SharedConfig("p", 1, core.ModeManual))
	assert.ErrorIs(t, err, core.ErrWrongMode)

	catalog, ok := d.Catalog()
	require.True(t, ok)
	assert.True(t, catalog.HealthCheck(context.Background()))
}

func TestSessionsShareBackend(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Text: "Welcome aboard."})
	d, err := New(func(o *Options) { o.Model = m })
	require.NoError(t, err)

	st, err := d.Sessions().Create(session.Config{Model: "X", SystemPrompt: "Be a concierge."})
	require.NoError(t, err)
	reply, err := d.Sessions().Send(context.Background(), st.ID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Welcome aboard.", reply.Answer)
	assert.Same(t, m, d.Model())
}
