package conductor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/internal/testutil"
	"github.com/hupe1980/agentdialog/model"
	"github.com/hupe1980/agentdialog/prompt"
)

func seed() prompt.Seed {
	return prompt.Seed{Prompt: "Negotiate for GPUs", Model: "X", OtherModel: "Y", MaxTurns: 2}
}

func TestExchange_StreamsAndProcesses(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Text: "<think>they need 4</think>I offer four GPUs.", Tokens: 21})
	rec := &testutil.RecordingBroadcaster{}
	c := New(m, func(o *Options) { o.Broadcaster = rec })

	res, err := c.Exchange(context.Background(), Input{ExperimentID: "e1", Seed: seed(), Slot: core.SlotA, Turn: 1})
	require.NoError(t, err)

	msg := res.Message
	assert.Equal(t, "A-1", msg.ID)
	assert.Equal(t, core.SlotA, msg.Slot)
	assert.Equal(t, 1, msg.Turn)
	assert.Equal(t, "X", msg.Model)
	assert.Equal(t, "I offer four GPUs.", msg.Answer)
	assert.Equal(t, "they need 4", msg.Thinking)
	assert.Equal(t, 21, msg.Tokens)
	assert.InDelta(t, 0.8, msg.Confidence, 1e-9)

	chunks := rec.Chunks()
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.True(t, last.Chunk.IsComplete)
	assert.Equal(t, "I offer four GPUs.", last.Chunk.PartialAnswer)
	for _, ch := range chunks[:len(chunks)-1] {
		assert.False(t, ch.Chunk.IsComplete)
		assert.Equal(t, "e1", ch.ExperimentID)
	}
	assert.Equal(t, "<think>they need 4</think>I offer four GPUs.", chunks[len(chunks)-2].Chunk.PartialAnswer)
	assert.Len(t, rec.Completed(), 1)
}

func TestExchange_EstimatesTokensAndUsesDefaultKey(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Text: "Fine."})
	c := New(m, func(o *Options) {
		o.Stream = false
		o.DefaultAPIKey = "default-key"
	})

	res, err := c.Exchange(context.Background(), Input{Seed: seed(), Slot: core.SlotA, Turn: 1})
	require.NoError(t, err)
	assert.Greater(t, res.Message.Tokens, 0)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "default-key", reqs[0].APIKey)
	assert.Equal(t, "X", reqs[0].Model)
	assert.False(t, reqs[0].Stream)

	m.Enqueue(model.Scripted{Text: "Ok."})
	_, err = c.Exchange(context.Background(), Input{Seed: seed(), Slot: core.SlotA, Turn: 1, APIKey: "slot-key"})
	require.NoError(t, err)
	assert.Equal(t, "slot-key", m.Requests()[1].APIKey)
}

func TestExchange_EmptyAnswerFallback(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Reasoning: "Both teams need compute.\nI propose we split the GPUs evenly."})
	c := New(m)

	res, err := c.Exchange(context.Background(), Input{Seed: seed(), Slot: core.SlotB, Turn: 1})
	require.NoError(t, err)
	assert.Equal(t, "I propose we split the GPUs evenly.", res.Message.Answer)
	assert.Equal(t, model.KindReasoningOnly, res.Completion.Kind)
}

func TestExchange_Timeout(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Block: true})
	c := New(m, func(o *Options) { o.StreamTimeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := c.Exchange(context.Background(), Input{Seed: seed(), Slot: core.SlotB, Turn: 2})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, err, core.ErrStreamTimeout)

	var tf *core.TurnFailedError
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, core.SlotB, tf.Slot)
	assert.Equal(t, 2, tf.Turn)
}

func TestExchange_ModelError(t *testing.T) {
	boom := errors.New("backend unavailable")
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Err: boom})

	_, err := New(m).Exchange(context.Background(), Input{Seed: seed(), Slot: core.SlotA, Turn: 1})
	assert.ErrorIs(t, err, boom)
	var tf *core.TurnFailedError
	assert.ErrorAs(t, err, &tf)
}

func TestExchange_PushFailureIgnored(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Text: "Deal."})
	rec := &testutil.RecordingBroadcaster{Err: errors.New("observer gone")}

	res, err := New(m, func(o *Options) { o.Broadcaster = rec }).
		Exchange(context.Background(), Input{Seed: seed(), Slot: core.SlotA, Turn: 1})
	require.NoError(t, err)
	assert.Equal(t, "Deal.", res.Message.Answer)
	assert.NotEmpty(t, rec.Chunks())
}

func TestExchange_StopBetweenChunks(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Text: "a long streamed answer", Delay: time.Second})

	_, err := New(m).Exchange(context.Background(), Input{
		Seed:    seed(),
		Slot:    core.SlotA,
		Turn:    1,
		Stopped: func() bool { return true },
	})
	assert.ErrorIs(t, err, core.ErrStopped)
}

func TestExchange_PromptIncludesHistory(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Text: "Counter."})
	prior := testutil.NewConversationBuilder().Message("Opening offer").Build()

	_, err := New(m).Exchange(context.Background(), Input{Seed: seed(), Prior: prior, Slot: core.SlotB, Turn: 1})
	require.NoError(t, err)
	contents := m.Requests()[0].Contents
	require.Len(t, contents, 2)
	assert.Equal(t, core.RoleUser, contents[1].Role)
	assert.Contains(t, contents[1].Text(), "Opening offer")
}
