package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdialog/conductor"
	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/internal/testutil"
	"github.com/hupe1980/agentdialog/model"
)

func newRegistry(m model.Model, rec *testutil.RecordingBroadcaster) *Registry {
	c := conductor.New(m, func(o *conductor.Options) {
		o.Stream = false
		o.Broadcaster = rec
	})
	return NewRegistry(c, func(o *Options) { o.Broadcaster = rec })
}

func config() Config {
	return Config{Model: "X", SystemPrompt: "You are a travel agent.", APIKey: "k-1"}
}

func TestCreate_Validation(t *testing.T) {
	r := newRegistry(model.NewMockModel("mock", "mock"), &testutil.RecordingBroadcaster{})

	_, err := r.Create(Config{SystemPrompt: "p"})
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = r.Create(Config{Model: "X"})
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = r.Create(Config{Model: "X", SystemPrompt: "p", MaxTurns: -1})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Empty(t, r.List())
}

func TestCreate_BroadcastsSessionKind(t *testing.T) {
	rec := &testutil.RecordingBroadcaster{}
	r := newRegistry(model.NewMockModel("mock", "mock"), rec)

	st, err := r.Create(config())
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, st.Status)
	assert.NotEmpty(t, st.ID)
	assert.Empty(t, st.Conversation)

	created := rec.Created()
	require.Len(t, created, 1)
	assert.Equal(t, st.ID, created[0].ExperimentID)
	assert.Equal(t, "session", created[0].Meta.Kind)
	assert.Equal(t, "X", created[0].Meta.ModelA)
}

func TestSend_AppendsHumanAndReply(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(
		model.Scripted{Text: "<think>beach trip</think>Try Lisbon.", Tokens: 12},
		model.Scripted{Text: "Book in May.", Tokens: 5},
	)
	rec := &testutil.RecordingBroadcaster{}
	r := newRegistry(m, rec)
	st, err := r.Create(config())
	require.NoError(t, err)

	reply, err := r.Send(context.Background(), st.ID, "  Where should I go?  ")
	require.NoError(t, err)
	assert.Equal(t, "A-1", reply.ID)
	assert.Equal(t, "Try Lisbon.", reply.Answer)
	assert.Equal(t, "beach trip", reply.Thinking)

	_, err = r.Send(context.Background(), st.ID, "When?")
	require.NoError(t, err)

	history, err := r.History(st.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, core.SlotHuman, history[0].Slot)
	assert.Equal(t, "H-1", history[0].ID)
	assert.Equal(t, "Where should I go?", history[0].Answer)
	assert.Equal(t, core.SlotA, history[1].Slot)
	assert.Equal(t, "H-2", history[2].ID)
	assert.Equal(t, 2, history[3].Turn)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "k-1", reqs[0].APIKey)
	second := reqs[1].Contents
	require.GreaterOrEqual(t, len(second), 4)
	assert.Equal(t, core.RoleSystem, second[0].Role)
	assert.Equal(t, core.RoleUser, second[1].Role)
	assert.Equal(t, core.RoleAssistant, second[2].Role)
	assert.Equal(t, "Try Lisbon.", second[2].Text())
	assert.Equal(t, "When?", second[len(second)-1].Text())

	got, err := r.Get(st.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Metrics.Turns)
	assert.Equal(t, 17, got.Metrics.TokensUsed)

	var human int
	for _, c := range rec.Completed() {
		if c.Slot == core.SlotHuman {
			human++
		}
	}
	assert.Equal(t, 2, human)
}

func TestSend_FailureRollsBack(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Err: errors.New("rate limited")}, model.Scripted{Text: "Hello there."})
	r := newRegistry(m, &testutil.RecordingBroadcaster{})
	st, err := r.Create(config())
	require.NoError(t, err)

	_, err = r.Send(context.Background(), st.ID, "Hi")
	var tf *core.TurnFailedError
	require.ErrorAs(t, err, &tf)

	got, err := r.Get(st.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Conversation)
	assert.Equal(t, 1, got.Metrics.Errors)
	assert.Contains(t, got.LastError, "rate limited")
	assert.Equal(t, StatusOpen, got.Status)

	reply, err := r.Send(context.Background(), st.ID, "Hi")
	require.NoError(t, err)
	assert.Equal(t, "A-1", reply.ID)
	got, _ = r.Get(st.ID)
	assert.Empty(t, got.LastError)
}

func TestSend_Rejections(t *testing.T) {
	r := newRegistry(model.NewMockModel("mock", "mock"), &testutil.RecordingBroadcaster{})

	_, err := r.Send(context.Background(), "missing", "hi")
	assert.ErrorIs(t, err, core.ErrNotRunning)

	st, err := r.Create(config())
	require.NoError(t, err)
	_, err = r.Send(context.Background(), st.ID, "   ")
	assert.ErrorIs(t, err, core.ErrValidation)

	closed, err := r.Close(st.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.EndTime)

	_, err = r.Send(context.Background(), st.ID, "hi")
	assert.ErrorIs(t, err, core.ErrNotRunning)

	again, err := r.Close(st.ID)
	require.NoError(t, err)
	assert.Equal(t, closed.EndTime, again.EndTime)
}

func TestSend_OverlapRejected(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Text: "slow reply", Delay: 200 * time.Millisecond}, model.Scripted{Text: "unused"})
	r := newRegistry(m, &testutil.RecordingBroadcaster{})
	st, err := r.Create(config())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := r.Send(context.Background(), st.ID, "first")
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return len(m.Requests()) == 1 }, time.Second, 5*time.Millisecond)
	_, err = r.Send(context.Background(), st.ID, "second")
	assert.ErrorIs(t, err, core.ErrExchangeInFlight)
	wg.Wait()

	history, err := r.History(st.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSend_CloseDiscardsReply(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Enqueue(model.Scripted{Text: "late reply", Delay: 200 * time.Millisecond})
	r := newRegistry(m, &testutil.RecordingBroadcaster{})
	st, err := r.Create(config())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Send(context.Background(), st.ID, "hello")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return len(m.Requests()) == 1 }, time.Second, 5*time.Millisecond)
	_, err = r.Close(st.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, <-errCh, core.ErrNotRunning)
	history, err := r.History(st.ID)
	require.NoError(t, err)
	for _, msg := range history {
		assert.NotEqual(t, core.SlotA, msg.Slot)
	}
}

func TestSend_MaxTurnsCompletes(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	r := newRegistry(m, &testutil.RecordingBroadcaster{})
	cfg := config()
	cfg.MaxTurns = 1
	st, err := r.Create(cfg)
	require.NoError(t, err)

	_, err = r.Send(context.Background(), st.ID, "only once")
	require.NoError(t, err)
	got, err := r.Get(st.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	_, err = r.Send(context.Background(), st.ID, "again")
	assert.ErrorIs(t, err, core.ErrNotRunning)
}

func TestList_OrderAndRemove(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var n int
	c := conductor.New(model.NewMockModel("mock", "mock"))
	r := NewRegistry(c, func(o *Options) {
		o.Now = func() time.Time {
			n++
			return base.Add(time.Duration(n) * time.Second)
		}
	})
	first, err := r.Create(config())
	require.NoError(t, err)
	second, err := r.Create(config())
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	r.Remove(first.ID)
	_, err = r.Get(first.ID)
	assert.ErrorIs(t, err, core.ErrNotRunning)
	assert.Len(t, r.List(), 1)
}
