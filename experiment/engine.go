// Package experiment owns the single live two-agent experiment: lifecycle,
// auto and manual stepping, and the concurrency guard that admits one
// experiment and one completion call at a time.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentdialog/conductor"
	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/logging"
	"github.com/hupe1980/agentdialog/metrics"
	"github.com/hupe1980/agentdialog/prompt"
	"github.com/hupe1980/agentdialog/push"
)

// inFlightRetry is how long the drive loop backs off when a caller holds the exchange.
const inFlightRetry = 25 * time.Millisecond

// Options configure an Engine.
type Options struct {
	Logger      logging.Logger
	Broadcaster push.Broadcaster
	Recorder    metrics.Recorder
	Guard       *Guard
	// DisableAutoRun keeps auto-mode experiments from starting the background
	// drive loop; rounds are then advanced with ProcessTurn.
	DisableAutoRun bool
	Now            func() time.Time
}

// Engine is the experiment state machine. All state mutations go through its
// methods; completion calls run without holding the state lock.
type Engine struct {
	conductor *conductor.Conductor
	opts      Options

	mu    sync.RWMutex
	cfg   *core.ExperimentConfig
	state *core.ExperimentState
	agg   *metrics.Aggregator
	lease *Lease
	done  chan struct{}
}

// New creates an Engine that runs exchanges through c.
func New(c *conductor.Conductor, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		Broadcaster: push.NoOp{},
		Recorder:    metrics.NoOpRecorder{},
		Now:         time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = push.NoOp{}
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoOpRecorder{}
	}
	if opts.Guard == nil {
		opts.Guard = NewGuard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{conductor: c, opts: opts}
}

// Start validates cfg and starts a new experiment, replacing a finished one.
// It fails with core.ErrAlreadyRunning while an experiment is live; the live
// experiment is left untouched.
func (e *Engine) Start(ctx context.Context, cfg core.ExperimentConfig) (string, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	id := core.NewID()
	lease, err := e.opts.Guard.Acquire(id)
	if err != nil {
		return "", err
	}

	now := e.opts.Now()
	e.mu.Lock()
	e.cfg = &cfg
	e.state = core.NewExperimentState(id, cfg, now)
	e.agg = metrics.NewAggregator(func(o *metrics.Options) { o.Recorder = e.opts.Recorder })
	e.state.Metrics = e.agg.Snapshot()
	e.lease = lease
	e.done = make(chan struct{})
	e.mu.Unlock()

	e.opts.Recorder.ExperimentStarted()
	e.opts.Logger.Info("experiment started",
		"experiment_id", id, "mode", string(cfg.Mode), "prompting_mode", string(cfg.PromptingMode),
		"max_turns", cfg.MaxTurns, "model_a", cfg.ModelA, "model_b", cfg.ModelB)

	if err := e.opts.Broadcaster.BroadcastCreated(id, push.Metadata{
		Kind:      "experiment",
		Mode:      cfg.Mode,
		ModelA:    cfg.ModelA,
		ModelB:    cfg.ModelB,
		MaxTurns:  cfg.MaxTurns,
		CreatedAt: now,
	}); err != nil {
		e.opts.Logger.Warn("push created failed", "experiment_id", id, "error", err.Error())
	}

	if cfg.Mode == core.ModeAuto && !e.opts.DisableAutoRun {
		go e.drive(context.WithoutCancel(ctx), lease)
	}
	return id, nil
}

// drive advances rounds until the experiment leaves the running state.
func (e *Engine) drive(ctx context.Context, lease *Lease) {
	for !lease.StopRequested() {
		_, err := e.round(ctx, lease)
		switch {
		case errors.Is(err, core.ErrExchangeInFlight):
			time.Sleep(inFlightRetry)
		case err != nil:
			return
		}
		if !e.live(lease) {
			return
		}
	}
}

func (e *Engine) live(lease *Lease) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lease == lease && e.state != nil && !e.state.Status.Terminal()
}

// Stop ends the live experiment and returns its final snapshot. It never
// waits for an in-flight completion; a result that arrives later is
// discarded. Stopping a finished experiment returns its final state.
func (e *Engine) Stop() core.ExperimentState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return core.IdleState()
	}
	if !e.state.Status.Terminal() {
		e.lease.RequestStop()
		e.finishLocked(core.StatusStopped, nil)
	}
	return e.state.Clone()
}

// finishLocked moves the state to a terminal status. Callers hold e.mu.
func (e *Engine) finishLocked(status core.Status, cause error) {
	e.state.Finish(status, e.opts.Now())
	if cause != nil {
		e.state.Error = cause.Error()
	}
	e.opts.Guard.Release(e.lease)
	close(e.done)
	e.opts.Recorder.ExperimentEnded()

	args := []any{"experiment_id", e.state.ID, "status", string(status), "messages", len(e.state.Conversation)}
	if cause != nil {
		e.opts.Logger.Error("experiment failed", append(args, "error", cause.Error())...)
		return
	}
	e.opts.Logger.Info("experiment finished", args...)
}

// GetState returns a snapshot of the current experiment, or the idle state.
func (e *Engine) GetState() core.ExperimentState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return core.IdleState()
	}
	return e.state.Clone()
}

// GetConfig returns a copy of the accepted configuration, or nil.
func (e *Engine) GetConfig() *core.ExperimentConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cfg == nil {
		return nil
	}
	cfg := *e.cfg
	return &cfg
}

// IsRunning reports whether an experiment is live.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state != nil && e.state.Running
}

// GetMetrics returns the per-slot counters of the current experiment.
func (e *Engine) GetMetrics() map[core.Slot]core.SlotMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.agg == nil {
		return map[core.Slot]core.SlotMetrics{}
	}
	return e.agg.Snapshot()
}

// Wait blocks until the current experiment reaches a terminal state or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.RLock()
	done := e.done
	e.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessTurn runs one auto-mode round: slot A, then slot B. Stop is checked
// between the two exchanges.
func (e *Engine) ProcessTurn(ctx context.Context) ([]core.ConversationMessage, error) {
	e.mu.RLock()
	lease := e.lease
	e.mu.RUnlock()
	if lease == nil {
		return nil, core.ErrNotRunning
	}
	return e.round(ctx, lease)
}

func (e *Engine) round(ctx context.Context, lease *Lease) ([]core.ConversationMessage, error) {
	var out []core.ConversationMessage
	for {
		msg, err := e.exchange(ctx, lease, stepAuto, "", "")
		if err != nil {
			return out, err
		}
		out = append(out, msg)
		if msg.Slot == core.SlotB || !e.live(lease) {
			return out, nil
		}
		if lease.StopRequested() {
			return out, nil
		}
	}
}

// StartNextTurn produces the next message in manual mode for the slot that is
// expected to speak.
func (e *Engine) StartNextTurn(ctx context.Context) (core.ConversationMessage, error) {
	e.mu.RLock()
	lease := e.lease
	e.mu.RUnlock()
	if lease == nil {
		return core.ConversationMessage{}, core.ErrNotRunning
	}
	return e.exchange(ctx, lease, stepManual, "", "")
}

// ProcessModelWithPrompt answers as slot in manual mode, appending customPrompt
// as the final user input. slot must be the slot expected to speak next.
func (e *Engine) ProcessModelWithPrompt(ctx context.Context, slot core.Slot, customPrompt string) (core.ConversationMessage, error) {
	if !slot.Valid() {
		return core.ConversationMessage{}, fmt.Errorf("%w: unknown slot %q", core.ErrWrongMode, slot)
	}
	e.mu.RLock()
	lease := e.lease
	e.mu.RUnlock()
	if lease == nil {
		return core.ConversationMessage{}, core.ErrNotRunning
	}
	return e.exchange(ctx, lease, stepManual, slot, customPrompt)
}

type stepKind int

const (
	stepAuto stepKind = iota
	stepManual
)

// ticket carries everything an exchange needs once the lock is released.
type ticket struct {
	id     string
	slot   core.Slot
	turn   int
	cfg    core.ExperimentConfig
	prior  []core.ConversationMessage
	manual bool
}

// begin validates the step against the current state and reserves the exchange.
func (e *Engine) begin(lease *Lease, kind stepKind, requested core.Slot) (ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state
	if st == nil || e.lease != lease || st.Status.Terminal() {
		return ticket{}, core.ErrNotRunning
	}
	manual := st.Mode == core.ModeManual
	if (kind == stepManual) != manual {
		return ticket{}, fmt.Errorf("%w: experiment runs in %s mode", core.ErrWrongMode, st.Mode)
	}

	slot := core.SlotForIndex(len(st.Conversation) + 1)
	if manual {
		if !st.WaitingForUser {
			return ticket{}, fmt.Errorf("%w: slot %s", core.ErrExchangeInFlight, st.NextExpectedSlot)
		}
		slot = st.NextExpectedSlot
		if requested != "" && requested != slot {
			return ticket{}, fmt.Errorf("%w: slot %s is expected to speak next", core.ErrWrongMode, slot)
		}
	}

	if err := lease.BeginExchange(slot); err != nil {
		return ticket{}, err
	}
	if manual {
		st.WaitingForUser = false
	}
	prior := make([]core.ConversationMessage, len(st.Conversation))
	copy(prior, st.Conversation)
	return ticket{
		id:     st.ID,
		slot:   slot,
		turn:   core.TurnForIndex(len(st.Conversation) + 1),
		cfg:    *e.cfg,
		prior:  prior,
		manual: manual,
	}, nil
}

// exchange runs one slot exchange and folds its outcome into the state.
func (e *Engine) exchange(ctx context.Context, lease *Lease, kind stepKind, requested core.Slot, customPrompt string) (core.ConversationMessage, error) {
	t, err := e.begin(lease, kind, requested)
	if err != nil {
		return core.ConversationMessage{}, err
	}

	res, err := e.conductor.Exchange(ctx, conductor.Input{
		ExperimentID: t.id,
		Seed:         prompt.SeedFor(t.cfg, t.slot),
		Prior:        t.prior,
		Slot:         t.slot,
		Turn:         t.turn,
		APIKey:       t.cfg.APIKeyFor(t.slot, ""),
		CustomPrompt: customPrompt,
		Stopped:      lease.StopRequested,
	})
	lease.EndExchange(t.slot)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lease != lease || e.state.Status.Terminal() {
		e.opts.Logger.Debug("discarding exchange result of finished experiment", "experiment_id", t.id, "slot", string(t.slot))
		return core.ConversationMessage{}, core.ErrNotRunning
	}

	modelName := t.cfg.ModelFor(t.slot)
	if err != nil {
		e.agg.RecordError(t.slot, modelName, 0)
		e.state.Metrics = e.agg.Snapshot()
		e.finishLocked(core.StatusError, err)
		return core.ConversationMessage{}, err
	}

	e.state.Append(res.Message)
	e.agg.RecordExchange(t.slot, modelName, res.Message.Tokens, res.Duration)
	e.state.Metrics = e.agg.Snapshot()
	e.opts.Logger.Debug("message appended",
		"experiment_id", t.id, "message_id", res.Message.ID, "turn", res.Message.Turn, "tokens", res.Message.Tokens)

	switch {
	case e.state.Complete():
		e.finishLocked(core.StatusCompleted, nil)
	case t.manual:
		e.state.WaitingForUser = true
		e.state.NextExpectedSlot = t.slot.Other()
	}
	return res.Message, nil
}
