package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentdialog/conductor"
	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/experiment"
	"github.com/hupe1980/agentdialog/logging"
	"github.com/hupe1980/agentdialog/metrics"
	"github.com/hupe1980/agentdialog/prompt"
	"github.com/hupe1980/agentdialog/push"
)

// humanModel is the model name recorded on human-authored messages.
const humanModel = "human"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusClosed    Status = "closed"
)

// Config configures a session.
type Config struct {
	Model        string `json:"model" yaml:"model"`
	SystemPrompt string `json:"systemPrompt" yaml:"system_prompt"`
	APIKey       string `json:"-" yaml:"api_key,omitempty"`
	// MaxTurns caps the number of model replies; zero means unlimited.
	MaxTurns int `json:"maxTurns,omitempty" yaml:"max_turns,omitempty"`
}

// Validate checks the configuration. Errors wrap core.ErrValidation.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model is required", core.ErrValidation)
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		return fmt.Errorf("%w: system prompt is required", core.ErrValidation)
	}
	if c.MaxTurns < 0 {
		return fmt.Errorf("%w: max turns must not be negative", core.ErrValidation)
	}
	return nil
}

// State is a snapshot of one session.
type State struct {
	ID           string                     `json:"id"`
	Model        string                     `json:"model"`
	Status       Status                     `json:"status"`
	Conversation []core.ConversationMessage `json:"conversation"`
	Metrics      core.SlotMetrics           `json:"metrics"`
	CreatedAt    time.Time                  `json:"createdAt"`
	EndTime      *time.Time                 `json:"endTime,omitempty"`
	LastError    string                     `json:"lastError,omitempty"`
}

type session struct {
	cfg   Config
	lease *experiment.Lease
	agg   *metrics.Aggregator
	state State
}

func (s *session) snapshot() State {
	st := s.state
	st.Conversation = append([]core.ConversationMessage(nil), s.state.Conversation...)
	if st.Conversation == nil {
		st.Conversation = []core.ConversationMessage{}
	}
	st.Metrics = s.agg.Snapshot()[core.SlotA]
	return st
}

func (s *session) replies() int {
	n := 0
	for _, m := range s.state.Conversation {
		if m.Slot == core.SlotA {
			n++
		}
	}
	return n
}

// Options configure a Registry.
type Options struct {
	Logger      logging.Logger
	Broadcaster push.Broadcaster
	Recorder    metrics.Recorder
	Now         func() time.Time
}

// Registry holds live sessions keyed by id. It is safe for concurrent use.
type Registry struct {
	conductor *conductor.Conductor
	opts      Options

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewRegistry creates an empty Registry running exchanges through c.
func NewRegistry(c *conductor.Conductor, optFns ...func(o *Options)) *Registry {
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
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{conductor: c, opts: opts, sessions: make(map[string]*session)}
}

// Create opens a new session.
func (r *Registry) Create(cfg Config) (State, error) {
	if err := cfg.Validate(); err != nil {
		return State{}, err
	}
	id := core.NewID()
	now := r.opts.Now()
	s := &session{
		cfg:   cfg,
		lease: experiment.NewLease(id),
		agg: metrics.NewAggregator(func(o *metrics.Options) {
			o.Slots = []core.Slot{core.SlotA}
			o.Recorder = r.opts.Recorder
		}),
		state: State{ID: id, Model: cfg.Model, Status: StatusOpen, CreatedAt: now},
	}

	r.mu.Lock()
	r.sessions[id] = s
	snap := s.snapshot()
	r.mu.Unlock()

	r.opts.Recorder.ExperimentStarted()
	r.opts.Logger.Info("session created", "experiment_id", id, "model", cfg.Model)
	if err := r.opts.Broadcaster.BroadcastCreated(id, push.Metadata{
		Kind:      "session",
		Mode:      core.ModeManual,
		ModelA:    cfg.Model,
		MaxTurns:  cfg.MaxTurns,
		CreatedAt: now,
	}); err != nil {
		r.opts.Logger.Warn("push created failed", "experiment_id", id, "error", err.Error())
	}
	return snap, nil
}

func (r *Registry) lookup(id string) (*session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown session %s", core.ErrNotRunning, id)
	}
	return s, nil
}

// Get returns a snapshot of session id.
func (r *Registry) Get(id string) (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, err := r.lookup(id)
	if err != nil {
		return State{}, err
	}
	return s.snapshot(), nil
}

// History returns the conversation of session id.
func (r *Registry) History(id string) ([]core.ConversationMessage, error) {
	st, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return st.Conversation, nil
}

// List returns snapshots of all sessions ordered by creation time.
func (r *Registry) List() []State {
	r.mu.RLock()
	out := make([]State, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close ends session id. Closing a finished session returns its final state.
func (r *Registry) Close(id string) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookup(id)
	if err != nil {
		return State{}, err
	}
	if s.state.Status == StatusOpen {
		r.endLocked(s, StatusClosed)
	}
	return s.snapshot(), nil
}

// Remove forgets a session, closing it first.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		if s.state.Status == StatusOpen {
			r.endLocked(s, StatusClosed)
		}
		delete(r.sessions, id)
	}
}

func (r *Registry) endLocked(s *session, status Status) {
	s.lease.RequestStop()
	s.state.Status = status
	end := r.opts.Now()
	s.state.EndTime = &end
	r.opts.Recorder.ExperimentEnded()
	r.opts.Logger.Info("session ended", "experiment_id", s.state.ID, "status", string(status), "messages", len(s.state.Conversation))
}

// Send appends a human message to session id, runs one exchange for the
// model and returns its reply. A failed exchange rolls the human message back
// so the sender can retry.
func (r *Registry) Send(ctx context.Context, id, text string) (core.ConversationMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.ConversationMessage{}, fmt.Errorf("%w: empty message", core.ErrValidation)
	}

	r.mu.Lock()
	s, err := r.lookup(id)
	if err != nil {
		r.mu.Unlock()
		return core.ConversationMessage{}, err
	}
	if s.state.Status != StatusOpen {
		r.mu.Unlock()
		return core.ConversationMessage{}, fmt.Errorf("%w: session %s is %s", core.ErrNotRunning, id, s.state.Status)
	}
	if err := s.lease.BeginExchange(core.SlotA); err != nil {
		r.mu.Unlock()
		return core.ConversationMessage{}, err
	}
	turn := s.replies() + 1
	human := core.ConversationMessage{
		ID:         core.MessageID(core.SlotHuman, turn),
		Slot:       core.SlotHuman,
		Model:      humanModel,
		Turn:       turn,
		Answer:     text,
		Confidence: 1,
		CreatedAt:  r.opts.Now(),
	}
	s.state.Conversation = append(s.state.Conversation, human)
	prior := append([]core.ConversationMessage(nil), s.state.Conversation...)
	cfg := s.cfg
	r.mu.Unlock()

	r.push(id, push.Chunk{MessageID: human.ID, Slot: core.SlotHuman, Turn: turn, PartialAnswer: text, IsComplete: true})

	res, err := r.conductor.Exchange(ctx, conductor.Input{
		ExperimentID: id,
		Seed:         prompt.Seed{Prompt: cfg.SystemPrompt, Model: cfg.Model, OtherModel: humanModel, MaxTurns: cfg.MaxTurns},
		Prior:        prior,
		Slot:         core.SlotA,
		Turn:         turn,
		APIKey:       cfg.APIKey,
		Stopped:      s.lease.StopRequested,
	})
	s.lease.EndExchange(core.SlotA)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s.state.Status != StatusOpen {
		return core.ConversationMessage{}, fmt.Errorf("%w: session %s is %s", core.ErrNotRunning, id, s.state.Status)
	}
	if err != nil {
		s.state.Conversation = s.state.Conversation[:len(s.state.Conversation)-1]
		s.state.LastError = err.Error()
		s.agg.RecordError(core.SlotA, cfg.Model, 0)
		r.opts.Logger.Error("session exchange failed", "experiment_id", id, "error", err.Error())
		return core.ConversationMessage{}, err
	}

	s.state.Conversation = append(s.state.Conversation, res.Message)
	s.state.LastError = ""
	s.agg.RecordExchange(core.SlotA, cfg.Model, res.Message.Tokens, res.Duration)
	if cfg.MaxTurns > 0 && s.replies() >= cfg.MaxTurns {
		r.endLocked(s, StatusCompleted)
	}
	return res.Message, nil
}

func (r *Registry) push(id string, chunk push.Chunk) {
	if err := r.opts.Broadcaster.BroadcastMessageChunk(id, chunk); err != nil {
		r.opts.Logger.Warn("push chunk failed", "experiment_id", id, "message_id", chunk.MessageID, "error", err.Error())
	}
}
