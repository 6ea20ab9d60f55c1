package core

import "time"

// Status is the lifecycle state of an experiment.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusRunningAuto   Status = "running-auto"
	StatusManualWaiting Status = "running-manual-waiting"
	StatusStopped       Status = "stopped"
	StatusCompleted     Status = "completed"
	StatusError         Status = "error"
)

// Terminal reports whether no further turns can happen in this status.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusCompleted || s == StatusError
}

// SlotMetrics are the per-slot counters kept by the metrics aggregator.
type SlotMetrics struct {
	TokensUsed int `json:"tokensUsed"`
	Turns      int `json:"turns"`
	Errors     int `json:"errors"`
}

// ExperimentState is the single mutable aggregate of an experiment. Callers
// only ever see snapshots produced by Clone.
//
// Invariants:
//   - Conversation is an alternating A,B,A,B sequence
//   - Conversation[k-1].Turn == ⌈k/2⌉
//   - CurrentTurn <= MaxTurns
type ExperimentState struct {
	ID               string                `json:"id"`
	Status           Status                `json:"status"`
	Running          bool                  `json:"running"`
	Mode             Mode                  `json:"mode"`
	CurrentTurn      int                   `json:"currentTurn"`
	MaxTurns         int                   `json:"maxTurns"`
	Conversation     []ConversationMessage `json:"conversation"`
	Metrics          map[Slot]SlotMetrics  `json:"metrics"`
	StartTime        time.Time             `json:"startTime"`
	EndTime          *time.Time            `json:"endTime,omitempty"`
	Error            string                `json:"error,omitempty"`
	WaitingForUser   bool                  `json:"waitingForUser"`
	NextExpectedSlot Slot                  `json:"nextExpectedSlot,omitempty"`
}

// NewExperimentState creates the initial state for an accepted configuration.
func NewExperimentState(id string, cfg ExperimentConfig, now time.Time) *ExperimentState {
	st := &ExperimentState{
		ID:           id,
		Running:      true,
		Mode:         cfg.Mode,
		MaxTurns:     cfg.MaxTurns,
		Conversation: []ConversationMessage{},
		Metrics:      map[Slot]SlotMetrics{SlotA: {}, SlotB: {}},
		StartTime:    now,
	}
	if cfg.Mode == ModeManual {
		st.Status = StatusManualWaiting
		st.WaitingForUser = true
		st.NextExpectedSlot = SlotA
	} else {
		st.Status = StatusRunningAuto
	}
	return st
}

// IdleState is the snapshot reported when no experiment has been started.
func IdleState() ExperimentState {
	return ExperimentState{Status: StatusIdle, Conversation: []ConversationMessage{}, Metrics: map[Slot]SlotMetrics{}}
}

// Clone returns a deep copy safe to hand to callers.
func (s *ExperimentState) Clone() ExperimentState {
	cp := *s
	cp.Conversation = make([]ConversationMessage, len(s.Conversation))
	copy(cp.Conversation, s.Conversation)
	if s.EndTime != nil {
		end := *s.EndTime
		cp.EndTime = &end
	}
	cp.Metrics = make(map[Slot]SlotMetrics, len(s.Metrics))
	for k, v := range s.Metrics {
		cp.Metrics[k] = v
	}
	return cp
}

// Complete reports whether every message of every round has been appended.
func (s *ExperimentState) Complete() bool { return len(s.Conversation) >= 2*s.MaxTurns }

// Append adds msg and advances CurrentTurn. It does not validate ordering;
// the engine is the sole writer and assigns slots and turns itself.
func (s *ExperimentState) Append(msg ConversationMessage) {
	s.Conversation = append(s.Conversation, msg)
	s.CurrentTurn = TurnForIndex(len(s.Conversation))
}

// Finish marks the state terminal.
func (s *ExperimentState) Finish(status Status, now time.Time) {
	s.Status = status
	s.Running = false
	s.WaitingForUser = false
	s.EndTime = &now
}
