// Package core provides the foundational domain types shared by the
// experiment engine, the turn conductor and the human-in-the-loop sessions:
//
//   - Slots (the two model seats A and B, plus the human seat H)
//   - ExperimentConfig (immutable run configuration and its validation)
//   - ConversationMessage (one immutable agent utterance)
//   - ExperimentState (the single mutable aggregate, exposed as snapshots)
//   - Content (role-tagged outbound prompt messages)
//   - The error taxonomy returned by every public operation
//
// The package intentionally holds no behavior beyond validation and copying;
// orchestration lives in the experiment and conductor packages.
package core
