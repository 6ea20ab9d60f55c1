// Package session implements the single-agent, human-in-the-loop variant of
// an experiment: one model converses with a human-authored running dialogue.
// Unlike the two-agent engine, any number of sessions may be live at once;
// the Registry keys them by id.
package session
