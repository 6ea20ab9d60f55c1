package testutil

import (
	"sync"

	"github.com/hupe1980/agentdialog/push"
)

// CreatedEvent is a recorded BroadcastCreated call.
type CreatedEvent struct {
	ExperimentID string
	Meta         push.Metadata
}

// ChunkEvent is a recorded BroadcastMessageChunk call.
type ChunkEvent struct {
	ExperimentID string
	Chunk        push.Chunk
}

// RecordingBroadcaster records every push event. When Err is set each call
// still records and then fails with Err.
type RecordingBroadcaster struct {
	Err error

	mu      sync.Mutex
	created []CreatedEvent
	chunks  []ChunkEvent
}

// BroadcastCreated implements push.Broadcaster.
func (r *RecordingBroadcaster) BroadcastCreated(id string, meta push.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, CreatedEvent{ExperimentID: id, Meta: meta})
	return r.Err
}

// BroadcastMessageChunk implements push.Broadcaster.
func (r *RecordingBroadcaster) BroadcastMessageChunk(id string, chunk push.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, ChunkEvent{ExperimentID: id, Chunk: chunk})
	return r.Err
}

// Created returns the recorded created events.
func (r *RecordingBroadcaster) Created() []CreatedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CreatedEvent(nil), r.created...)
}

// Chunks returns the recorded chunk events.
func (r *RecordingBroadcaster) Chunks() []ChunkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChunkEvent(nil), r.chunks...)
}

// Completed returns only the chunks marked complete.
func (r *RecordingBroadcaster) Completed() []push.Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []push.Chunk
	for _, c := range r.chunks {
		if c.Chunk.IsComplete {
			out = append(out, c.Chunk)
		}
	}
	return out
}
