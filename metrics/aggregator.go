// Package metrics accumulates per-slot token, turn and error counters for an
// experiment and optionally exports them to Prometheus.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentdialog/core"
)

// Options configure an Aggregator.
type Options struct {
	// Slots are pre-registered so snapshots report them with zero counters.
	Slots []core.Slot
	// Recorder receives every observation. Defaults to NoOpRecorder.
	Recorder Recorder
}

// Aggregator accumulates per-slot counters. It is safe for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	slots    map[core.Slot]core.SlotMetrics
	initial  []core.Slot
	recorder Recorder
}

// NewAggregator creates an Aggregator tracking slots A and B by default.
func NewAggregator(optFns ...func(o *Options)) *Aggregator {
	opts := Options{Slots: []core.Slot{core.SlotA, core.SlotB}, Recorder: NoOpRecorder{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Recorder == nil {
		opts.Recorder = NoOpRecorder{}
	}
	a := &Aggregator{initial: opts.Slots, recorder: opts.Recorder}
	a.Reset()
	return a
}

// RecordExchange counts one successful exchange for slot.
func (a *Aggregator) RecordExchange(slot core.Slot, model string, tokens int, dur time.Duration) {
	a.mu.Lock()
	m := a.slots[slot]
	m.Turns++
	if tokens > 0 {
		m.TokensUsed += tokens
	}
	a.slots[slot] = m
	a.mu.Unlock()

	a.recorder.ObserveExchange(string(slot), model, StatusSuccess, tokens, dur)
}

// RecordError counts one failed exchange for slot.
func (a *Aggregator) RecordError(slot core.Slot, model string, dur time.Duration) {
	a.mu.Lock()
	m := a.slots[slot]
	m.Errors++
	a.slots[slot] = m
	a.mu.Unlock()

	a.recorder.ObserveExchange(string(slot), model, StatusError, 0, dur)
}

// Snapshot returns a copy of the per-slot counters.
func (a *Aggregator) Snapshot() map[core.Slot]core.SlotMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[core.Slot]core.SlotMetrics, len(a.slots))
	for k, v := range a.slots {
		out[k] = v
	}
	return out
}

// Totals sums the counters of every slot.
func (a *Aggregator) Totals() core.SlotMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	var t core.SlotMetrics
	for _, v := range a.slots {
		t.TokensUsed += v.TokensUsed
		t.Turns += v.Turns
		t.Errors += v.Errors
	}
	return t
}

// Slots lists the slots with counters in sorted order.
func (a *Aggregator) Slots() []core.Slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.Slot, 0, len(a.slots))
	for s := range a.slots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset zeroes all counters.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots = make(map[core.Slot]core.SlotMetrics, len(a.initial))
	for _, s := range a.initial {
		a.slots[s] = core.SlotMetrics{}
	}
}
