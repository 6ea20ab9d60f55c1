package experiment

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/agentdialog/core"
)

// Guard admits at most one live experiment per process.
type Guard struct {
	mu     sync.Mutex
	active *Lease
}

// NewGuard creates an empty Guard.
func NewGuard() *Guard { return &Guard{} }

// Acquire grants a lease for experiment id, or fails with core.ErrAlreadyRunning
// while another lease is held.
func (g *Guard) Acquire(id string) (*Lease, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrAlreadyRunning, g.active.id)
	}
	g.active = NewLease(id)
	return g.active, nil
}

// Release frees the experiment slot held by l. Releasing a stale lease is a no-op.
func (g *Guard) Release(l *Lease) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == l {
		g.active = nil
	}
}

// Active returns the id of the live experiment, if any.
func (g *Guard) Active() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		return "", false
	}
	return g.active.id, true
}

// Lease represents one live experiment. It serializes completion calls and
// carries the cooperative stop flag.
type Lease struct {
	id   string
	stop atomic.Bool

	mu       sync.Mutex
	inFlight core.Slot
}

// NewLease creates a standalone lease.
func NewLease(id string) *Lease { return &Lease{id: id} }

// ID returns the experiment id the lease was granted for.
func (l *Lease) ID() string { return l.id }

// BeginExchange marks slot as mid-exchange. It fails with
// core.ErrExchangeInFlight while any exchange is outstanding and with
// core.ErrNotRunning once stop was requested.
func (l *Lease) BeginExchange(slot core.Slot) error {
	if l.stop.Load() {
		return core.ErrNotRunning
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight != "" {
		return fmt.Errorf("%w: slot %s", core.ErrExchangeInFlight, l.inFlight)
	}
	l.inFlight = slot
	return nil
}

// EndExchange clears the in-flight marker for slot.
func (l *Lease) EndExchange(slot core.Slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight == slot {
		l.inFlight = ""
	}
}

// InFlight reports the slot currently mid-exchange.
func (l *Lease) InFlight() (core.Slot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight, l.inFlight != ""
}

// RequestStop sets the cooperative stop flag.
func (l *Lease) RequestStop() { l.stop.Store(true) }

// StopRequested reports whether stop was requested.
func (l *Lease) StopRequested() bool { return l.stop.Load() }
