package core

// Slot identifies a seat in the conversation.
type Slot string

const (
	// SlotA is the model that speaks first in every round.
	SlotA Slot = "A"
	// SlotB is the model that answers SlotA.
	SlotB Slot = "B"
	// SlotHuman is the human participant of a single-agent session.
	SlotHuman Slot = "H"
)

// Other returns the opposite model slot. SlotHuman maps to SlotA.
func (s Slot) Other() Slot {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

// Valid reports whether s is one of the two model slots.
func (s Slot) Valid() bool { return s == SlotA || s == SlotB }

func (s Slot) String() string { return string(s) }

// SlotForIndex returns the slot that owns the message at the given 1-based
// position of an alternating A,B,A,B conversation.
func SlotForIndex(k int) Slot {
	if k%2 == 1 {
		return SlotA
	}
	return SlotB
}

// TurnForIndex returns ⌈k/2⌉, the round number of the k-th (1-based) message.
func TurnForIndex(k int) int { return (k + 1) / 2 }
