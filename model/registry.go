package model

import (
	"sort"
	"strings"
	"sync"
)

// Profile describes the reasoning capabilities of a model.
type Profile struct {
	Name            string `json:"name" yaml:"name"`                                           // exact id, or a prefix ending in "*"
	NativeReasoning bool   `json:"native_reasoning" yaml:"native_reasoning"`                   // backend returns a reasoning side channel
	ElicitThinking  *bool  `json:"elicit_thinking,omitempty" yaml:"elicit_thinking,omitempty"` // nil: elicit unless native
	ThinkingBudget  int64  `json:"thinking_budget,omitempty" yaml:"thinking_budget,omitempty"`
}

// Elicits reports whether prompts for this model should ask for visible thinking.
func (p Profile) Elicits() bool {
	if p.ElicitThinking != nil {
		return *p.ElicitThinking
	}
	return !p.NativeReasoning
}

func (p Profile) matches(name string) bool {
	if prefix, ok := strings.CutSuffix(p.Name, "*"); ok {
		return strings.HasPrefix(name, prefix)
	}
	return p.Name == name
}

// Registry is a concurrency safe lookup of model profiles.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates a registry seeded with the given profiles.
func NewRegistry(profiles ...Profile) *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		r.Register(p)
	}
	return r
}

// DefaultRegistry knows the common natively reasoning model families.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Profile{Name: "deepseek-reasoner", NativeReasoning: true},
		Profile{Name: "deepseek-r1*", NativeReasoning: true},
		Profile{Name: "o1*", NativeReasoning: true},
		Profile{Name: "o3*", NativeReasoning: true},
		Profile{Name: "o4*", NativeReasoning: true},
		Profile{Name: "qwq*", NativeReasoning: true},
	)
}

// Register adds or replaces a profile.
func (r *Registry) Register(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
}

// Lookup returns the profile for name. Exact entries win over the longest
// matching prefix entry.
func (r *Registry) Lookup(name string) (Profile, bool) {
	if r == nil {
		return Profile{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.profiles[name]; ok {
		return p, true
	}
	var (
		best  Profile
		found bool
	)
	for _, p := range r.profiles {
		if p.matches(name) && (!found || len(p.Name) > len(best.Name)) {
			best, found = p, true
		}
	}
	return best, found
}

// Profile returns the profile for name, or a non-native default.
func (r *Registry) Profile(name string) Profile {
	if p, ok := r.Lookup(name); ok {
		p.Name = name
		return p
	}
	return Profile{Name: name}
}

// Names lists registered profile names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
