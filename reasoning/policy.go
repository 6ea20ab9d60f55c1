package reasoning

// Policy holds the tunable confidence values and heuristics of the
// processor. Values are approximate: callers may rely on their ordering
// (native > marker > narrative > none), not on the exact numbers.
type Policy struct {
	Native           float64 `json:"native" yaml:"native"`
	NativeUndeclared float64 `json:"native_undeclared" yaml:"native_undeclared"`
	NativePartial    float64 `json:"native_partial" yaml:"native_partial"`
	FallbackLine     float64 `json:"fallback_line" yaml:"fallback_line"`
	FallbackGreeting float64 `json:"fallback_greeting" yaml:"fallback_greeting"`
	Tagged           float64 `json:"tagged" yaml:"tagged"`
	Marker           float64 `json:"marker" yaml:"marker"`
	Narrative        float64 `json:"narrative" yaml:"narrative"`
	None             float64 `json:"none" yaml:"none"`

	// Greeting replaces an answer that could not be recovered.
	Greeting string `json:"greeting" yaml:"greeting"`
	// Disqualifiers are leading words that rule out a reasoning line as an answer.
	Disqualifiers []string `json:"disqualifiers" yaml:"disqualifiers"`
	// NarrativeCues mark a leading paragraph that opens with one as deliberation.
	NarrativeCues []string `json:"narrative_cues" yaml:"narrative_cues"`
	// MaxConciseAnswer bounds the final paragraph of a narrative split, in runes.
	MaxConciseAnswer int `json:"max_concise_answer" yaml:"max_concise_answer"`
}

// DefaultGreeting is substituted when no answer can be derived.
const DefaultGreeting = "Hello! I'm ready to continue our conversation."

// DefaultPolicy returns the stock confidence policy.
func DefaultPolicy() Policy {
	return Policy{
		Native:           1.0,
		NativeUndeclared: 0.9,
		NativePartial:    0.7,
		FallbackLine:     0.6,
		FallbackGreeting: 0.2,
		Tagged:           0.8,
		Marker:           0.7,
		Narrative:        0.5,
		None:             0.3,
		Greeting:         DefaultGreeting,
		Disqualifiers:    []string{"user", "assistant", "hmm", "um", "uh"},
		NarrativeCues: []string{
			"let me", "i think", "i need to", "i should", "first,", "considering",
			"my goal", "my strategy", "i'll", "i will",
		},
		MaxConciseAnswer: 400,
	}
}

// merge fills zero fields of p from DefaultPolicy.
func (p Policy) merge() Policy {
	d := DefaultPolicy()
	fill := func(v *float64, def float64) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&p.Native, d.Native)
	fill(&p.NativeUndeclared, d.NativeUndeclared)
	fill(&p.NativePartial, d.NativePartial)
	fill(&p.FallbackLine, d.FallbackLine)
	fill(&p.FallbackGreeting, d.FallbackGreeting)
	fill(&p.Tagged, d.Tagged)
	fill(&p.Marker, d.Marker)
	fill(&p.Narrative, d.Narrative)
	fill(&p.None, d.None)
	if p.Greeting == "" {
		p.Greeting = d.Greeting
	}
	if p.Disqualifiers == nil {
		p.Disqualifiers = d.Disqualifiers
	}
	if p.NarrativeCues == nil {
		p.NarrativeCues = d.NarrativeCues
	}
	if p.MaxConciseAnswer <= 0 {
		p.MaxConciseAnswer = d.MaxConciseAnswer
	}
	return p
}
