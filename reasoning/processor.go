// Package reasoning separates a model reply into its visible answer and its
// reasoning trace, scoring how confident the separation is.
package reasoning

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hupe1980/agentdialog/model"
)

// Method names the extraction path that produced a Result.
type Method string

const (
	MethodNative           Method = "native"
	MethodNativePartial    Method = "native-partial"
	MethodFallbackLine     Method = "fallback-line"
	MethodFallbackGreeting Method = "fallback-greeting"
	MethodTagged           Method = "tagged"
	MethodMarker           Method = "marker"
	MethodNarrative        Method = "narrative"
	MethodNone             Method = "none"
)

// Result is the outcome of processing one completion.
type Result struct {
	Answer     string  `json:"answer"`
	Thinking   string  `json:"thinking"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

var (
	tagPattern      = regexp.MustCompile(`(?is)<think(?:ing)?>(.*?)</think(?:ing)?>`)
	openTagPattern  = regexp.MustCompile(`(?is)^\s*<think(?:ing)?>(.*)$`)
	bracketPattern  = regexp.MustCompile(`(?is)[\[(]\s*(?:reasoning|thinking|thoughts?)\s*:\s*(.*?)\s*[\])]`)
	labelledPattern = regexp.MustCompile(`(?is)^\s*(?:reasoning|thinking|thoughts?)\s*:\s*(.*?)\n\s*(?:final answer|answer|response)\s*:\s*(.*)$`)
	paragraphSplit  = regexp.MustCompile(`\n\s*\n`)
)

// Options configure a Processor.
type Options struct {
	Policy   Policy
	Registry *model.Registry
}

// Processor implements answer / thinking separation.
type Processor struct {
	policy   Policy
	registry *model.Registry
}

// New creates a Processor with the default policy and model registry.
func New(optFns ...func(o *Options)) *Processor {
	opts := Options{Policy: DefaultPolicy(), Registry: model.DefaultRegistry()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = model.NewRegistry()
	}
	return &Processor{policy: opts.Policy.merge(), registry: opts.Registry}
}

// Policy returns the effective policy.
func (p *Processor) Policy() Policy { return p.policy }

// Process separates answer from thinking for a completion returned by modelName.
func (p *Processor) Process(modelName string, c model.Completion) Result {
	var r Result
	if c.HasReasoning() {
		r = p.native(modelName, c)
	} else {
		r = p.heuristic(c.Text)
	}
	if r.Answer == "" {
		r = p.fallback(r.Thinking)
	}
	r.Confidence = clamp(r.Confidence)
	return r
}

func (p *Processor) native(modelName string, c model.Completion) Result {
	thinking := strings.TrimSpace(c.Reasoning)
	answer := strings.TrimSpace(tagPattern.ReplaceAllString(c.Text, ""))
	switch {
	case answer == "":
		return Result{Thinking: thinking}
	case answer == thinking:
		return Result{Answer: answer, Thinking: thinking, Confidence: p.policy.NativePartial, Method: MethodNativePartial}
	case p.registry.Profile(modelName).NativeReasoning:
		return Result{Answer: answer, Thinking: thinking, Confidence: p.policy.Native, Method: MethodNative}
	default:
		return Result{Answer: answer, Thinking: thinking, Confidence: p.policy.NativeUndeclared, Method: MethodNative}
	}
}

func (p *Processor) heuristic(text string) Result {
	text = strings.TrimSpace(text)

	if m := tagPattern.FindAllStringSubmatch(text, -1); len(m) > 0 {
		parts := make([]string, 0, len(m))
		for _, sm := range m {
			if t := strings.TrimSpace(sm[1]); t != "" {
				parts = append(parts, t)
			}
		}
		answer := strings.TrimSpace(tagPattern.ReplaceAllString(text, ""))
		return Result{Answer: answer, Thinking: strings.Join(parts, "\n\n"), Confidence: p.policy.Tagged, Method: MethodTagged}
	}
	if m := openTagPattern.FindStringSubmatch(text); m != nil {
		// Unterminated block: the reply was cut off while thinking.
		return Result{Thinking: strings.TrimSpace(m[1]), Confidence: p.policy.Tagged, Method: MethodTagged}
	}

	if m := labelledPattern.FindStringSubmatch(text); m != nil {
		return Result{
			Answer:     strings.TrimSpace(m[2]),
			Thinking:   strings.TrimSpace(m[1]),
			Confidence: p.policy.Marker,
			Method:     MethodMarker,
		}
	}
	if m := bracketPattern.FindAllStringSubmatch(text, -1); len(m) > 0 {
		parts := make([]string, 0, len(m))
		for _, sm := range m {
			parts = append(parts, strings.TrimSpace(sm[1]))
		}
		answer := collapseSpaces(bracketPattern.ReplaceAllString(text, ""))
		return Result{Answer: answer, Thinking: strings.Join(parts, "\n"), Confidence: p.policy.Marker, Method: MethodMarker}
	}

	if r, ok := p.narrative(text); ok {
		return r
	}
	return Result{Answer: text, Confidence: p.policy.None, Method: MethodNone}
}

// narrative splits a leading deliberation block from a short closing paragraph.
func (p *Processor) narrative(text string) (Result, bool) {
	paras := paragraphSplit.Split(text, -1)
	if len(paras) < 2 {
		return Result{}, false
	}
	last := strings.TrimSpace(paras[len(paras)-1])
	lead := strings.TrimSpace(strings.Join(paras[:len(paras)-1], "\n\n"))
	if last == "" || utf8.RuneCountInString(last) > p.policy.MaxConciseAnswer {
		return Result{}, false
	}
	if utf8.RuneCountInString(last) >= utf8.RuneCountInString(lead) {
		return Result{}, false
	}
	first := strings.ToLower(strings.TrimSpace(paras[0]))
	for _, cue := range p.policy.NarrativeCues {
		if strings.HasPrefix(first, cue) {
			return Result{Answer: last, Thinking: lead, Confidence: p.policy.Narrative, Method: MethodNarrative}, true
		}
	}
	return Result{}, false
}

// fallback derives an answer from a reasoning trace when the answer is empty.
func (p *Processor) fallback(thinking string) Result {
	thinking = strings.TrimSpace(thinking)
	if line := lastLine(thinking); line != "" && !p.disqualified(line) {
		return Result{Answer: line, Thinking: thinking, Confidence: p.policy.FallbackLine, Method: MethodFallbackLine}
	}
	return Result{Answer: p.policy.Greeting, Thinking: thinking, Confidence: p.policy.FallbackGreeting, Method: MethodFallbackGreeting}
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// disqualified reports whether line opens with a turn-taking artifact or filler
// word. Elongated fillers ("Hmmm", "Uhh") match their base word.
func (p *Processor) disqualified(line string) bool {
	word := firstWord(line)
	if word == "" {
		return false
	}
	for _, d := range p.policy.Disqualifiers {
		d = strings.ToLower(d)
		if word == d {
			return true
		}
		if rest, ok := strings.CutPrefix(word, d); ok && d != "" {
			tail := d[len(d)-1:]
			if strings.Trim(rest, tail) == "" {
				return true
			}
		}
	}
	return false
}

func firstWord(line string) string {
	line = strings.TrimLeftFunc(line, func(r rune) bool { return !unicode.IsLetter(r) })
	end := strings.IndexFunc(line, func(r rune) bool { return !unicode.IsLetter(r) })
	if end >= 0 {
		line = line[:end]
	}
	return strings.ToLower(line)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
