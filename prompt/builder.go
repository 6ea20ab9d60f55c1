// Package prompt assembles the outbound message list for one exchange from
// the seed prompt and the prior conversation, seen from the target slot.
package prompt

import (
	"strings"

	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/internal/util"
	"github.com/hupe1980/agentdialog/model"
)

// DefaultThinkingInstruction asks non-native models to expose their reasoning.
const DefaultThinkingInstruction = "Before you reply, think through your reasoning inside <think></think> tags. " +
	"After the closing tag, write only the message you want the other participant to read."

// Seed is the static prompt material for one slot.
type Seed struct {
	Prompt     string // may reference {{.Slot}} {{.Model}} {{.OtherModel}} {{.MaxTurns}}
	Model      string
	OtherModel string
	MaxTurns   int
}

// SeedFor resolves the seed of slot from an experiment configuration.
func SeedFor(cfg core.ExperimentConfig, slot core.Slot) Seed {
	return Seed{
		Prompt:     cfg.SeedFor(slot),
		Model:      cfg.ModelFor(slot),
		OtherModel: cfg.ModelFor(slot.Other()),
		MaxTurns:   cfg.MaxTurns,
	}
}

// Options configure a Builder.
type Options struct {
	ThinkingInstruction string
	Registry            *model.Registry
}

// Builder is a pure, deterministic prompt builder.
type Builder struct {
	opts Options
}

// New creates a Builder.
func New(optFns ...func(o *Options)) *Builder {
	opts := Options{ThinkingInstruction: DefaultThinkingInstruction}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = model.DefaultRegistry()
	}
	return &Builder{opts: opts}
}

// ForExperiment builds the messages for slot using the seed configured for it.
func (b *Builder) ForExperiment(cfg core.ExperimentConfig, prior []core.ConversationMessage, slot core.Slot, custom string) []core.Content {
	return b.Build(SeedFor(cfg, slot), prior, slot, custom)
}

// Build returns the outbound messages for slot. Messages authored by slot are
// replayed as assistant turns, all others as user turns. Only answers are
// replayed, never thinking.
func (b *Builder) Build(seed Seed, prior []core.ConversationMessage, slot core.Slot, custom string) []core.Content {
	system := b.render(seed, slot)
	msgs := make([]core.Content, 0, len(prior)+2)
	msgs = append(msgs, core.NewTextContent(core.RoleSystem, system))

	if len(prior) == 0 || prior[0].Slot == slot {
		msgs = append(msgs, core.NewTextContent(core.RoleUser, system))
	}

	spoken := 0
	for _, m := range prior {
		role := core.RoleUser
		if m.Slot == slot {
			role = core.RoleAssistant
			spoken++
		}
		msgs = append(msgs, core.NewTextContent(role, m.Answer))
	}

	if custom = strings.TrimSpace(custom); custom != "" {
		msgs = appendUser(msgs, custom)
	}

	if spoken == 0 && b.opts.ThinkingInstruction != "" && b.opts.Registry.Profile(seed.Model).Elicits() {
		msgs = appendUser(msgs, b.opts.ThinkingInstruction)
	}
	return msgs
}

func (b *Builder) render(seed Seed, slot core.Slot) string {
	out, err := util.RenderTemplate(seed.Prompt, map[string]any{
		"Slot":       string(slot),
		"Model":      seed.Model,
		"OtherModel": seed.OtherModel,
		"MaxTurns":   seed.MaxTurns,
	})
	if err != nil {
		return seed.Prompt
	}
	return out
}

// appendUser merges text into a trailing user message or appends a new one.
func appendUser(msgs []core.Content, text string) []core.Content {
	if n := len(msgs); n > 0 && msgs[n-1].Role == core.RoleUser {
		merged := msgs[n-1].Text() + "\n\n" + text
		msgs[n-1] = core.NewTextContent(core.RoleUser, strings.TrimLeft(merged, "\n"))
		return msgs
	}
	return append(msgs, core.NewTextContent(core.RoleUser, text))
}
