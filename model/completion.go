package model

import (
	"strings"
	"unicode/utf8"
)

// Kind tags the shape of a completion result.
type Kind string

const (
	// KindAnswer is a plain answer with no reasoning side channel.
	KindAnswer Kind = "answer"
	// KindReasoningOnly carries reasoning but an empty answer.
	KindReasoningOnly Kind = "reasoning-only"
	// KindBoth carries an answer and a reasoning trace.
	KindBoth Kind = "both"
)

// Completion is the resolved result of one completion call.
type Completion struct {
	Kind       Kind   `json:"kind"`
	Text       string `json:"text"`
	Reasoning  string `json:"reasoning,omitempty"`
	TokensUsed int    `json:"tokens_used"`
	Model      string `json:"model"`
}

// NewCompletion builds a Completion and derives its Kind from the fields present.
func NewCompletion(modelName, text, reasoning string, tokens int) Completion {
	kind := KindAnswer
	if strings.TrimSpace(reasoning) != "" {
		if strings.TrimSpace(text) == "" {
			kind = KindReasoningOnly
		} else {
			kind = KindBoth
		}
	}
	return Completion{Kind: kind, Text: text, Reasoning: reasoning, TokensUsed: tokens, Model: modelName}
}

// HasReasoning reports whether the backend returned a reasoning side channel.
func (c Completion) HasReasoning() bool { return c.Kind == KindReasoningOnly || c.Kind == KindBoth }

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += utf8.RuneCountInString(t)
	}
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
