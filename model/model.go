package model

import (
	"context"

	"github.com/hupe1980/agentdialog/core"
)

// Request captures the normalized completion input produced by the prompt builder.
// Zero Temperature / MaxTokens select the adapter's configured defaults.
type Request struct {
	Model       string         `json:"model"`    // Provider model identifier
	APIKey      string         `json:"-"`        // Per-request credential, empty uses the adapter default
	Contents    []core.Content `json:"contents"` // Role-tagged prompt messages
	Temperature float64        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
//
// Partial responses carry deltas. The final response (Partial=false) carries
// the full answer text in Content and the full reasoning trace, if any.
type Response struct {
	ID           string       `json:"id"`
	Model        string       `json:"model,omitempty"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	Reasoning    string       `json:"reasoning,omitempty"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", ...
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Completion converts a final response into the tagged completion result.
func (r Response) Completion(requested string) Completion {
	name := r.Model
	if name == "" {
		name = requested
	}
	tokens := 0
	if r.Usage != nil {
		tokens = r.Usage.TotalTokens
	}
	return NewCompletion(name, r.Content.Text(), r.Reasoning, tokens)
}

// Info contains metadata about a model implementation.
type Info struct {
	Name              string `json:"name"`
	Provider          string `json:"provider"` // "openai", "anthropic", "compat", "mock"
	SupportsReasoning bool   `json:"supports_reasoning"`
}

// Model is the minimal interface required to drive one completion exchange.
// Both channels are closed once generation ends.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Catalog exposes service health and the list of available model identifiers.
type Catalog interface {
	HealthCheck(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
}

// Emit delivers resp on out unless ctx is done first.
func Emit(ctx context.Context, out chan<- Response, resp Response) bool {
	select {
	case out <- resp:
		return true
	case <-ctx.Done():
		return false
	}
}
