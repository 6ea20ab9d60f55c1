// Package anthropic provides a model wrapper for the Anthropic Claude API,
// including extended thinking which is surfaced as the reasoning side channel.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/model"
)

// minThinkingBudget is the smallest budget the Messages API accepts.
const minThinkingBudget = 1024

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key, thinking budget).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	// ThinkingBudget enables extended thinking when > 0.
	ThinkingBudget int64
	// Registry supplies per-model thinking budgets. Optional.
	Registry *model.Registry
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_7SonnetLatest,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		var reqOpts []option.RequestOption
		if req.APIKey != "" {
			reqOpts = append(reqOpts, option.WithAPIKey(req.APIKey))
		}

		if req.Stream {
			m.handleStreaming(ctx, params, reqOpts, out, errCh)
			return
		}

		resp, err := m.client.Messages.New(ctx, params, reqOpts...)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		var text, thinking strings.Builder
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.AsText().Text)
			case "thinking":
				thinking.WriteString(block.AsThinking().Thinking)
			}
		}

		finishReason := "stop"
		if resp.StopReason != "" {
			finishReason = string(resp.StopReason)
		}

		model.Emit(ctx, out, model.Response{
			ID:           resp.ID,
			Model:        string(resp.Model),
			Content:      core.NewTextContent(core.RoleAssistant, text.String()),
			Reasoning:    thinking.String(),
			FinishReason: finishReason,
			Usage:        usage(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		})
	}()

	return out, errCh
}

func usage(input, output int64) *model.TokenUsage {
	if input == 0 && output == 0 {
		return nil
	}
	return &model.TokenUsage{
		PromptTokens:     int(input),
		CompletionTokens: int(output),
		TotalTokens:      int(input + output),
	}
}

func (m *Model) thinkingBudget(name string) int64 {
	budget := m.opts.ThinkingBudget
	if m.opts.Registry != nil {
		if p, ok := m.opts.Registry.Lookup(name); ok && p.ThinkingBudget > 0 {
			budget = p.ThinkingBudget
		}
	}
	if budget > 0 && budget < minThinkingBudget {
		budget = minThinkingBudget
	}
	return budget
}

// buildParams converts a normalized request into Messages API parameters.
func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	name := string(m.opts.Model)
	if req.Model != "" {
		name = req.Model
	}
	maxTokens := m.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(name),
		Messages:  buildMessages(req.Contents),
		MaxTokens: maxTokens,
	}

	if system := extractSystem(req.Contents); len(system) > 0 {
		params.System = system
	}

	if budget := m.thinkingBudget(name); budget > 0 {
		if maxTokens <= budget {
			params.MaxTokens = budget + maxTokens
		}
		// Extended thinking does not accept a custom temperature.
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
		return params
	}

	temperature := m.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	params.Temperature = anthropic.Float(temperature)
	return params
}

// handleStreaming consumes the SSE event stream, forwarding text deltas.
func (m *Model) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	reqOpts []option.RequestOption,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Messages.NewStreaming(ctx, params, reqOpts...)
	defer stream.Close()

	var (
		text, thinking            strings.Builder
		inputTokens, outputTokens int64
		id, name                  string
		finishReason              = "stop"
	)

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			id = start.Message.ID
			name = string(start.Message.Model)
			inputTokens = start.Message.Usage.InputTokens

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					text.WriteString(delta.Text)
					model.Emit(ctx, out, model.Response{
						ID:      id,
						Partial: true,
						Content: core.NewTextContent(core.RoleAssistant, delta.Text),
					})
				}
			case "thinking_delta":
				thinking.WriteString(delta.Thinking)
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = md.Usage.OutputTokens
			}
			if md.Delta.StopReason != "" {
				finishReason = string(md.Delta.StopReason)
			}
		}
	}

	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		return
	}

	model.Emit(ctx, out, model.Response{
		ID:           id,
		Model:        name,
		Content:      core.NewTextContent(core.RoleAssistant, text.String()),
		Reasoning:    thinking.String(),
		FinishReason: finishReason,
		Usage:        usage(inputTokens, outputTokens),
	})
}

// buildMessages converts contents to Anthropic message format. System
// messages are sent separately.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, c := range contents {
		if c.Role == core.RoleSystem {
			continue
		}
		text := c.Text()
		if text == "" {
			continue
		}
		if c.Role == core.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
	}
	return messages
}

// extractSystem extracts system message blocks
func extractSystem(contents []core.Content) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, c := range contents {
		if c.Role != core.RoleSystem {
			continue
		}
		if text := c.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}
	return blocks
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:              string(m.opts.Model),
		Provider:          "anthropic",
		SupportsReasoning: m.opts.ThinkingBudget > 0,
	}
}

// ListModels returns the model identifiers available to the API key.
func (m *Model) ListModels(ctx context.Context) ([]string, error) {
	page, err := m.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("anthropic list models: %w", err)
	}
	names := make([]string, 0, len(page.Data))
	for _, md := range page.Data {
		names = append(names, md.ID)
	}
	return names, nil
}

// HealthCheck reports whether the API answers a model listing.
func (m *Model) HealthCheck(ctx context.Context) bool {
	_, err := m.ListModels(ctx)
	return err == nil
}
