// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (streaming and non-streaming). Reasoning returned by
// OpenAI-compatible backends in non-standard fields is read from the raw
// JSON payload.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/model"
)

// reasoningFields lists the JSON fields backends use for a reasoning side channel.
var reasoningFields = []string{"reasoning_content", "reasoning"}

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	IncludeUsage        bool
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client. Client
// options (API key, base URL) are passed through to the SDK.
func NewModel(clientOpts []option.RequestOption, optFns ...func(o *Options)) *Model {
	client := openai.NewClient(clientOpts...)
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		IncludeUsage:        true,
	}
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
		m.handleNonStreaming(ctx, params, reqOpts, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts normalized contents into OpenAI chat messages.
func buildMessages(contents []core.Content) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(contents))
	for _, c := range contents {
		text := c.Text()
		switch c.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(text))
		default:
			if text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}
	return messages
}

func (m *Model) modelName(req model.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return m.opts.Model
}

// buildParams assembles the OpenAI request parameters.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	temperature := m.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := m.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Contents),
		Model:               openai.ChatModel(m.modelName(req)),
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if req.Stream && m.opts.IncludeUsage {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	}
	return params
}

// reasoningFrom extracts a reasoning side channel from a raw message or delta payload.
func reasoningFrom(raw string) string {
	if raw == "" {
		return ""
	}
	for _, field := range reasoningFields {
		if v := gjson.Get(raw, field); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

func usageFrom(prompt, completion, total int64) *model.TokenUsage {
	if total == 0 && prompt == 0 && completion == 0 {
		return nil
	}
	if total == 0 {
		total = prompt + completion
	}
	return &model.TokenUsage{
		PromptTokens:     int(prompt),
		CompletionTokens: int(completion),
		TotalTokens:      int(total),
	}
}

// handleStreaming processes streaming responses and forwards partial / final events.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	reqOpts []option.RequestOption,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params, reqOpts...)
	defer stream.Close()

	var (
		text, reasoning strings.Builder
		finishReason    string
		usage           *model.TokenUsage
		id, name        string
	)
	for stream.Next() {
		ck := stream.Current()
		if ck.ID != "" {
			id = ck.ID
		}
		if ck.Model != "" {
			name = ck.Model
		}
		if u := usageFrom(ck.Usage.PromptTokens, ck.Usage.CompletionTokens, ck.Usage.TotalTokens); u != nil {
			usage = u
		}
		for _, ch := range ck.Choices {
			if r := reasoningFrom(ch.Delta.RawJSON()); r != "" {
				reasoning.WriteString(r)
			}
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				model.Emit(ctx, out, model.Response{
					ID:      id,
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, ch.Delta.Content),
				})
			}
			if ch.FinishReason != "" {
				finishReason = ch.FinishReason
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
		return
	}
	model.Emit(ctx, out, model.Response{
		ID:           id,
		Model:        name,
		Content:      core.NewTextContent(core.RoleAssistant, text.String()),
		Reasoning:    reasoning.String(),
		FinishReason: finishReason,
		Usage:        usage,
	})
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	reqOpts []option.RequestOption,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}
	ch0 := resp.Choices[0]
	model.Emit(ctx, out, model.Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      core.NewTextContent(core.RoleAssistant, ch0.Message.Content),
		Reasoning:    reasoningFrom(ch0.Message.RawJSON()),
		FinishReason: ch0.FinishReason,
		Usage:        usageFrom(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens),
	})
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai", SupportsReasoning: true}
}

// ListModels returns the model identifiers served by the endpoint.
func (m *Model) ListModels(ctx context.Context) ([]string, error) {
	page, err := m.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai list models: %w", err)
	}
	names := make([]string, 0, len(page.Data))
	for _, md := range page.Data {
		names = append(names, md.ID)
	}
	return names, nil
}

// HealthCheck reports whether the endpoint answers a model listing.
func (m *Model) HealthCheck(ctx context.Context) bool {
	_, err := m.ListModels(ctx)
	return err == nil
}
