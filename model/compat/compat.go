// Package compat implements model.Model for OpenAI-compatible servers (local
// inference servers, DeepSeek, vLLM, Ollama's /v1 endpoint) using the
// community go-openai client. The reasoning_content field these servers emit
// becomes the reasoning side channel.
package compat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/model"
)

// Options configure the compatible-server adapter.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Model talks to an OpenAI-compatible chat completions endpoint.
type Model struct {
	opts Options

	mu      sync.Mutex
	clients map[string]*openai.Client // keyed by API key
}

// NewModel creates a compatible-server model.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		BaseURL:     "http://localhost:11434/v1",
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{opts: opts, clients: make(map[string]*openai.Client)}
}

// client returns a client bound to key, creating it on first use.
func (m *Model) client(key string) *openai.Client {
	if key == "" {
		key = m.opts.APIKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[key]; ok {
		return c
	}
	cfg := openai.DefaultConfig(key)
	if m.opts.BaseURL != "" {
		cfg.BaseURL = m.opts.BaseURL
	}
	c := openai.NewClientWithConfig(cfg)
	m.clients[key] = c
	return c
}

func (m *Model) buildRequest(req model.Request) openai.ChatCompletionRequest {
	name := req.Model
	if name == "" {
		name = m.opts.Model
	}
	temperature := m.opts.Temperature
	if req.Temperature > 0 {
		temperature = float32(req.Temperature)
	}
	maxTokens := m.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	chatReq := openai.ChatCompletionRequest{
		Model:       name,
		Messages:    convertMessages(req.Contents),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      req.Stream,
	}
	if req.Stream {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return chatReq
}

func convertMessages(contents []core.Content) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(contents))
	for _, c := range contents {
		role := openai.ChatMessageRoleUser
		switch c.Role {
		case core.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case core.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: c.Text()})
	}
	return out
}

func usageFrom(u openai.Usage) *model.TokenUsage {
	if u.TotalTokens == 0 && u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return nil
	}
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return &model.TokenUsage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: total}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		client := m.client(req.APIKey)
		chatReq := m.buildRequest(req)
		if req.Stream {
			m.stream(ctx, client, chatReq, out, errCh)
			return
		}
		resp, err := client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			errCh <- fmt.Errorf("compat completion: %w", err)
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
			Reasoning:    ch0.Message.ReasoningContent,
			FinishReason: string(ch0.FinishReason),
			Usage:        usageFrom(resp.Usage),
		})
	}()
	return out, errCh
}

func (m *Model) stream(
	ctx context.Context,
	client *openai.Client,
	chatReq openai.ChatCompletionRequest,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream, err := client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		errCh <- fmt.Errorf("compat stream: %w", err)
		return
	}
	defer stream.Close()

	var (
		text, reasoning strings.Builder
		final           = model.Response{FinishReason: "stop"}
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errCh <- fmt.Errorf("compat stream: %w", err)
			return
		}
		if resp.ID != "" {
			final.ID = resp.ID
		}
		if resp.Model != "" {
			final.Model = resp.Model
		}
		if resp.Usage != nil {
			final.Usage = usageFrom(*resp.Usage)
		}
		for _, ch := range resp.Choices {
			reasoning.WriteString(ch.Delta.ReasoningContent)
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				model.Emit(ctx, out, model.Response{
					ID:      final.ID,
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, ch.Delta.Content),
				})
			}
			if ch.FinishReason != "" {
				final.FinishReason = string(ch.FinishReason)
			}
		}
	}
	final.Content = core.NewTextContent(core.RoleAssistant, text.String())
	final.Reasoning = reasoning.String()
	model.Emit(ctx, out, final)
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "compat", SupportsReasoning: true}
}

// ListModels implements model.Catalog.
func (m *Model) ListModels(ctx context.Context) ([]string, error) {
	list, err := m.client("").ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("compat list models: %w", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, md := range list.Models {
		names = append(names, md.ID)
	}
	return names, nil
}

// HealthCheck implements model.Catalog.
func (m *Model) HealthCheck(ctx context.Context) bool {
	_, err := m.ListModels(ctx)
	return err == nil
}
