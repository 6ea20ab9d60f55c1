package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentdialog/core"
)

// Scripted is one canned reply served by MockModel in FIFO order.
type Scripted struct {
	Text      string
	Reasoning string
	Tokens    int           // reported usage, zero omits usage
	Delay     time.Duration // wait before the final response
	Err       error         // returned instead of a response
	Block     bool          // never reply until ctx is done
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
type MockModel struct {
	info      Info
	mu        sync.Mutex
	responses map[string]string
	script    []Scripted
	requests  []Request
	models    []string
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
		models:    []string{name},
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue appends scripted replies consumed one per Generate call.
func (m *MockModel) Enqueue(replies ...Scripted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, replies...)
}

// SetModels overrides the identifiers reported by ListModels.
func (m *MockModel) SetModels(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = append([]string(nil), names...)
}

// Requests returns a copy of all requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockModel) next(req Request) Scripted {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.script) > 0 {
		s := m.script[0]
		m.script = m.script[1:]
		return s
	}
	var input string
	if len(req.Contents) > 0 {
		input = req.Contents[len(req.Contents)-1].Text()
	}
	full := m.responses[input]
	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", input)
	}
	return Scripted{Text: full}
}

// Generate implements Model; emits word-sized streaming chunks then a final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}
		s := m.next(req)
		if s.Block {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}
		if s.Err != nil {
			errCh <- s.Err
			return
		}
		if req.Stream {
			for _, w := range strings.SplitAfter(s.Text, " ") {
				if w == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Content: core.NewTextContent(core.RoleAssistant, w)}:
				}
			}
		}
		if s.Delay > 0 {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-time.After(s.Delay):
			}
		}
		final := Response{
			Model:        req.Model,
			Content:      core.NewTextContent(core.RoleAssistant, s.Text),
			Reasoning:    s.Reasoning,
			FinishReason: "stop",
		}
		if s.Tokens > 0 {
			final.Usage = &TokenUsage{TotalTokens: s.Tokens}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- final:
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

// HealthCheck implements Catalog.
func (m *MockModel) HealthCheck(context.Context) bool { return true }

// ListModels implements Catalog.
func (m *MockModel) ListModels(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.models...), nil
}
