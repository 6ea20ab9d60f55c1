// Package conductor runs a single completion exchange for one conversation
// slot: prompt assembly, the streaming completion call with a bounded wait,
// answer / thinking separation and push notification of partial chunks.
package conductor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/logging"
	"github.com/hupe1980/agentdialog/model"
	"github.com/hupe1980/agentdialog/prompt"
	"github.com/hupe1980/agentdialog/push"
	"github.com/hupe1980/agentdialog/reasoning"
)

// DefaultStreamTimeout bounds a single exchange.
const DefaultStreamTimeout = 120 * time.Second

var errNoResponse = errors.New("completion ended without a response")

// Options configure a Conductor.
type Options struct {
	Builder       *prompt.Builder
	Processor     *reasoning.Processor
	Broadcaster   push.Broadcaster
	Logger        logging.Logger
	StreamTimeout time.Duration
	Stream        bool
	Temperature   float64
	MaxTokens     int
	// DefaultAPIKey is used when an exchange carries no per-slot credential.
	DefaultAPIKey string
	Now           func() time.Time
}

// Conductor executes exchanges against one completion backend. It holds no
// per-experiment state and is safe for concurrent use.
type Conductor struct {
	model model.Model
	opts  Options
}

// New creates a Conductor for m.
func New(m model.Model, optFns ...func(o *Options)) *Conductor {
	opts := Options{
		Broadcaster:   push.NoOp{},
		Logger:        logging.NoOpLogger{},
		StreamTimeout: DefaultStreamTimeout,
		Stream:        true,
		Now:           time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Builder == nil {
		opts.Builder = prompt.New()
	}
	if opts.Processor == nil {
		opts.Processor = reasoning.New()
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = push.NoOp{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = DefaultStreamTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Conductor{model: m, opts: opts}
}

// Input describes one exchange.
type Input struct {
	ExperimentID string
	Seed         prompt.Seed
	Prior        []core.ConversationMessage
	Slot         core.Slot
	Turn         int
	APIKey       string
	CustomPrompt string
	// Stopped is polled between stream chunks. Optional.
	Stopped func() bool
}

// Result is a completed exchange. The caller appends Message and records metrics.
type Result struct {
	Message    core.ConversationMessage
	Extraction reasoning.Result
	Completion model.Completion
	Duration   time.Duration
}

// Exchange performs one exchange. Failures are returned as *core.TurnFailedError.
func (c *Conductor) Exchange(ctx context.Context, in Input) (*Result, error) {
	start := c.opts.Now()
	msgID := core.MessageID(in.Slot, in.Turn)

	fail := func(cause error) (*Result, error) {
		dur := c.opts.Now().Sub(start)
		logging.LogExchange(c.opts.Logger, in.Seed.Model, 0, dur, false, cause)
		return nil, &core.TurnFailedError{Slot: in.Slot, Turn: in.Turn, Cause: cause}
	}

	apiKey := in.APIKey
	if apiKey == "" {
		apiKey = c.opts.DefaultAPIKey
	}
	req := model.Request{
		Model:       in.Seed.Model,
		APIKey:      apiKey,
		Contents:    c.opts.Builder.Build(in.Seed, in.Prior, in.Slot, in.CustomPrompt),
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Stream:      c.opts.Stream,
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.StreamTimeout)
	defer cancel()

	final, err := c.collect(callCtx, req, in, msgID)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", core.ErrStreamTimeout, c.opts.StreamTimeout)
		}
		return fail(err)
	}

	completion := final.Completion(req.Model)
	if completion.TokensUsed == 0 {
		completion.TokensUsed = estimate(req.Contents, completion)
	}
	extraction := c.opts.Processor.Process(req.Model, completion)

	msg := core.ConversationMessage{
		ID:         msgID,
		Slot:       in.Slot,
		Model:      completion.Model,
		Turn:       in.Turn,
		Answer:     extraction.Answer,
		Thinking:   extraction.Thinking,
		Confidence: extraction.Confidence,
		Tokens:     completion.TokensUsed,
		CreatedAt:  c.opts.Now(),
	}
	c.push(in.ExperimentID, push.Chunk{
		MessageID:     msgID,
		Slot:          in.Slot,
		Turn:          in.Turn,
		PartialAnswer: msg.Answer,
		Thinking:      msg.Thinking,
		IsComplete:    true,
	})

	dur := c.opts.Now().Sub(start)
	logging.LogExchange(c.opts.Logger, completion.Model, completion.TokensUsed, dur, true, nil)
	c.opts.Logger.Debug("exchange processed",
		"experiment_id", in.ExperimentID, "slot", string(in.Slot), "turn", in.Turn,
		"method", string(extraction.Method), "confidence", extraction.Confidence)

	return &Result{Message: msg, Extraction: extraction, Completion: completion, Duration: dur}, nil
}

// collect drains the response stream, forwarding partial text, until the
// final response arrives or the stream fails.
func (c *Conductor) collect(ctx context.Context, req model.Request, in Input, msgID string) (*model.Response, error) {
	respCh, errCh := c.model.Generate(ctx, req)

	var (
		final   *model.Response
		partial strings.Builder
	)
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				partial.WriteString(resp.Content.Text())
				c.push(in.ExperimentID, push.Chunk{
					MessageID:     msgID,
					Slot:          in.Slot,
					Turn:          in.Turn,
					PartialAnswer: partial.String(),
				})
			} else {
				r := resp
				final = &r
			}
			if in.Stopped != nil && in.Stopped() {
				return nil, core.ErrStopped
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if final == nil {
		if partial.Len() == 0 {
			return nil, errNoResponse
		}
		final = &model.Response{Content: core.NewTextContent(core.RoleAssistant, partial.String())}
	}
	return final, nil
}

func (c *Conductor) push(experimentID string, chunk push.Chunk) {
	if err := c.opts.Broadcaster.BroadcastMessageChunk(experimentID, chunk); err != nil {
		c.opts.Logger.Warn("push chunk failed", "experiment_id", experimentID, "message_id", chunk.MessageID, "error", err.Error())
	}
}

func estimate(contents []core.Content, completion model.Completion) int {
	texts := make([]string, 0, len(contents)+2)
	for _, ct := range contents {
		texts = append(texts, ct.Text())
	}
	texts = append(texts, completion.Text, completion.Reasoning)
	return model.EstimateTokens(texts...)
}
