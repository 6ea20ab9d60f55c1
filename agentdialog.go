// Package agentdialog provides a high-level façade over the experiment engine
// and the single-agent session registry. Most applications interact with this
// package by:
//  1. Creating a Dialog via New() from a config.Config (or an explicit model)
//  2. Starting two-agent experiments through Engine() or RunExperiment
//  3. Opening human-in-the-loop sessions through Sessions()
//
// The façade wires one completion backend into a shared conductor so that
// experiments and sessions use the same prompt builder, reasoning processor,
// push broadcaster and metrics recorder.
package agentdialog

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentdialog/conductor"
	"github.com/hupe1980/agentdialog/config"
	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/experiment"
	"github.com/hupe1980/agentdialog/logging"
	"github.com/hupe1980/agentdialog/metrics"
	"github.com/hupe1980/agentdialog/model"
	"github.com/hupe1980/agentdialog/model/anthropic"
	"github.com/hupe1980/agentdialog/model/compat"
	"github.com/hupe1980/agentdialog/model/openai"
	"github.com/hupe1980/agentdialog/prompt"
	"github.com/hupe1980/agentdialog/push"
	"github.com/hupe1980/agentdialog/reasoning"
	"github.com/hupe1980/agentdialog/session"
)

// Options configures the Dialog instance.
type Options struct {
	// Config supplies provider, exchange and prompt settings (defaults to config.Default()).
	Config *config.Config

	// Model overrides the backend built from Config.Provider.
	Model model.Model

	// Broadcaster receives created and message chunk notifications (defaults to NoOp).
	Broadcaster push.Broadcaster

	// Recorder receives exchange metrics (defaults to NoOp).
	Recorder metrics.Recorder

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Dialog is the high-level façade aggregating the engine and the session registry.
type Dialog struct {
	opts      Options
	model     model.Model
	conductor *conductor.Conductor
	engine    *experiment.Engine
	sessions  *session.Registry
}

// New creates a Dialog. It fails when Config is invalid or names an unknown provider.
func New(optFns ...func(o *Options)) (*Dialog, error) {
	opts := Options{
		Broadcaster: push.NoOp{},
		Recorder:    metrics.NoOpRecorder{},
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	cfg := opts.Config
	m := opts.Model
	if m == nil {
		var err error
		if m, err = NewModel(cfg); err != nil {
			return nil, err
		}
	}

	registry := cfg.Registry()
	builder := prompt.New(func(o *prompt.Options) {
		if cfg.Prompt.ThinkingInstruction != "" {
			o.ThinkingInstruction = cfg.Prompt.ThinkingInstruction
		}
		o.Registry = registry
	})
	processor := reasoning.New(func(o *reasoning.Options) {
		o.Policy = cfg.Policy()
		o.Registry = registry
	})

	c := conductor.New(m, func(o *conductor.Options) {
		o.Builder = builder
		o.Processor = processor
		o.Broadcaster = opts.Broadcaster
		o.Logger = opts.Logger
		o.StreamTimeout = cfg.Exchange.StreamTimeout
		o.Stream = cfg.Exchange.Streaming()
		o.Temperature = cfg.Exchange.Temperature
		o.MaxTokens = cfg.Exchange.MaxTokens
		o.DefaultAPIKey = cfg.Provider.DefaultAPIKey
	})

	engine := experiment.New(c, func(o *experiment.Options) {
		o.Logger = opts.Logger
		o.Broadcaster = opts.Broadcaster
		o.Recorder = opts.Recorder
	})
	sessions := session.NewRegistry(c, func(o *session.Options) {
		o.Logger = opts.Logger
		o.Broadcaster = opts.Broadcaster
		o.Recorder = opts.Recorder
	})

	return &Dialog{opts: opts, model: m, conductor: c, engine: engine, sessions: sessions}, nil
}

// NewModel builds the completion backend named by cfg.Provider.
func NewModel(cfg *config.Config) (model.Model, error) {
	p := cfg.Provider
	switch p.Name {
	case config.ProviderOpenAI:
		var clientOpts []option.RequestOption
		if p.DefaultAPIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(p.DefaultAPIKey))
		}
		if p.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(p.BaseURL))
		}
		return openai.NewModel(clientOpts, func(o *openai.Options) {
			o.Temperature = cfg.Exchange.Temperature
			o.MaxCompletionTokens = int64(cfg.Exchange.MaxTokens)
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = p.DefaultAPIKey
			o.BaseURL = p.BaseURL
			o.Temperature = cfg.Exchange.Temperature
			o.MaxTokens = int64(cfg.Exchange.MaxTokens)
			o.ThinkingBudget = p.ThinkingBudget
			o.Registry = cfg.Registry()
		}), nil
	case config.ProviderCompat:
		return compat.NewModel(func(o *compat.Options) {
			if p.BaseURL != "" {
				o.BaseURL = p.BaseURL
			}
			o.APIKey = p.DefaultAPIKey
			o.Temperature = float32(cfg.Exchange.Temperature)
			o.MaxTokens = cfg.Exchange.MaxTokens
		}), nil
	case config.ProviderMock:
		return model.NewMockModel("mock", config.ProviderMock), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", core.ErrValidation, p.Name)
	}
}

// Engine returns the two-agent experiment engine.
func (d *Dialog) Engine() *experiment.Engine { return d.engine }

// Sessions returns the single-agent session registry.
func (d *Dialog) Sessions() *session.Registry { return d.sessions }

// Model returns the completion backend.
func (d *Dialog) Model() model.Model { return d.model }

// Catalog returns the backend's model listing, when it provides one.
func (d *Dialog) Catalog() (model.Catalog, bool) {
	c, ok := d.model.(model.Catalog)
	return c, ok
}

// RunExperiment starts an experiment and blocks until it finishes or ctx is
// done. On cancellation the experiment is stopped and the stopped state returned.
// Manual experiments are rejected with core.ErrWrongMode.
func (d *Dialog) RunExperiment(ctx context.Context, cfg core.ExperimentConfig) (core.ExperimentState, error) {
	if cfg.WithDefaults().Mode == core.ModeManual {
		return core.ExperimentState{}, fmt.Errorf("%w: RunExperiment drives auto experiments only", core.ErrWrongMode)
	}
	if _, err := d.engine.Start(ctx, cfg); err != nil {
		return core.ExperimentState{}, err
	}
	if err := d.engine.Wait(ctx); err != nil {
		return d.engine.Stop(), err
	}
	st := d.engine.GetState()
	if st.Status == core.StatusError {
		return st, fmt.Errorf("experiment %s failed: %s", st.ID, st.Error)
	}
	return st, nil
}
