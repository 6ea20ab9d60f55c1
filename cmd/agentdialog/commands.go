package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentdialog/config"
	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/experiment"
	"github.com/hupe1980/agentdialog/model"
	"github.com/hupe1980/agentdialog/session"
)

// =============================================================================
// Run Command
// =============================================================================

type runFlags struct {
	experiment string
	prompt     string
	modelA     string
	modelB     string
	turns      int
	manual     bool
	asJSON     bool
}

// buildRunCmd creates the "run" command that drives a two-agent experiment.
func buildRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a two-agent experiment",
		Long: `Run a conversation between two models.

The experiment is read from --experiment, or assembled from --prompt,
--model-a, --model-b and --turns. With --manual every exchange waits for a
line on stdin: an empty line advances the next slot, "A: text" or "B: text"
runs that slot with an extra instruction, and "q" stops the experiment.`,
		Example: `  # Shared prompt, five rounds
  agentdialog run --prompt "Negotiate the split of 8 GPUs." --model-a gpt-4o-mini --model-b deepseek-reasoner --turns 5

  # From a file, stepping manually
  agentdialog run --experiment negotiation.yaml --manual`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runExperiment(ctx, cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.experiment, "experiment", "e", "", "Path to experiment YAML file")
	cmd.Flags().StringVarP(&f.prompt, "prompt", "p", "", "Shared seed prompt")
	cmd.Flags().StringVar(&f.modelA, "model-a", "", "Model for slot A")
	cmd.Flags().StringVar(&f.modelB, "model-b", "", "Model for slot B")
	cmd.Flags().IntVarP(&f.turns, "turns", "t", 3, "Number of rounds")
	cmd.Flags().BoolVar(&f.manual, "manual", false, "Step through exchanges from stdin")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the final state as JSON")
	return cmd
}

func experimentConfig(f runFlags) (core.ExperimentConfig, error) {
	var cfg core.ExperimentConfig
	if f.experiment != "" {
		var err error
		if cfg, err = config.LoadExperiment(f.experiment); err != nil {
			return core.ExperimentConfig{}, err
		}
	} else {
		cfg = core.ExperimentConfig{
			PromptingMode: core.PromptingShared,
			SharedPrompt:  f.prompt,
			MaxTurns:      f.turns,
			ModelA:        f.modelA,
			ModelB:        f.modelB,
		}
	}
	if f.manual {
		cfg.Mode = core.ModeManual
	}
	return cfg, nil
}

func runExperiment(ctx context.Context, cmd *cobra.Command, f runFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	exp, err := experimentConfig(f)
	if err != nil {
		return err
	}
	rt, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	var st core.ExperimentState
	if exp.WithDefaults().Mode == core.ModeManual {
		st, err = stepExperiment(ctx, rt.dialog.Engine(), exp, cmd.InOrStdin(), out)
	} else {
		st, err = rt.dialog.RunExperiment(ctx, exp)
	}
	if err != nil && st.ID == "" {
		return err
	}

	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(st); encErr != nil {
			return encErr
		}
	} else if exp.WithDefaults().Mode == core.ModeAuto {
		for _, msg := range st.Conversation {
			printMessage(out, msg)
		}
		printSummary(out, st)
	} else {
		printSummary(out, st)
	}
	return err
}

// stepExperiment drives a manual experiment from line commands read from in.
func stepExperiment(ctx context.Context, eng *experiment.Engine, exp core.ExperimentConfig, in io.Reader, out io.Writer) (core.ExperimentState, error) {
	if _, err := eng.Start(ctx, exp); err != nil {
		return core.ExperimentState{}, err
	}
	scanner := bufio.NewScanner(in)
	for eng.IsRunning() {
		st := eng.GetState()
		fmt.Fprintf(out, "[turn %d/%d, next %s] > ", st.CurrentTurn, st.MaxTurns, st.NextExpectedSlot)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		var (
			msg core.ConversationMessage
			err error
		)
		switch {
		case line == "q" || line == "quit":
			return eng.Stop(), nil
		case line == "":
			msg, err = eng.StartNextTurn(ctx)
		default:
			slot, custom, ok := strings.Cut(line, ":")
			if !ok {
				fmt.Fprintln(out, `expected "A: text", "B: text", an empty line or "q"`)
				continue
			}
			msg, err = eng.ProcessModelWithPrompt(ctx, core.Slot(strings.ToUpper(strings.TrimSpace(slot))), strings.TrimSpace(custom))
		}
		if err != nil {
			if errors.Is(err, core.ErrWrongMode) || errors.Is(err, core.ErrExchangeInFlight) {
				fmt.Fprintln(out, err)
				continue
			}
			return eng.GetState(), err
		}
		printMessage(out, msg)
	}
	if eng.IsRunning() {
		return eng.Stop(), scanner.Err()
	}
	return eng.GetState(), scanner.Err()
}

func printMessage(w io.Writer, msg core.ConversationMessage) {
	fmt.Fprintf(w, "\n[%s] %s (turn %d, confidence %.2f, %d tokens)\n", msg.Slot, msg.Model, msg.Turn, msg.Confidence, msg.Tokens)
	if msg.Thinking != "" {
		fmt.Fprintf(w, "  thinking: %s\n", strings.ReplaceAll(msg.Thinking, "\n", "\n            "))
	}
	fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(msg.Answer, "\n", "\n  "))
}

func printSummary(w io.Writer, st core.ExperimentState) {
	fmt.Fprintf(w, "\nexperiment %s: %s after %d/%d turns\n", st.ID, st.Status, st.CurrentTurn, st.MaxTurns)
	for _, slot := range []core.Slot{core.SlotA, core.SlotB} {
		m := st.Metrics[slot]
		fmt.Fprintf(w, "  %s: %d turns, %d tokens, %d errors\n", slot, m.Turns, m.TokensUsed, m.Errors)
	}
	if st.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", st.Error)
	}
}

// =============================================================================
// Chat Command
// =============================================================================

// buildChatCmd creates the "chat" command for a human-in-the-loop session.
func buildChatCmd() *cobra.Command {
	var cfgSession session.Config
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a single model",
		Long: `Open an interactive session with one model. Each line read from stdin is
sent as a human message; "/quit" or end of input closes the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runChat(ctx, cmd, cfgSession)
		},
	}
	cmd.Flags().StringVarP(&cfgSession.Model, "model", "m", "", "Model to chat with")
	cmd.Flags().StringVarP(&cfgSession.SystemPrompt, "system", "s", "You are a helpful assistant.", "System prompt")
	cmd.Flags().IntVar(&cfgSession.MaxTurns, "turns", 0, "Maximum model replies (0 = unlimited)")
	return cmd
}

func runChat(ctx context.Context, cmd *cobra.Command, sc session.Config) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessions := rt.dialog.Sessions()
	st, err := sessions.Create(sc)
	if err != nil {
		return err
	}
	defer func() { _, _ = sessions.Close(st.ID) }()

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		reply, err := sessions.Send(ctx, st.ID, line)
		switch {
		case errors.Is(err, core.ErrNotRunning):
			fmt.Fprintln(out, "session finished")
			return nil
		case err != nil:
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printMessage(out, reply)
	}
}

// =============================================================================
// Models Command
// =============================================================================

// buildModelsCmd creates the "models" command listing backend models.
func buildModelsCmd() *cobra.Command {
	var profiles bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models offered by the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if profiles {
				reg := cfg.Registry()
				for _, name := range reg.Names() {
					printModel(cmd, reg, name)
				}
				return nil
			}
			rt, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			catalog, ok := rt.dialog.Catalog()
			if !ok {
				return fmt.Errorf("provider %s cannot list models", cfg.Provider.Name)
			}
			if !catalog.HealthCheck(cmd.Context()) {
				return fmt.Errorf("provider %s is not reachable", cfg.Provider.Name)
			}
			names, err := catalog.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			reg := cfg.Registry()
			for _, name := range names {
				printModel(cmd, reg, name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&profiles, "profiles", false, "List configured capability profiles instead of querying the backend")

	return cmd
}

func printModel(cmd *cobra.Command, reg *model.Registry, name string) {
	marker := ""
	if reg.Profile(name).NativeReasoning {
		marker = " (native reasoning)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", name, marker)
}
