package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdialog/core"
)

func mockConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentdialog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  name: mock\nlogging:\n  level: error\n"), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := buildRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "chat", "models"})
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("listen"))
}

func TestRun_AutoJSON(t *testing.T) {
	out, err := execute(t, "", "run", "--config", mockConfig(t),
		"--prompt", "Negotiate the split of 8 GPUs.", "--model-a", "X", "--model-b", "Y", "--turns", "2", "--json")
	require.NoError(t, err)

	var st core.ExperimentState
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, core.StatusCompleted, st.Status)
	assert.Len(t, st.Conversation, 4)
	assert.Equal(t, 2, st.Metrics[core.SlotB].Turns)
}

func TestRun_ValidationError(t *testing.T) {
	_, err := execute(t, "", "run", "--config", mockConfig(t), "--model-a", "X", "--model-b", "Y")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRun_ExperimentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
prompting_mode: individual
prompt_a: "You sell a car."
prompt_b: "You buy a car."
max_turns: 1
model_a: X
model_b: Y
`), 0o600))

	out, err := execute(t, "", "run", "--config", mockConfig(t), "--experiment", path)
	require.NoError(t, err)
	assert.Contains(t, out, "[A] X (turn 1")
	assert.Contains(t, out, "[B] Y (turn 1")
	assert.Contains(t, out, "completed after 1/1 turns")
}

func TestRun_ManualStepping(t *testing.T) {
	out, err := execute(t, "\nB: offer less\n\n", "run", "--config", mockConfig(t),
		"--prompt", "Haggle.", "--model-a", "X", "--model-b", "Y", "--turns", "1", "--manual")
	require.NoError(t, err)
	assert.Contains(t, out, "[turn 0/1, next A] > ")
	assert.Contains(t, out, "[turn 1/1, next B] > ")
	assert.Contains(t, out, "[B] Y (turn 1")
	assert.Contains(t, out, "completed after 1/1 turns")
}

func TestRun_ManualQuit(t *testing.T) {
	out, err := execute(t, "A: be brief\nq\n", "run", "--config", mockConfig(t),
		"--prompt", "Haggle.", "--model-a", "X", "--model-b", "Y", "--turns", "2", "--manual")
	require.NoError(t, err)
	assert.Contains(t, out, "[A] X (turn 1")
	assert.Contains(t, out, "stopped after 1/2 turns")
}

func TestChat(t *testing.T) {
	out, err := execute(t, "Hello\n\n/quit\n", "chat", "--config", mockConfig(t), "--model", "X")
	require.NoError(t, err)
	assert.Contains(t, out, "you> ")
	assert.Contains(t, out, "[A] X (turn 1")
}

func TestChat_MaxTurns(t *testing.T) {
	out, err := execute(t, "one\ntwo\n", "chat", "--config", mockConfig(t), "--model", "X", "--turns", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "session finished")
}

func TestModels(t *testing.T) {
	out, err := execute(t, "", "models", "--config", mockConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "mock\n", out)
}

func TestModels_Profiles(t *testing.T) {
	out, err := execute(t, "", "models", "--profiles", "--config", mockConfig(t))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "deepseek-r1* (native reasoning)", lines[0])
	assert.Equal(t, "qwq* (native reasoning)", lines[5])
}

func TestListenServesMetrics(t *testing.T) {
	cmd := buildRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", mockConfig(t), "--listen", "127.0.0.1:0"}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	rt, err := newApp(cmd, cfg)
	require.NoError(t, err)
	defer rt.Close()

	require.NotEmpty(t, rt.addr)
	require.NotNil(t, rt.hub)
}
