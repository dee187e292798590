package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/spotlift/internal/attribution"
	"github.com/sawpanic/spotlift/internal/persistence"
)

const campaign = `{
  "tvSpots": [{"time": "2024-03-01T10:00:00"}, {"time": "2024-03-01T10:05:00"}, {"time": "2024-03-01T10:05:00"}],
  "newUsers": [
    {"time": "2024-03-01T09:58:00"}, {"time": "2024-03-01T09:59:00"},
    {"time": "2024-03-01T10:01:00"}, {"time": "2024-03-01T10:03:00"},
    {"time": "2024-03-01T10:06:00"}
  ]
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRun_TextOutput(t *testing.T) {
	input := writeFile(t, "new_users.json", campaign)

	stdout, stderr, err := runCLI(t, "run", "--input", input, "--log-format", "json")
	require.NoError(t, err)

	assert.Equal(t, "Spot 1: 3 new users\nSpot 2: 1 new users\n", stdout)
	assert.Contains(t, stderr, "1 duplicate spot timestamp(s) collapsed")
}

func TestRun_JSONToFile(t *testing.T) {
	input := writeFile(t, "new_users.json", campaign)
	out := filepath.Join(t.TempDir(), "report.json")

	stdout, _, err := runCLI(t, "run", "--input", input, "--format", "json", "--output", out, "--log-level", "error")
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var run persistence.Run
	require.NoError(t, json.Unmarshal(data, &run))
	require.NotNil(t, run.Report)
	assert.Equal(t, int64(1), run.Report.BaselineRate)
	assert.Len(t, run.Report.Duplicates, 1)
}

func TestRun_RejectDuplicates(t *testing.T) {
	input := writeFile(t, "new_users.json", campaign)

	_, _, err := runCLI(t, "run", "--input", input, "--duplicates", "reject", "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.Is(err, attribution.ErrInvalidInput))
	assert.Equal(t, exitInvalidInput, exitCode(err))
}

func TestRun_ConfigFile(t *testing.T) {
	input := writeFile(t, "new_users.json", campaign)
	cfg := writeFile(t, "spotlift.yaml", "input:\n  path: "+input+"\noutput:\n  format: json\nlog:\n  level: error\n")

	stdout, _, err := runCLI(t, "run", "--config", cfg)
	require.NoError(t, err)

	var run persistence.Run
	require.NoError(t, json.Unmarshal([]byte(stdout), &run))
	assert.Equal(t, input, run.Source)
}

func TestRun_UsageErrors(t *testing.T) {
	input := writeFile(t, "new_users.json", campaign)

	_, _, err := runCLI(t, "run", "--input", input, "--campaign", "march", "--log-level", "error")
	require.Error(t, err)
	assert.Equal(t, exitInvalidInput, exitCode(err))

	_, _, err = runCLI(t, "run", "--campaign", "march", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")

	_, _, err = runCLI(t, "run", "--input", input, "--format", "xml", "--log-level", "error")
	require.Error(t, err)
	assert.Equal(t, exitInvalidInput, exitCode(err))
}

func TestRun_MissingFile(t *testing.T) {
	_, _, err := runCLI(t, "run", "--input", filepath.Join(t.TempDir(), "missing.json"), "--log-level", "error")
	require.Error(t, err)
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestVersion(t *testing.T) {
	stdout, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "spotlift "+version+"\n", stdout)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, exitInvalidInput, exitCode(&attribution.InsufficientDataError{Reason: "none"}))
	assert.Equal(t, exitInvalidInput, exitCode(&attribution.DegenerateIntervalError{}))
	assert.Equal(t, exitFailure, exitCode(errors.New("connection refused")))
}
