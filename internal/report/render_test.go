package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/spotlift/internal/attribution"
	"github.com/sawpanic/spotlift/internal/persistence"
)

func sampleRun() persistence.Run {
	return persistence.Run{
		ID:     "run-1",
		Source: "new_users.json",
		Report: &attribution.Report{
			Results: []attribution.Result{
				{Ordinal: 1, Raw: 2, Adjusted: 3},
				{Ordinal: 2, Raw: 1, Adjusted: 1},
			},
			BaselineRate: 1,
		},
	}
}

func TestRender_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "text", sampleRun()))
	assert.Equal(t, "Spot 1: 3 new users\nSpot 2: 1 new users\n", buf.String())
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "JSON", sampleRun()))

	var decoded persistence.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.ID)
	assert.Len(t, decoded.Report.Results, 2)
}

func TestRender_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, "csv", sampleRun()))
	assert.Error(t, Render(&buf, "text", persistence.Run{ID: "empty"}))
}

func TestOutput_FileIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "report.txt")

	var stdout bytes.Buffer
	require.NoError(t, Output(&stdout, path, "text", sampleRun()))
	assert.Empty(t, stdout.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Spot 1: 3 new users\nSpot 2: 1 new users\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestOutput_Stdout(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, Output(&stdout, "", "text", sampleRun()))
	assert.Contains(t, stdout.String(), "Spot 2: 1 new users")
}
