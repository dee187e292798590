package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sawpanic/spotlift/internal/persistence"
)

// Format names accepted by Render
const (
	FormatText = "text"
	FormatJSON = "json"
)

// WriteText writes one "Spot <n>: <adjusted> new users" line per spot
func WriteText(w io.Writer, run persistence.Run) error {
	for _, line := range run.Report.Lines() {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes the run, report included, as indented JSON
func WriteJSON(w io.Writer, run persistence.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

// Render writes run in format to w
func Render(w io.Writer, format string, run persistence.Run) error {
	if run.Report == nil {
		return fmt.Errorf("run %s has no report", run.ID)
	}
	switch strings.ToLower(format) {
	case "", FormatText:
		return WriteText(w, run)
	case FormatJSON:
		return WriteJSON(w, run)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// Output renders run to path atomically, or to stdout when path is empty
func Output(stdout io.Writer, path, format string, run persistence.Run) error {
	if path == "" {
		return Render(stdout, format, run)
	}

	var buf bytes.Buffer
	if err := Render(&buf, format, run); err != nil {
		return err
	}
	if err := WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
