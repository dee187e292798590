package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Options configures the global logger
type Options struct {
	Level  string // trace|debug|info|warn|error
	Format string // auto|console|json
	Out    io.Writer
}

// Setup configures the global zerolog logger. With Format "auto" a console
// writer is used when Out is a terminal and JSON lines otherwise.
func Setup(opts Options) error {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(writerFor(opts.Format, out)).With().Timestamp().Logger()
	return nil
}

// Component returns a child of the global logger tagged with a component name
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func writerFor(format string, out io.Writer) io.Writer {
	switch strings.ToLower(format) {
	case "json":
		return out
	case "console":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	default:
		if isTerminal(out) {
			return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
		}
		return out
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
