package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/spotlift/internal/config"
	applog "github.com/sawpanic/spotlift/internal/log"
	"github.com/sawpanic/spotlift/internal/pipeline"
)

const appName = "spotlift"

// set with -ldflags "-X main.version=..."
var version = "v0.1.0"

const (
	exitFailure      = 1
	exitInvalidInput = 2
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Str("outcome", pipeline.Outcome(err)).Msg("spotlift failed")
		return exitCode(err)
	}
	return 0
}

// exitCode maps attribution errors to 2 and everything else to 1
func exitCode(err error) int {
	var usage *usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usage):
		return exitInvalidInput
	case pipeline.Outcome(err) != "error":
		return exitInvalidInput
	default:
		return exitFailure
	}
}

// usageError marks flag or argument mistakes
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Attribute app signups to TV spot broadcasts",
		Long: `spotlift estimates how many new signups each TV spot produced.

Signups are binned into the interval between consecutive spots and the organic
rate measured before the first spot is subtracted from every closed interval.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(cmd)
		},
	}

	root.PersistentFlags().AddFlagSet(globalFlags())
	root.AddCommand(newRunCmd(), newServeCmd(), newVersionCmd())
	return root
}

// globalFlags are shared by every subcommand
func globalFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	fs.String("config", "", "Path to YAML config file")
	fs.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	fs.String("log-format", "", "Log format (auto|console|json)")
	return fs
}

// loadConfig reads --config and applies global flag overrides
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Log.Level = f.Value.String()
	}
	if f := cmd.Flags().Lookup("log-format"); f != nil && f.Changed {
		cfg.Log.Format = f.Value.String()
	}
	return cfg, nil
}

func setupLogging(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		// config errors are reported by the command itself; log with defaults
		return applog.Setup(applog.Options{Out: cmd.ErrOrStderr()})
	}
	return applog.Setup(applog.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
			return err
		},
	}
}
