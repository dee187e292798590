package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/spotlift/internal/attribution"
	"github.com/sawpanic/spotlift/internal/config"
	"github.com/sawpanic/spotlift/internal/persistence"
	"github.com/sawpanic/spotlift/internal/report"
	"github.com/sawpanic/spotlift/internal/source"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Attribute signups for one campaign",
		Long: `Load spots and signups from a JSON export (--input) or from postgres
(--campaign), print one line per spot and record the run.`,
		Args: cobra.NoArgs,
		RunE: runAttribution,
	}

	cmd.Flags().String("input", "", "JSON file with tvSpots and newUsers (default from config)")
	cmd.Flags().String("campaign", "", "Load the named campaign from postgres instead of a file")
	cmd.Flags().String("format", "", "Output format (text|json)")
	cmd.Flags().String("output", "", "Write output to this file instead of stdout")
	cmd.Flags().String("duplicates", "", "Duplicate spot policy (collapse|reject)")
	return cmd
}

// applyRunFlags overlays changed run flags on cfg
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	set := func(name string, dst *string) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	set("input", &cfg.Input.Path)
	set("campaign", &cfg.Input.Campaign)
	set("format", &cfg.Output.Format)
	set("output", &cfg.Output.Path)
	set("duplicates", &cfg.Attribution.DuplicateSpots)

	if cmd.Flags().Changed("input") && cmd.Flags().Changed("campaign") {
		return &usageError{errors.New("--input and --campaign are mutually exclusive")}
	}
	if cmd.Flags().Changed("input") {
		cfg.Input.Campaign = ""
	}
	if err := cfg.Validate(); err != nil {
		return &usageError{err}
	}
	return nil
}

func runAttribution(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, &cfg); err != nil {
		return err
	}

	svc, err := openServices(cfg, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	var (
		loader source.Loader = source.FileLoader{}
		name                 = cfg.Input.Path
	)
	if cfg.Input.Campaign != "" {
		if svc.db.Loader() == nil {
			return &usageError{fmt.Errorf("--campaign requires postgres to be enabled")}
		}
		loader, name = svc.db.Loader(), cfg.Input.Campaign
	}

	run, err := svc.runner.LoadAndRun(cmd.Context(), loader, name)
	if err != nil {
		return err
	}

	return writeRun(cmd, cfg.Output, *run)
}

func writeRun(cmd *cobra.Command, out config.OutputConfig, run persistence.Run) error {
	if err := report.Output(cmd.OutOrStdout(), out.Path, out.Format, run); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if n := len(run.Report.Duplicates); n > 0 && out.Format == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "note: %d duplicate spot timestamp(s) collapsed (first %s)\n",
			n, run.Report.Duplicates[0].Format(attribution.Layout))
	}
	return nil
}
