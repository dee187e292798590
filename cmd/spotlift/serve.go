package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/sawpanic/spotlift/internal/interfaces/http"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the attribution HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("host", "", "Listen host (default from config)")
	cmd.Flags().Int("port", 0, "Listen port (default from config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.HTTP.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.HTTP.Port, _ = cmd.Flags().GetInt("port")
	}
	if err := cfg.Validate(); err != nil {
		return &usageError{err}
	}

	svc, err := openServices(cfg, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	server := httpapi.NewServer(cfg.HTTP, httpapi.Deps{
		Runner:  svc.runner,
		Runs:    svc.runs,
		Metrics: svc.metrics,
		DB:      svc.db,
		Version: version,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
