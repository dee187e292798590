package main

import (
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/spotlift/internal/cache"
	"github.com/sawpanic/spotlift/internal/config"
	"github.com/sawpanic/spotlift/internal/infrastructure/db"
	"github.com/sawpanic/spotlift/internal/metrics"
	"github.com/sawpanic/spotlift/internal/persistence"
	"github.com/sawpanic/spotlift/internal/pipeline"
	"github.com/sawpanic/spotlift/internal/sink"
)

// services holds the collaborators built from config for one process
type services struct {
	db        *db.Manager
	runs      persistence.RunsRepo
	publisher *sink.Publisher
	metrics   *metrics.Registry
	runner    *pipeline.Runner
}

// openServices connects the configured backends. fallbackRuns keeps run
// history in memory when postgres is disabled.
func openServices(cfg config.Config, fallbackRuns bool) (*services, error) {
	mgr, err := db.NewManager(cfg.Postgres)
	if err != nil {
		return nil, err
	}

	s := &services{
		db:      mgr,
		runs:    mgr.Runs(),
		metrics: metrics.NewRegistry(),
	}
	if s.runs == nil && fallbackRuns {
		s.runs = persistence.NewMemoryRepo(1000)
	}

	opts := pipeline.Options{
		Policy:  cfg.DuplicatePolicy(),
		Cache:   cache.New(cfg.Cache),
		Runs:    s.runs,
		Metrics: s.metrics,
		Strict:  cfg.Pipeline.Strict,
	}
	if cfg.Kafka.Enabled {
		s.publisher = sink.NewKafkaPublisher(cfg.Kafka)
		opts.Publisher = s.publisher
	}
	s.runner = pipeline.NewRunner(opts)

	log.Debug().
		Bool("postgres", mgr.IsEnabled()).
		Bool("kafka", cfg.Kafka.Enabled).
		Bool("cache", cfg.Cache.Enabled).
		Str("duplicates", string(cfg.DuplicatePolicy())).
		Msg("Services initialized")

	return s, nil
}

func (s *services) Close() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close kafka publisher")
		}
	}
	if err := s.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
}
