package main

import (
	"context"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"scqc/adapters/postgres"
	"scqc/app"
	"scqc/internal"
	"scqc/internal/config"
	"scqc/internal/errors"
	"scqc/internal/telemetry"
	"scqc/ports"
)

// rootOptions are the flags shared by every command
type rootOptions struct {
	configPath  string
	envFile     string
	logLevel    string
	workers     int
	metricsFile string
	databaseURL string
}

func (o *rootOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "YAML configuration file")
	f.StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	f.StringVar(&o.logLevel, "log-level", "", "ERROR, WARN, INFO, DEBUG or TRACE")
	f.IntVar(&o.workers, "workers", 0, "parallel workers (default GOMAXPROCS)")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	f.StringVar(&o.databaseURL, "database-url", "", "PostgreSQL URL for run history")
}

// session holds everything a command needs for one invocation
type session struct {
	cfg      *config.Config
	logger   *internal.Logger
	recorder *telemetry.Recorder
	db       *sqlx.DB
	repo     ports.RunRepository
}

// deps returns the service dependencies
func (s *session) deps() app.Deps {
	return app.Deps{Runner: app.NewStageRunner(s.logger, s.recorder), Repository: s.repo}
}

// open loads the environment and configuration, applies flag overrides
// and connects to the run store when one is configured
func (o *rootOptions) open(ctx context.Context, cmd *cobra.Command, override func(*config.Config)) (*session, error) {
	if err := godotenv.Load(o.envFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to load %s", o.envFile)
	}

	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Runtime.LogLevel = o.logLevel
	}
	if flags.Changed("workers") {
		cfg.Runtime.Workers = o.workers
	}
	if flags.Changed("metrics-file") {
		cfg.Runtime.MetricsFile = o.metricsFile
	}
	if flags.Changed("database-url") {
		cfg.Database.URL = o.databaseURL
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &session{
		cfg:      cfg,
		logger:   internal.NewLogger(internal.ParseLogLevel(cfg.Runtime.LogLevel)),
		recorder: telemetry.NewRecorder(),
	}
	if cfg.Database.URL != "" {
		if s.db, err = postgres.Open(ctx, cfg.Database.URL); err != nil {
			return nil, err
		}
		s.repo = postgres.NewRunRepository(s.db)
	}
	return s, nil
}

// close writes the metrics textfile and releases the database
func (s *session) close() error {
	var firstErr error
	if path := s.cfg.Runtime.MetricsFile; path != "" {
		if err := s.recorder.WriteTextfile(path); err != nil {
			firstErr = err
		} else {
			s.logger.Info("metrics written to %s", path)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = errors.WithCode(errors.CodeDatabaseError, err)
		}
	}
	_ = s.logger.Sync()
	return firstErr
}
