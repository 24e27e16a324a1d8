package app

import (
	"context"
	"time"

	"scqc/internal"
	"scqc/internal/errors"
	"scqc/internal/telemetry"
)

// Version is recorded in every run manifest
const Version = "0.1.0"

// Stage names reported in logs and metrics. Each clustering method runs as a
// stage named after the method.
const (
	StageMetrics   = "metrics"
	StagePolicies  = "policies"
	StageAgreement = "agreement"
	StageFilter    = "filter"
	StageGraph     = "graph"
	StageSelect    = "select"
	StagePersist   = "persist"
)

// StageRunner executes named pipeline stages with timing and logging
type StageRunner struct {
	logger   *internal.Logger
	recorder *telemetry.Recorder
}

// NewStageRunner creates a new stage runner
func NewStageRunner(logger *internal.Logger, recorder *telemetry.Recorder) *StageRunner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if recorder == nil {
		recorder = telemetry.NewRecorder()
	}
	return &StageRunner{logger: logger, recorder: recorder}
}

// Run executes fn unless ctx is already done. Errors keep their code and
// gain the stage name.
func (r *StageRunner) Run(ctx context.Context, stage string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "stage %s not started", stage)
	}
	start := time.Now()
	r.logger.Debug("stage %s: started", stage)

	err := fn()
	elapsed := time.Since(start)
	r.recorder.ObserveStage(stage, elapsed)
	if err != nil {
		r.logger.Error("stage %s: failed after %v: %v", stage, elapsed, err)
		return errors.Wrapf(err, "stage %s", stage)
	}
	r.logger.Info("stage %s: done in %v", stage, elapsed)
	return nil
}

// Recorder returns the metrics recorder
func (r *StageRunner) Recorder() *telemetry.Recorder { return r.recorder }

// Logger returns the stage logger
func (r *StageRunner) Logger() *internal.Logger { return r.logger }
