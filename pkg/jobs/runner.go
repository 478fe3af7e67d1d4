// Package jobs manages the submit/poll/fetch lifecycle of Sailthru's
// asynchronous data export jobs.
//
// The lifecycle is a small state machine:
//
//	submitted -> polling -> completed   (export URL available)
//	                     -> failed      (server reported failure)
//	                     -> expired     (server expired the job)
//	                     -> timed_out   (poll deadline exceeded)
//
// Terminal server statuses are mapped through a transition table so the
// timeout and failure edges stay auditable.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tapstream-io/tap-sailthru/pkg/clients"
	"github.com/tapstream-io/tap-sailthru/pkg/config"
	"github.com/tapstream-io/tap-sailthru/pkg/errors"
	"github.com/tapstream-io/tap-sailthru/pkg/logger"
	"github.com/tapstream-io/tap-sailthru/pkg/metrics"
)

// State is a job lifecycle state
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateExpired   State = "expired"
	StateTimedOut  State = "timed_out"
)

// terminalStates maps server-reported job statuses to terminal states.
// Any status absent from this table keeps the job in StatePolling.
var terminalStates = map[string]State{
	"completed": StateCompleted,
	"failed":    StateFailed,
	"expired":   StateExpired,
}

// Result is the outcome of a completed job run
type Result struct {
	JobID     string
	ExportURL string

	// Skipped is set when the server refused the export (Sailthru
	// error code 99); the caller moves on without treating it as a
	// failure.
	Skipped bool
}

// Runner drives export jobs through their lifecycle. Polling blocks the
// calling stream; streams are synced sequentially so there is no
// background goroutine.
type Runner struct {
	client   *clients.SailthruClient
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRunner creates a job runner from the tap configuration
func NewRunner(client *clients.SailthruClient, cfg *config.Config) *Runner {
	return &Runner{
		client:   client,
		interval: cfg.JobPollInterval,
		timeout:  cfg.JobPollTimeout,
		logger:   logger.Get().With(zap.String("component", "job_runner")),
	}
}

// Run submits the job described by params and polls it to completion,
// returning the export URL
func (r *Runner) Run(ctx context.Context, params map[string]interface{}) (*Result, error) {
	jobName, _ := params["job"].(string)
	log := r.logger.With(zap.String("job", jobName))
	log.Info("starting background job")

	resp, err := r.client.CreateJob(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeJobFailed, "job submission failed")
	}

	if resp.Error != 0 {
		log.Info("server refused export, skipping",
			zap.Int("sailthru_code", resp.Error),
			zap.String("errormsg", resp.ErrorMsg))
		return &Result{Skipped: true}, nil
	}

	if resp.JobID == "" {
		return nil, errors.New(errors.ErrorTypeJobFailed,
			"job submission returned no job_id")
	}

	return r.poll(ctx, jobName, resp.JobID)
}

// poll checks the job status at a fixed interval until it reaches a
// terminal state or the poll deadline passes
func (r *Runner) poll(ctx context.Context, jobName, jobID string) (*Result, error) {
	log := r.logger.With(zap.String("job", jobName), zap.String("job_id", jobID))
	deadline := time.Now().Add(r.timeout)

	state := StateSubmitted
	for {
		resp, err := r.client.GetJob(ctx, jobID)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeJobFailed, "job status check failed").
				WithDetail("job_id", jobID)
		}

		metrics.JobPolls.WithLabelValues(jobName, resp.Status).Inc()
		log.Debug("job status", zap.String("status", resp.Status))

		if terminal, ok := terminalStates[resp.Status]; ok {
			state = terminal
		} else {
			state = StatePolling
		}

		switch state {
		case StateCompleted:
			if resp.ExportURL == "" {
				return nil, errors.New(errors.ErrorTypeJobFailed,
					"job completed without an export URL").WithDetail("job_id", jobID)
			}
			return &Result{JobID: jobID, ExportURL: resp.ExportURL}, nil

		case StateFailed, StateExpired:
			return nil, errors.Newf(errors.ErrorTypeJobFailed,
				"job reached status %q: %s", resp.Status, resp.ErrorMsg).
				WithDetail("job_id", jobID)
		}

		if time.Now().After(deadline) {
			log.Error("job exceeded poll deadline",
				zap.Duration("timeout", r.timeout),
				zap.String("latest_status", resp.Status))
			return nil, errors.Newf(errors.ErrorTypeJobTimeout,
				"job %s exceeded %s poll deadline", jobID, r.timeout).
				WithDetail("job_id", jobID).
				WithDetail("latest_status", resp.Status)
		}

		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeJobTimeout, "job polling cancelled")
		case <-timer.C:
		}
	}
}
