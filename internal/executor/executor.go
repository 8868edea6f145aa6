// Package executor runs due jobs: it makes the outbound HTTP call and
// appends the outcome to the run history.
package executor

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"crontask/internal/eventbus"
	"crontask/internal/storage"
	logx "crontask/pkg/logx"
)

// Config controls outbound execution.
//
// Defaults (when fields are zero):
//   - RequestTimeout: 10s
//   - MaxInFlight: 16
type Config struct {
	RequestTimeout time.Duration
	MaxInFlight    int
}

const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxInFlight    = 16
)

type Service struct {
	store  storage.Store
	bus    eventbus.Bus
	caller Caller
	log    logx.Logger

	timeout time.Duration
	sem     *semaphore.Weighted

	nowFn func() time.Time
}

// New builds an executor. A nil caller gets the production HTTP caller.
func New(store storage.Store, bus eventbus.Bus, log logx.Logger, cfg Config, caller Caller) *Service {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if caller == nil {
		caller = NewHTTPCaller()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:   store,
		bus:     bus,
		caller:  caller,
		log:     log,
		timeout: cfg.RequestTimeout,
		sem:     semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		nowFn:   time.Now,
	}
}

// Execute performs one job run and records it. It blocks while the global
// in-flight cap is saturated and returns the recorded run.
//
// A history write failure never fails the run; the outcome is logged and the
// run record returned as-is.
func (s *Service) Execute(ctx context.Context, job storage.Job) storage.Run {
	run := storage.Run{
		JobID:  job.ID,
		Cron:   job.Cron,
		Method: job.Action.Method,
		URL:    job.Action.URL,
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		msg := err.Error()
		run.Error = &msg
		run.RunAt = s.nowFn().UTC()
		return run
	}
	defer s.sem.Release(1)

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeRunStarted,
			Time: s.nowFn(),
			Data: map[string]any{"job_id": job.ID},
		})
	}

	start := s.nowFn()
	run.RunAt = start.UTC()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	status, body, err := s.caller.Call(cctx, job.Action)
	cancel()

	elapsed := s.nowFn().Sub(start).Milliseconds()

	if err != nil {
		msg := err.Error()
		run.Error = &msg
		s.log.Warn("job call failed",
			logx.String("job_id", job.ID),
			logx.String("url", job.Action.URL),
			logx.Int64("elapsed_ms", elapsed),
			logx.Err(err),
		)
	} else {
		run.StatusCode = &status
		run.OK = status < 400
		run.ResponseText = &body
		run.ElapsedMS = &elapsed
		s.log.Debug("job call finished",
			logx.String("job_id", job.ID),
			logx.Int("status", status),
			logx.Bool("ok", run.OK),
			logx.Int64("elapsed_ms", elapsed),
		)
	}

	if werr := s.store.AppendRun(ctx, run); werr != nil {
		s.log.Error("run history write failed",
			logx.String("job_id", job.ID),
			logx.Err(werr),
		)
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeRunFinished,
			Time: s.nowFn(),
			Data: map[string]any{"job_id": job.ID, "ok": run.OK},
		})
	}
	return run
}
