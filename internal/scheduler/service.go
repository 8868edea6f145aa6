package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"crontask/internal/cronspec"
	"crontask/internal/eventbus"
	"crontask/internal/storage"
	logx "crontask/pkg/logx"
)

func New(cfg Config, store storage.Store, exec Runner, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = defaultGraceWindow
	}
	s := &Service{
		log:      log,
		cfg:      cfg,
		bus:      bus,
		store:    store,
		exec:     exec,
		triggers: make(map[string]cronspec.Trigger),
		gate:     newRunGate(),
		kick:     make(chan struct{}, 1),
		nowFn:    time.Now,
	}
	s.loc = s.loadLocation(cfg.Timezone)
	return s
}

func (s *Service) loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}

// Apply updates trigger config. A timezone change re-parses every cached
// trigger and recomputes next fires in the new location; the grace window
// applies on the next reconcile.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = defaultGraceWindow
	}

	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	tzChanged := oldTZ != newTZ
	if tzChanged {
		s.loc = s.loadLocation(newTZ)
		s.triggers = make(map[string]cronspec.Trigger)
	}
	s.mu.Unlock()

	if !tzChanged {
		return
	}

	s.log.Info("timezone changed; recomputing schedules", logx.String("tz", newTZ))
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		s.log.Error("schedule recompute failed", logx.Err(err))
		return
	}
	now := s.nowFn()
	s.mu.Lock()
	for _, snap := range jobs {
		job, ok := s.reloadLocked(ctx, snap.ID)
		if !ok || job.Paused {
			continue
		}
		if err := s.advanceLocked(ctx, &job, now); err != nil {
			s.log.Error("schedule recompute failed", logx.String("job_id", job.ID), logx.Err(err))
		}
	}
	s.mu.Unlock()
	s.kickLoop()
}

// Wait blocks until all in-flight executions have finished.
func (s *Service) Wait() { s.wg.Wait() }

// kickLoop wakes the timer loop after a mutation. Non-blocking; the loop
// re-reads the store on every wake so one pending kick is enough.
func (s *Service) kickLoop() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// trigger returns the cached parsed trigger for a job, parsing on miss.
// Callers hold s.mu.
func (s *Service) triggerLocked(job *storage.Job) (cronspec.Trigger, error) {
	if tr, ok := s.triggers[job.ID]; ok && tr.Expr() == job.Cron {
		return tr, nil
	}
	tr, err := cronspec.Parse(job.Cron, s.loc)
	if err != nil {
		return cronspec.Trigger{}, err
	}
	s.triggers[job.ID] = tr
	return tr, nil
}

// reloadLocked re-reads a job by id. Scans run outside the mutex, so a
// mutation can commit between the scan and the lock; decisions and
// write-backs must use the committed row, never the scan snapshot.
// Callers hold s.mu.
func (s *Service) reloadLocked(ctx context.Context, id string) (storage.Job, bool) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrJobNotFound) {
			s.log.Error("job reload failed", logx.String("job_id", id), logx.Err(err))
		}
		return storage.Job{}, false
	}
	return job, true
}

// advanceLocked recomputes a job's next fire strictly after now and persists
// it. An exhausted trigger persists a nil next fire. Callers hold s.mu.
func (s *Service) advanceLocked(ctx context.Context, job *storage.Job, now time.Time) error {
	tr, err := s.triggerLocked(job)
	if err != nil {
		return err
	}
	if next, ok := tr.NextAfter(now); ok {
		n := next.UTC()
		job.NextFire = &n
	} else {
		job.NextFire = nil
	}
	job.UpdatedAt = now.UTC()
	return s.store.UpdateJob(ctx, *job)
}

func (s *Service) publish(typ string, data map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.nowFn(), Data: data})
}

func statusOf(job storage.Job) Status {
	switch {
	case job.Paused:
		return StatusPaused
	case job.NextFire == nil:
		return StatusExhausted
	default:
		return StatusScheduled
	}
}

func view(job storage.Job) JobView {
	return JobView{Job: job, Status: statusOf(job)}
}
