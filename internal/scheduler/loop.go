package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	"crontask/internal/eventbus"
	"crontask/internal/storage"
	logx "crontask/pkg/logx"
)

// idleWake bounds how long the loop sleeps with no scheduled work, so a
// next-fire landing far in the future never pins a huge timer.
const idleWake = time.Minute

// Run reconciles persisted schedules and then drives the timer loop until
// ctx is canceled. Intended to run under the supervisor.
func (s *Service) Run(ctx context.Context) error {
	if err := s.reconcile(ctx, s.nowFn()); err != nil {
		return err
	}

	for {
		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		if wake, ok := s.nextWake(ctx); ok {
			d := wake.Sub(s.nowFn())
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
		} else {
			timer = time.NewTimer(idleWake)
		}
		timerC = timer.C

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.kick:
			timer.Stop()
		case <-timerC:
			s.dispatchDue(ctx, s.nowFn())
		}
	}
}

// nextWake returns the earliest next fire across unpaused jobs.
func (s *Service) nextWake(ctx context.Context) (time.Time, bool) {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		s.log.Error("schedule scan failed", logx.Err(err))
		return time.Time{}, false
	}
	var (
		min   time.Time
		found bool
	)
	for _, job := range jobs {
		if job.Paused || job.NextFire == nil {
			continue
		}
		if !found || job.NextFire.Before(min) {
			min = *job.NextFire
			found = true
		}
	}
	return min, found
}

// dispatchDue fires every job whose next fire is at or before now, in
// ascending id order. Each job's next fire is advanced past now before its
// execution starts, so a crash mid-dispatch cannot refire an occurrence.
func (s *Service) dispatchDue(ctx context.Context, now time.Time) {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		s.log.Error("schedule scan failed", logx.Err(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range jobs {
		job, ok := s.reloadLocked(ctx, snap.ID)
		if !ok {
			continue
		}
		if job.Paused || job.NextFire == nil || job.NextFire.After(now) {
			continue
		}
		if err := s.advanceLocked(ctx, &job, now); err != nil {
			s.log.Error("next fire update failed", logx.String("job_id", job.ID), logx.Err(err))
			continue
		}
		s.fireLocked(ctx, job)
	}
}

// fireLocked starts one execution unless the job is still running, in which
// case the occurrence is coalesced away. Callers hold s.mu and must have
// already advanced the job's next fire.
func (s *Service) fireLocked(ctx context.Context, job storage.Job) {
	if !s.gate.tryAcquire(job.ID) {
		s.log.Debug("run skipped (previous still in flight)", logx.String("job_id", job.ID))
		s.publish(eventbus.TypeRunSkipped, map[string]any{"job_id": job.ID})
		return
	}

	// Shutdown stops new dispatches but must not abort a run already started:
	// the call is bounded by the executor's own timeout, and its history row
	// has to be written either way. Detach from the loop context.
	runCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.gate.release(job.ID)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("execution panicked",
					logx.String("job_id", job.ID),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		s.exec.Execute(runCtx, job)
	}()
}

// reconcile restores schedules after a restart. A job whose persisted next
// fire is in the past runs once iff it is stale by no more than the grace
// window; staler fires are dropped. Either way the job ends up with a single
// future next fire (or nil when exhausted). Missed occurrences are never
// replayed one by one.
func (s *Service) reconcile(ctx context.Context, now time.Time) error {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	grace := s.cfg.GraceWindow

	for _, snap := range jobs {
		job, ok := s.reloadLocked(ctx, snap.ID)
		if !ok || job.Paused {
			continue
		}

		if job.NextFire == nil {
			// Re-check exhaustion: the lookahead horizon moves with the clock.
			if err := s.advanceLocked(ctx, &job, now); err != nil {
				s.log.Warn("unschedulable job", logx.String("job_id", job.ID), logx.Err(err))
			}
			continue
		}
		if job.NextFire.After(now) {
			continue
		}

		missedBy := now.Sub(*job.NextFire)
		due := *job.NextFire
		if err := s.advanceLocked(ctx, &job, now); err != nil {
			s.log.Warn("unschedulable job", logx.String("job_id", job.ID), logx.Err(err))
			continue
		}

		if missedBy <= grace {
			s.log.Info("late fire within grace; running now",
				logx.String("job_id", job.ID),
				logx.Time("was_due", due),
				logx.Duration("missed_by", missedBy),
			)
			s.fireLocked(ctx, job)
		} else {
			s.log.Warn("missed fire beyond grace; skipping",
				logx.String("job_id", job.ID),
				logx.Time("was_due", due),
				logx.Duration("missed_by", missedBy),
			)
			s.publish(eventbus.TypeJobMisfired, map[string]any{
				"job_id":    job.ID,
				"was_due":   due,
				"missed_by": missedBy.String(),
			})
		}
	}
	return nil
}
