package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"crontask/internal/cronspec"
	"crontask/internal/storage"
	logx "crontask/pkg/logx"
)

const maxJobIDLen = 200

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

func validateSpec(spec *JobSpec) error {
	spec.ID = strings.TrimSpace(spec.ID)
	if spec.ID == "" || len(spec.ID) > maxJobIDLen {
		return fmt.Errorf("%w: id must be 1-%d characters", ErrValidation, maxJobIDLen)
	}
	spec.Action.Method = strings.ToUpper(strings.TrimSpace(spec.Action.Method))
	if !allowedMethods[spec.Action.Method] {
		return fmt.Errorf("%w: unsupported method %q", ErrValidation, spec.Action.Method)
	}
	u, err := url.Parse(strings.TrimSpace(spec.Action.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be absolute http(s)", ErrValidation)
	}
	spec.Action.URL = u.String()
	return nil
}

// Create validates, persists, and schedules a new job. The first fire is the
// earliest cron match strictly after "now".
func (s *Service) Create(ctx context.Context, spec JobSpec) (JobView, error) {
	if err := validateSpec(&spec); err != nil {
		return JobView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tr, err := cronspec.Parse(spec.Cron, s.loc)
	if err != nil {
		return JobView{}, err
	}

	now := s.nowFn()
	job := storage.Job{
		ID:        spec.ID,
		Cron:      tr.Expr(),
		Action:    spec.Action,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if next, ok := tr.NextAfter(now); ok {
		n := next.UTC()
		job.NextFire = &n
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return JobView{}, err
	}
	s.triggers[job.ID] = tr
	s.kickLoop()

	s.log.Info("job created",
		logx.String("job_id", job.ID),
		logx.String("cron", job.Cron),
		logx.String("url", job.Action.URL),
	)
	return view(job), nil
}

func (s *Service) Get(ctx context.Context, id string) (JobView, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return JobView{}, err
	}
	return view(job), nil
}

func (s *Service) List(ctx context.Context) ([]JobView, error) {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, view(job))
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	delete(s.triggers, id)
	s.kickLoop()
	s.log.Info("job deleted", logx.String("job_id", id))
	return nil
}

// Pause stops future fires. The next fire is cleared; an in-flight execution
// is allowed to finish. Pausing a paused job is a no-op.
func (s *Service) Pause(ctx context.Context, id string) (JobView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return JobView{}, err
	}
	if job.Paused {
		return view(job), nil
	}

	job.Paused = true
	job.NextFire = nil
	job.UpdatedAt = s.nowFn().UTC()
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return JobView{}, err
	}
	s.kickLoop()
	s.log.Info("job paused", logx.String("job_id", id))
	return view(job), nil
}

// Resume recomputes the next fire from "now"; occurrences that fell inside
// the paused window are not replayed.
func (s *Service) Resume(ctx context.Context, id string) (JobView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return JobView{}, err
	}
	if !job.Paused {
		return view(job), nil
	}

	job.Paused = false
	if err := s.advanceLocked(ctx, &job, s.nowFn()); err != nil {
		return JobView{}, err
	}
	s.kickLoop()
	s.log.Info("job resumed", logx.String("job_id", id))
	return view(job), nil
}

// Runs returns one page of a job's history, newest first, plus the total row
// count. The job must exist even when it has no runs yet.
func (s *Service) Runs(ctx context.Context, q storage.RunQuery) ([]storage.Run, int, error) {
	if _, err := s.store.GetJob(ctx, q.JobID); err != nil {
		return nil, 0, err
	}
	return s.store.ListRuns(ctx, q)
}
