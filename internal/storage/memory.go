package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore keeps everything in process memory. It exists for tests and
// for running without persistence; history is lost on restart.
type memoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]Job
	runs   []Run
	nextID int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{jobs: make(map[string]Job)}
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) CreateJob(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobExists
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *memoryStore) GetJob(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *memoryStore) ListJobs(_ context.Context) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) UpdateJob(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *memoryStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *memoryStore) AppendRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	run.ID = s.nextID
	if run.RunAt.IsZero() {
		run.RunAt = time.Now()
	}
	run.RunAt = run.RunAt.UTC()
	s.runs = append(s.runs, run)
	return nil
}

func (s *memoryStore) ListRuns(_ context.Context, q RunQuery) ([]Run, int, error) {
	if err := q.validate(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Run
	for _, r := range s.runs {
		if r.JobID == q.JobID {
			matched = append(matched, r)
		}
	}
	// Newest first; insertion order breaks run_at ties.
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].RunAt.Equal(matched[j].RunAt) {
			return matched[i].RunAt.After(matched[j].RunAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if q.Offset >= total {
		return nil, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	page := make([]Run, end-q.Offset)
	copy(page, matched[q.Offset:end])
	return page, total, nil
}

func cloneJob(job Job) Job {
	if job.NextFire != nil {
		t := *job.NextFire
		job.NextFire = &t
	}
	if job.Action.Headers != nil {
		h := make(map[string]string, len(job.Action.Headers))
		for k, v := range job.Action.Headers {
			h[k] = v
		}
		job.Action.Headers = h
	}
	return job
}
