package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"crontask/internal/cronspec"
	"crontask/internal/eventbus"
	"crontask/internal/storage"
	logx "crontask/pkg/logx"
)

// ErrValidation wraps all job definition rejections (bad id, method, url).
// Cron expression errors surface as cronspec.ErrInvalidFormat/ErrInvalidField.
var ErrValidation = errors.New("invalid job definition")

// Config controls trigger behavior.
type Config struct {
	// Timezone is an IANA name; empty means UTC.
	Timezone string

	// GraceWindow bounds how late a missed fire may still run after a
	// restart. Default 60s.
	GraceWindow time.Duration
}

const defaultGraceWindow = 60 * time.Second

// Status summarizes a job's scheduling state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusPaused    Status = "paused"
	StatusExhausted Status = "exhausted"
)

// JobSpec is a job creation request.
type JobSpec struct {
	ID     string
	Cron   string
	Action storage.Action
}

// JobView is a job snapshot plus its derived status.
type JobView struct {
	storage.Job
	Status Status
}

// Runner executes one due job and records the outcome.
// Satisfied by *executor.Service.
type Runner interface {
	Execute(ctx context.Context, job storage.Job) storage.Run
}

// runGate is the per-job in-flight gate behind coalesce-and-skip: at most one
// execution per job at a time, and a due occurrence during a running one is
// dropped rather than queued.
type runGate struct {
	mu       sync.Mutex
	inflight map[string]bool
}

func newRunGate() *runGate {
	return &runGate{inflight: make(map[string]bool)}
}

func (g *runGate) tryAcquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight[id] {
		return false
	}
	g.inflight[id] = true
	return true
}

func (g *runGate) release(id string) {
	g.mu.Lock()
	delete(g.inflight, id)
	g.mu.Unlock()
}

type Service struct {
	// mu serializes mutations (single-writer discipline per job) and guards
	// cfg/loc/triggers.
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	loc   *time.Location
	bus   eventbus.Bus
	store storage.Store
	exec  Runner

	// triggers caches parsed cron expressions per job id.
	triggers map[string]cronspec.Trigger

	gate *runGate
	kick chan struct{}
	wg   sync.WaitGroup

	// nowFn is swapped in tests.
	nowFn func() time.Time
}
