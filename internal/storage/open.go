package storage

import (
	"context"
	"errors"
	"strings"

	logx "crontask/pkg/logx"
)

// Store is the persistence API used by the scheduler and the HTTP API.
//
// Job rows carry the full definition plus the persisted next fire time so a
// restart can reconcile missed fires. Run rows are append-only history.
type Store interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	UpdateJob(ctx context.Context, job Job) error
	DeleteJob(ctx context.Context, id string) error

	AppendRun(ctx context.Context, run Run) error
	// ListRuns returns one page of a job's history (newest first) plus the
	// total row count for that job.
	ListRuns(ctx context.Context, q RunQuery) ([]Run, int, error)

	Close() error
}

// Open initializes the configured store. An empty driver means sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
