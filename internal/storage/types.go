package storage

import (
	"errors"
	"time"
)

var (
	// ErrJobExists is returned by CreateJob when the id is already taken.
	ErrJobExists = errors.New("job already exists")

	// ErrJobNotFound is returned when the referenced job id does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidRange is returned by ListRuns for an out-of-bounds page.
	ErrInvalidRange = errors.New("invalid range")
)

// MaxRunsPageSize bounds a single ListRuns page.
const MaxRunsPageSize = 200

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process, lost on restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Action is the HTTP call a job performs when it fires.
type Action struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// Job is a stored schedule definition.
//
// NextFire is nil while the job is paused or its cron expression has no
// future fire time.
type Job struct {
	ID        string
	Cron      string
	Action    Action
	Paused    bool
	NextFire  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Run records one execution attempt. Rows are append-only.
//
// StatusCode/ResponseText/ElapsedMS are nil when the call never produced a
// response (connection refused, timeout). Error is nil on success.
type Run struct {
	ID           int64
	JobID        string
	Cron         string
	Method       string
	URL          string
	StatusCode   *int
	OK           bool
	ResponseText *string
	ElapsedMS    *int64
	Error        *string
	RunAt        time.Time
}

// RunQuery selects a page of run history for one job, newest first.
type RunQuery struct {
	JobID  string
	Limit  int // 1..MaxRunsPageSize
	Offset int // >= 0
}

func (q RunQuery) validate() error {
	if q.Limit < 1 || q.Limit > MaxRunsPageSize {
		return ErrInvalidRange
	}
	if q.Offset < 0 {
		return ErrInvalidRange
	}
	return nil
}
