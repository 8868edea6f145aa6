package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "crontask/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateJob(ctx context.Context, job Job) error {
	headers, err := marshalHeaders(job.Action.Headers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, cron, method, url, headers, body, paused, next_fire, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		job.ID, job.Cron, job.Action.Method, job.Action.URL, headers, nullStr(job.Action.Body),
		boolInt(job.Paused), nullMillis(job.NextFire),
		job.CreatedAt.UTC().Format(time.RFC3339Nano), job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil && isUniqueViolation(err) {
		return ErrJobExists
	}
	return err
}

func (s *sqliteStore) GetJob(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, cron, method, url, headers, body, paused, next_fire, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	return job, err
}

func (s *sqliteStore) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cron, method, url, headers, body, paused, next_fire, created_at, updated_at
		 FROM jobs ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateJob(ctx context.Context, job Job) error {
	headers, err := marshalHeaders(job.Action.Headers)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET cron=?, method=?, url=?, headers=?, body=?, paused=?, next_fire=?, updated_at=?
		 WHERE id=?`,
		job.Cron, job.Action.Method, job.Action.URL, headers, nullStr(job.Action.Body),
		boolInt(job.Paused), nullMillis(job.NextFire),
		job.UpdatedAt.UTC().Format(time.RFC3339Nano), job.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *sqliteStore) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	// Run history is append-only and deliberately outlives the job.
	return nil
}

func (s *sqliteStore) AppendRun(ctx context.Context, run Run) error {
	if run.RunAt.IsZero() {
		run.RunAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(job_id, cron, method, url, status_code, ok, response_text, err, elapsed_ms, run_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		run.JobID, run.Cron, run.Method, run.URL,
		nullIntPtr(run.StatusCode), boolInt(run.OK), nullStrPtr(run.ResponseText),
		nullStrPtr(run.Error), nullInt64Ptr(run.ElapsedMS), run.RunAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) ListRuns(ctx context.Context, q RunQuery) ([]Run, int, error) {
	if err := q.validate(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE job_id = ?`, q.JobID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, cron, method, url, status_code, ok, response_text, err, elapsed_ms, run_at
		 FROM runs WHERE job_id = ?
		 ORDER BY run_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		q.JobID, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r      Run
			status sql.NullInt64
			ok     int
			body   sql.NullString
			runErr sql.NullString
			took   sql.NullInt64
			atMS   int64
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.Cron, &r.Method, &r.URL,
			&status, &ok, &body, &runErr, &took, &atMS); err != nil {
			return nil, 0, err
		}
		if status.Valid {
			v := int(status.Int64)
			r.StatusCode = &v
		}
		r.OK = ok != 0
		if body.Valid {
			v := body.String
			r.ResponseText = &v
		}
		if runErr.Valid {
			v := runErr.String
			r.Error = &v
		}
		if took.Valid {
			v := took.Int64
			r.ElapsedMS = &v
		}
		r.RunAt = time.UnixMilli(atMS).UTC()
		out = append(out, r)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		job     Job
		headers sql.NullString
		body    sql.NullString
		paused  int
		nextMS  sql.NullInt64
		created string
		updated string
	)
	if err := row.Scan(&job.ID, &job.Cron, &job.Action.Method, &job.Action.URL,
		&headers, &body, &paused, &nextMS, &created, &updated); err != nil {
		return Job{}, err
	}
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &job.Action.Headers); err != nil {
			return Job{}, fmt.Errorf("job %s: corrupt headers: %w", job.ID, err)
		}
	}
	if body.Valid {
		job.Action.Body = body.String
	}
	job.Paused = paused != 0
	if nextMS.Valid {
		t := time.UnixMilli(nextMS.Int64).UTC()
		job.NextFire = &t
	}
	var err error
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Job{}, fmt.Errorf("job %s: corrupt created_at: %w", job.ID, err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Job{}, fmt.Errorf("job %s: corrupt updated_at: %w", job.ID, err)
	}
	return job, nil
}

func marshalHeaders(h map[string]string) (any, error) {
	if len(h) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures as text; avoid binding
	// to driver-specific error types.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullStrPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
