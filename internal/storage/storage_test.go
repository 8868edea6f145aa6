package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "crontask/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]Store{
		"sqlite": sq,
		"memory": NewMemory(),
	}
}

func testJob(id string) Job {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	next := now.Add(time.Hour)
	return Job{
		ID:   id,
		Cron: "0 * * * *",
		Action: Action{
			Method:  "GET",
			URL:     "http://example.com/ping",
			Headers: map[string]string{"X-Token": "abc"},
		},
		NextFire:  &next,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestJobLifecycle(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, st.CreateJob(ctx, testJob("hourly")))
			assert.ErrorIs(t, st.CreateJob(ctx, testJob("hourly")), ErrJobExists)

			got, err := st.GetJob(ctx, "hourly")
			require.NoError(t, err)
			assert.Equal(t, "0 * * * *", got.Cron)
			assert.Equal(t, "GET", got.Action.Method)
			assert.Equal(t, map[string]string{"X-Token": "abc"}, got.Action.Headers)
			require.NotNil(t, got.NextFire)
			assert.Equal(t, time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC), got.NextFire.UTC())

			_, err = st.GetJob(ctx, "nope")
			assert.ErrorIs(t, err, ErrJobNotFound)

			got.Paused = true
			got.NextFire = nil
			got.UpdatedAt = got.UpdatedAt.Add(time.Minute)
			require.NoError(t, st.UpdateJob(ctx, got))

			got, err = st.GetJob(ctx, "hourly")
			require.NoError(t, err)
			assert.True(t, got.Paused)
			assert.Nil(t, got.NextFire)

			assert.ErrorIs(t, st.UpdateJob(ctx, testJob("nope")), ErrJobNotFound)

			require.NoError(t, st.DeleteJob(ctx, "hourly"))
			assert.ErrorIs(t, st.DeleteJob(ctx, "hourly"), ErrJobNotFound)
		})
	}
}

func TestListJobsSorted(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"charlie", "alpha", "bravo"} {
				require.NoError(t, st.CreateJob(ctx, testJob(id)))
			}
			jobs, err := st.ListJobs(ctx)
			require.NoError(t, err)
			require.Len(t, jobs, 3)
			assert.Equal(t, "alpha", jobs[0].ID)
			assert.Equal(t, "bravo", jobs[1].ID)
			assert.Equal(t, "charlie", jobs[2].ID)
		})
	}
}

func TestRunHistoryPagination(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

			for i := 0; i < 25; i++ {
				status := 200
				took := int64(10 + i)
				require.NoError(t, st.AppendRun(ctx, Run{
					JobID:      "ping",
					Cron:       "* * * * *",
					Method:     "GET",
					URL:        "http://example.com",
					StatusCode: &status,
					OK:         true,
					ElapsedMS:  &took,
					RunAt:      base.Add(time.Duration(i) * time.Minute),
				}))
			}
			// Another job's runs must not leak into the page.
			require.NoError(t, st.AppendRun(ctx, Run{
				JobID: "other", Cron: "* * * * *", Method: "GET",
				URL: "http://example.com", RunAt: base,
			}))

			page, total, err := st.ListRuns(ctx, RunQuery{JobID: "ping", Limit: 20})
			require.NoError(t, err)
			assert.Equal(t, 25, total)
			require.Len(t, page, 20)
			// Newest first.
			assert.Equal(t, base.Add(24*time.Minute), page[0].RunAt)
			assert.Equal(t, base.Add(5*time.Minute), page[19].RunAt)

			page, total, err = st.ListRuns(ctx, RunQuery{JobID: "ping", Limit: 20, Offset: 20})
			require.NoError(t, err)
			assert.Equal(t, 25, total)
			require.Len(t, page, 5)
			assert.Equal(t, base.Add(4*time.Minute), page[0].RunAt)

			page, total, err = st.ListRuns(ctx, RunQuery{JobID: "ping", Limit: 20, Offset: 100})
			require.NoError(t, err)
			assert.Equal(t, 25, total)
			assert.Empty(t, page)
		})
	}
}

func TestRunTieBreakNewestInsertFirst(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
			for _, tag := range []string{"first", "second"} {
				body := tag
				require.NoError(t, st.AppendRun(ctx, Run{
					JobID: "tie", Cron: "* * * * *", Method: "GET",
					URL: "http://example.com", ResponseText: &body, RunAt: at,
				}))
			}
			page, _, err := st.ListRuns(ctx, RunQuery{JobID: "tie", Limit: 2})
			require.NoError(t, err)
			require.Len(t, page, 2)
			require.NotNil(t, page[0].ResponseText)
			assert.Equal(t, "second", *page[0].ResponseText)
		})
	}
}

func TestListRunsInvalidRange(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, q := range []RunQuery{
				{JobID: "x", Limit: 0},
				{JobID: "x", Limit: MaxRunsPageSize + 1},
				{JobID: "x", Limit: 10, Offset: -1},
			} {
				_, _, err := st.ListRuns(ctx, q)
				assert.ErrorIs(t, err, ErrInvalidRange, "query %+v", q)
			}
		})
	}
}

func TestRunsSurviveJobDeletion(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.CreateJob(ctx, testJob("gone")))
			require.NoError(t, st.AppendRun(ctx, Run{
				JobID: "gone", Cron: "0 * * * *", Method: "GET",
				URL: "http://example.com", RunAt: time.Now(),
			}))
			require.NoError(t, st.DeleteJob(ctx, "gone"))

			_, total, err := st.ListRuns(ctx, RunQuery{JobID: "gone", Limit: 10})
			require.NoError(t, err)
			assert.Equal(t, 1, total)
		})
	}
}
