package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crontask/internal/storage"
	logx "crontask/pkg/logx"
)

type fakeCaller struct {
	status int
	body   string
	err    error

	mu         sync.Mutex
	calls      int
	concurrent int32
	peak       int32
	delay      time.Duration
}

func (f *fakeCaller) Call(ctx context.Context, _ storage.Action) (int, string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	cur := atomic.AddInt32(&f.concurrent, 1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if cur <= p || atomic.CompareAndSwapInt32(&f.peak, p, cur) {
			break
		}
	}
	defer atomic.AddInt32(&f.concurrent, -1)

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return 0, "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.status, f.body, f.err
}

func pingJob() storage.Job {
	return storage.Job{
		ID:   "ping",
		Cron: "* * * * *",
		Action: storage.Action{
			Method: "GET",
			URL:    "http://example.com/ping",
		},
	}
}

func TestExecuteSuccess(t *testing.T) {
	st := storage.NewMemory()
	svc := New(st, nil, logx.Nop(), Config{}, &fakeCaller{status: 200, body: "pong"})

	run := svc.Execute(context.Background(), pingJob())

	require.NotNil(t, run.StatusCode)
	assert.Equal(t, 200, *run.StatusCode)
	assert.True(t, run.OK)
	require.NotNil(t, run.ResponseText)
	assert.Equal(t, "pong", *run.ResponseText)
	require.NotNil(t, run.ElapsedMS)
	assert.Nil(t, run.Error)

	_, total, err := st.ListRuns(context.Background(), storage.RunQuery{JobID: "ping", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestExecuteHTTPErrorStatus(t *testing.T) {
	st := storage.NewMemory()
	svc := New(st, nil, logx.Nop(), Config{}, &fakeCaller{status: 503, body: "down"})

	run := svc.Execute(context.Background(), pingJob())

	require.NotNil(t, run.StatusCode)
	assert.Equal(t, 503, *run.StatusCode)
	assert.False(t, run.OK)
	assert.Nil(t, run.Error)
}

func TestExecuteTransportFailure(t *testing.T) {
	st := storage.NewMemory()
	svc := New(st, nil, logx.Nop(), Config{}, &fakeCaller{err: context.DeadlineExceeded})

	run := svc.Execute(context.Background(), pingJob())

	assert.Nil(t, run.StatusCode)
	assert.Nil(t, run.ElapsedMS)
	assert.False(t, run.OK)
	require.NotNil(t, run.Error)

	// Failures still land in history.
	_, total, err := st.ListRuns(context.Background(), storage.RunQuery{JobID: "ping", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestExecuteTimeout(t *testing.T) {
	st := storage.NewMemory()
	fc := &fakeCaller{status: 200, delay: time.Second}
	svc := New(st, nil, logx.Nop(), Config{RequestTimeout: 20 * time.Millisecond}, fc)

	run := svc.Execute(context.Background(), pingJob())

	require.NotNil(t, run.Error)
	assert.Nil(t, run.StatusCode)
}

func TestExecuteInFlightCap(t *testing.T) {
	st := storage.NewMemory()
	fc := &fakeCaller{status: 200, delay: 30 * time.Millisecond}
	svc := New(st, nil, logx.Nop(), Config{MaxInFlight: 2}, fc)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Execute(context.Background(), pingJob())
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, fc.calls)
	assert.LessOrEqual(t, atomic.LoadInt32(&fc.peak), int32(2))
}

func TestHTTPCaller(t *testing.T) {
	var gotMethod, gotHeader, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Token")
		b := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(b)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer srv.Close()

	status, body, err := NewHTTPCaller().Call(context.Background(), storage.Action{
		Method:  "POST",
		URL:     srv.URL,
		Headers: map[string]string{"X-Token": "abc"},
		Body:    `{"hello":"world"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "created", body)
	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "abc", gotHeader)
	assert.JSONEq(t, `{"hello":"world"}`, gotBody)
}
