package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"crontask/internal/storage"
)

// maxResponseBytes caps how much of a response body is kept in a run record.
const maxResponseBytes = 64 << 10

// Caller performs the outbound HTTP call for one job action.
// It exists so tests (and the scheduler's own tests) can substitute a fake.
type Caller interface {
	Call(ctx context.Context, action storage.Action) (status int, body string, err error)
}

type httpCaller struct {
	client *http.Client
}

// NewHTTPCaller returns the production Caller backed by net/http.
// Timeouts are applied by the caller via ctx, not here.
func NewHTTPCaller() Caller {
	return &httpCaller{client: &http.Client{}}
}

func (c *httpCaller) Call(ctx context.Context, action storage.Action) (int, string, error) {
	var body io.Reader
	if action.Body != "" {
		body = strings.NewReader(action.Body)
	}
	req, err := http.NewRequestWithContext(ctx, action.Method, action.URL, body)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	for k, v := range action.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	// A failed body read still carries the status; keep whatever bytes arrived.
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	return resp.StatusCode, string(b), nil
}
