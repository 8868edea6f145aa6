package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"crontask/internal/cronspec"
	"crontask/internal/scheduler"
	"crontask/internal/storage"
	logx "crontask/pkg/logx"
)

const (
	defaultRunsLimit = 20
)

type createJobRequest struct {
	ID      string            `json:"id"`
	Cron    string            `json:"cron"`
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type jobResponse struct {
	ID          string            `json:"id"`
	Cron        string            `json:"cron"`
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	NextRunTime *time.Time        `json:"next_run_time"`
	Status      string            `json:"status"`
}

type runResponse struct {
	JobID        string    `json:"job_id"`
	URL          string    `json:"url"`
	Cron         string    `json:"cron"`
	Method       string    `json:"method"`
	StatusCode   *int      `json:"status_code"`
	OK           bool      `json:"ok"`
	ResponseText *string   `json:"response_text"`
	ElapsedMS    *int64    `json:"elapsed_ms"`
	Error        *string   `json:"error"`
	RunAt        time.Time `json:"run_at"`
}

func toJobResponse(v scheduler.JobView) jobResponse {
	return jobResponse{
		ID:          v.ID,
		Cron:        v.Cron,
		URL:         v.Action.URL,
		Method:      v.Action.Method,
		Headers:     v.Action.Headers,
		Body:        v.Action.Body,
		NextRunTime: v.NextFire,
		Status:      string(v.Status),
	}
}

func toRunResponse(r storage.Run) runResponse {
	return runResponse{
		JobID:        r.JobID,
		URL:          r.URL,
		Cron:         r.Cron,
		Method:       r.Method,
		StatusCode:   r.StatusCode,
		OK:           r.OK,
		ResponseText: r.ResponseText,
		ElapsedMS:    r.ElapsedMS,
		Error:        r.Error,
		RunAt:        r.RunAt,
	}
}

// writeError maps domain errors to status codes. Anything unrecognized is a 500.
func (s *Service) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrValidation),
		errors.Is(err, cronspec.ErrInvalidFormat),
		errors.Is(err, cronspec.ErrInvalidField),
		errors.Is(err, storage.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrJobExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed", logx.String("path", c.FullPath()), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Service) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Service) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job payload"})
		return
	}

	v, err := s.sched.Create(c.Request.Context(), scheduler.JobSpec{
		ID:   req.ID,
		Cron: req.Cron,
		Action: storage.Action{
			Method:  req.Method,
			URL:     req.URL,
			Headers: req.Headers,
			Body:    req.Body,
		},
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": v.ID, "status": string(v.Status)})
}

func (s *Service) listJobs(c *gin.Context) {
	views, err := s.sched.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]jobResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toJobResponse(v))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Service) getJob(c *gin.Context) {
	v, err := s.sched.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toJobResponse(v))
}

func (s *Service) deleteJob(c *gin.Context) {
	id := c.Param("id")
	if err := s.sched.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": "deleted"})
}

func (s *Service) pauseJob(c *gin.Context) {
	v, err := s.sched.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": v.ID, "status": string(v.Status)})
}

func (s *Service) resumeJob(c *gin.Context) {
	v, err := s.sched.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": v.ID, "status": string(v.Status)})
}

func (s *Service) listRuns(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultRunsLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
		return
	}

	runs, total, err := s.sched.Runs(c.Request.Context(), storage.RunQuery{
		JobID:  c.Param("id"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	items := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		items = append(items, toRunResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
