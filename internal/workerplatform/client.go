// Package workerplatform is the typed REST client to the external
// human-task platform: create tasks, poll for results, with retry +
// backoff and outbound pacing. The transport internals of the platform
// itself are out of scope — this package only documents and implements
// the two endpoints it actually calls.
package workerplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dojonet/subnet/internal/domain"
	"github.com/dojonet/subnet/internal/metricset"
	"github.com/dojonet/subnet/internal/taskerr"
)

const (
	// MaxAttempts is the retry budget for CreateTask/GetTaskResultsByTaskId.
	MaxAttempts = 5
	// BaseDelay is the exponential backoff base:
	// delay = base * 2^attempt + U[0,1].
	BaseDelay = 1 * time.Second
	// CallTimeout is the per-call timeout.
	CallTimeout = 15 * time.Second

	defaultTitle = "LLM Code Generation Task"
)

// Client wraps the worker platform's REST surface with retry+backoff and a
// token-bucket limiter that caps outbound request bursts (a burst of tasks
// all expiring together must not overwhelm the platform).
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    *rate.Limiter

	// sleep is set by New; backoff does not call it (it waits on a timer
	// or ctx instead).
	sleep func(d time.Duration)
	// rng supplies the backoff jitter.
	rng *rand.Rand
}

// New constructs a Client against baseURL, authenticating with apiKey via
// the x-api-key header. The limiter allows a burst of
// 4 immediate requests and refills at 2/sec, generous enough not to
// throttle a single miner's own task flow but enough to protect the
// platform from a thundering herd at deadline time.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: CallTimeout},
		Limiter:    rate.NewLimiter(rate.Limit(2), 4),
		sleep:      time.Sleep,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type createTaskResponse struct {
	Body []uuid.UUID `json:"body"`
}

// CreateTask serializes prompt + completions to a multipart form and POSTs
// to /api/v1/tasks/create-tasks, returning the platform-side task ids.
// Fails with ErrCreateTaskFailed after MaxAttempts failed attempts. Every
// attempt — including the first — waits for the rate limiter, so a caller
// creating many tasks in a tight loop is paced automatically.
func (c *Client) CreateTask(ctx context.Context, task domain.TaskSynapse, maxResults int) ([]uuid.UUID, error) {
	taskData, err := json.Marshal(task)
	if err != nil {
		return nil, errors.Wrap(err, "workerplatform: failed to encode task data")
	}

	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if attempt > 0 {
			c.backoff(ctx, attempt)
		}
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, contentType, err := buildCreateTaskForm(task, taskData, maxResults)
		if err != nil {
			return nil, errors.Wrap(err, "workerplatform: failed to build multipart form")
		}

		resp, err := c.do(ctx, http.MethodPost, "/api/v1/tasks/create-tasks", contentType, body)
		if err != nil {
			lastErr = err
			metricset.WorkerPlatformRetries.Inc(1)
			log.Debug("workerplatform: CreateTask attempt failed", "attempt", attempt, "err", err)
			continue
		}

		var parsed createTaskResponse
		err = func() error {
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return fmt.Errorf("workerplatform: CreateTask status %d", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(&parsed)
		}()
		if err != nil {
			lastErr = err
			metricset.WorkerPlatformRetries.Inc(1)
			log.Debug("workerplatform: CreateTask response parse failed", "attempt", attempt, "err", err)
			continue
		}
		return parsed.Body, nil
	}
	log.Error("workerplatform: CreateTask exhausted retries", "attempts", MaxAttempts, "err", lastErr)
	return nil, errors.Wrap(taskerr.ErrCreateTaskFailed, lastErr.Error())
}

type taskResultResponse struct {
	Body struct {
		TaskResults []domain.Result `json:"taskResults"`
	} `json:"body"`
}

// GetTaskResultsByTaskId polls /api/v1/tasks/task-result/{id}. Returns nil
// (no error) if the body has no taskResults field or it is empty, matching
// the platform's documented null-result behavior exactly.
func (c *Client) GetTaskResultsByTaskId(ctx context.Context, taskID uuid.UUID) ([]domain.Result, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if attempt > 0 {
			c.backoff(ctx, attempt)
		}
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.do(ctx, http.MethodGet, "/api/v1/tasks/task-result/"+taskID.String(), "", nil)
		if err != nil {
			lastErr = err
			metricset.WorkerPlatformRetries.Inc(1)
			continue
		}

		var parsed taskResultResponse
		err = func() error {
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return fmt.Errorf("workerplatform: GetTaskResultsByTaskId status %d", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(&parsed)
		}()
		if err != nil {
			lastErr = err
			metricset.WorkerPlatformRetries.Inc(1)
			continue
		}
		if len(parsed.Body.TaskResults) == 0 {
			return nil, nil
		}
		return parsed.Body.TaskResults, nil
	}
	return nil, errors.Wrap(lastErr, "workerplatform: GetTaskResultsByTaskId exhausted retries")
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.HTTPClient.Do(req)
}

// backoff sleeps delay = base*2^attempt + U[0,1].
func (c *Client) backoff(ctx context.Context, attempt int) {
	delay := BaseDelay * (1 << uint(attempt))
	jitter := time.Duration(c.rng.Float64() * float64(time.Second))
	select {
	case <-time.After(delay + jitter):
	case <-ctx.Done():
	}
}

func buildCreateTaskForm(task domain.TaskSynapse, taskData []byte, maxResults int) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	title := defaultTitle
	fields := map[string]string{
		"title":      title,
		"body":       task.Prompt,
		"expireAt":   task.ExpireAt.Format(time.RFC3339),
		"taskData":   string(taskData),
		"maxResults": fmt.Sprintf("%d", maxResults),
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
