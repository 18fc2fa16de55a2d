// Package backend calls the portal REST services the runtime consumes: exam configuration,
// exercise detail, evaluation and result storage.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/model"
)

// ErrNotFound is returned when the backend answers 404.
var ErrNotFound = errors.New("resource not found")

// StatusError is a non-2xx backend answer.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client is a REST client for the portal backend. It is safe for concurrent use.
type Client struct {
	base  string
	http  *http.Client
	token string
	log   zerolog.Logger
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
		log:  log.With().Str("component", "backend_client").Logger(),
	}
}

// WithToken returns a copy of c that forwards the candidate's bearer token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// FetchExam returns the configuration and content tree of an exam.
func (c *Client) FetchExam(ctx context.Context, examID string) (*model.ExamConfig, error) {
	var out model.ExamConfig
	if err := c.do(ctx, "fetch exam", http.MethodGet, "/exams/"+url.PathEscape(examID), nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = examID
	}
	return &out, nil
}

// FetchExercise returns the full step/action detail of an exercise.
func (c *Client) FetchExercise(ctx context.Context, exerciseID string) (*model.Exercise, error) {
	var out model.Exercise
	if err := c.do(ctx, "fetch exercise", http.MethodGet, "/exercises/"+url.PathEscape(exerciseID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Evaluate grades a session remotely.
func (c *Client) Evaluate(ctx context.Context, examID string, req *model.EvaluateRequest) (*model.EvaluateResponse, error) {
	var out model.EvaluateResponse
	if err := c.do(ctx, "evaluate", http.MethodPost, "/exams/"+url.PathEscape(examID)+"/evaluate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveResult stores a graded session.
func (c *Client) SaveResult(ctx context.Context, examID string, req *model.SaveResultRequest) (*model.SaveResultResponse, error) {
	var out model.SaveResultResponse
	if err := c.do(ctx, "save result", http.MethodPost, "/exams/"+url.PathEscape(examID)+"/results", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// envelope matches backends answering {"data": ...}; bare bodies are accepted as well.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}

	c.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Backend call")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		raw = env.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
