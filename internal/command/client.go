// Package command issues outbound HTTP commands to the Sentinel backend.
// Calls are single request/response; the sync core treats them as
// fire-and-forget and never folds response bodies back into task state
// beyond logging and command records.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinelhq/sentinel-sync/internal/reliability"
)

// APIError is a non-2xx command response: the server's detail string when it
// supplied one, a status-derived message otherwise.
type APIError struct {
	Status    int
	Detail    string
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "command").Logger(),
	}
}

type ScanRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type ScanResponse struct {
	ScanID     string `json:"scan_id"`
	RootPath   string `json:"root_path"`
	TotalFiles int    `json:"total_files"`
}

type PlanRequest struct {
	ScanID     string `json:"scan_id,omitempty"`
	Mode       string `json:"mode,omitempty"`
	UserPrompt string `json:"user_prompt,omitempty"`
	Path       string `json:"path,omitempty"`
}

type PlanResponse struct {
	TaskID       string `json:"task_id"`
	Summary      string `json:"summary"`
	TotalActions int    `json:"total_actions"`
}

type PreviewRequest struct {
	PlanID string `json:"plan_id"`
}

type PreviewResponse struct {
	TaskID      string `json:"task_id"`
	PreviewText string `json:"preview_text"`
}

type ExecuteRequest struct {
	TaskID string `json:"task_id"`
	// SkipSafety is always sent false. The client never offers to bypass
	// backend safety validation.
	SkipSafety bool `json:"skip_safety"`
}

type UndoRequest struct {
	TaskID string `json:"task_id"`
}

type TaskSummary struct {
	TaskID    string `json:"task_id"`
	State     string `json:"state"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}

type TaskListResponse struct {
	Tasks []TaskSummary `json:"tasks"`
	Total int           `json:"total"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (c *Client) Scan(ctx context.Context, path string, recursive bool) (ScanResponse, error) {
	var out ScanResponse
	err := c.post(ctx, "/scan", ScanRequest{Path: path, Recursive: recursive}, &out)
	return out, err
}

func (c *Client) CreatePlan(ctx context.Context, scanID, mode, prompt, path string) (PlanResponse, error) {
	var out PlanResponse
	err := c.post(ctx, "/plan", PlanRequest{ScanID: scanID, Mode: mode, UserPrompt: prompt, Path: path}, &out)
	return out, err
}

func (c *Client) PreviewPlan(ctx context.Context, planID string) (PreviewResponse, error) {
	var out PreviewResponse
	err := c.post(ctx, "/preview", PreviewRequest{PlanID: planID}, &out)
	return out, err
}

func (c *Client) ApprovePlan(ctx context.Context, taskID string) error {
	return c.post(ctx, "/plan/"+taskID+"/approve-all", nil, nil)
}

func (c *Client) ExecuteTask(ctx context.Context, taskID string) error {
	return c.post(ctx, "/execute", ExecuteRequest{TaskID: taskID, SkipSafety: false}, nil)
}

func (c *Client) GetTasks(ctx context.Context) (TaskListResponse, error) {
	var out TaskListResponse
	err := c.get(ctx, "/tasks", &out)
	return out, err
}

func (c *Client) GetTask(ctx context.Context, taskID string) (TaskSummary, error) {
	var out TaskSummary
	err := c.get(ctx, "/tasks/"+taskID, &out)
	return out, err
}

func (c *Client) UndoTask(ctx context.Context, taskID string) error {
	return c.post(ctx, "/undo", UndoRequest{TaskID: taskID}, nil)
}

func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.get(ctx, "/health", &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("url", req.URL.Path).Msg("command transport failure")
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := c.apiError(res)
		c.log.Warn().Err(apiErr).Str("url", req.URL.Path).Msg("command rejected by backend")
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) apiError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	detail := ""
	var parsed struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		detail = strings.TrimSpace(parsed.Detail)
	}
	if detail == "" {
		detail = http.StatusText(res.StatusCode)
	}
	return &APIError{
		Status:    res.StatusCode,
		Detail:    detail,
		Retryable: reliability.IsRetryableHTTPStatus(res.StatusCode),
	}
}
