package coordservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client wraps the coordination service's hashlist/task HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client. cfg.BaseURL is required.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("coordservice client: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, httpClient: httpClient}, nil
}

// TaskStatus is the result of getTaskStatus.
type TaskStatus struct {
	PercentComplete  float64 `json:"percentComplete"`
	Keyspace         int64   `json:"keyspace"`
	KeyspaceProgress int64   `json:"keyspaceProgress"`
	IsArchived       bool    `json:"isArchived"`
}

// TaskSummary is one entry of listTasks.
type TaskSummary struct {
	TaskID     string `json:"taskId"`
	Name       string `json:"name"`
	AttackCmd  string `json:"attackCmd"`
	HashlistID string `json:"hashlistId"`
}

// CrackedPair is one recovered (hash, plaintext) pair returned by
// getCrackedHashes.
type CrackedPair struct {
	Hash  string `json:"hash"`
	Plain string `json:"plain"`
}

type createHashlistRequest struct {
	Name   string   `json:"name"`
	Hashes []string `json:"hashes"`
}

type createHashlistResponse struct {
	HashlistID string `json:"hashlistId"`
}

// CreateHashlist registers name's hashes with the coordination service and
// returns its assigned hashlist id.
func (c *Client) CreateHashlist(ctx context.Context, name string, hashes []string) (string, error) {
	var resp createHashlistResponse
	if err := c.doRetrying(ctx, http.MethodPost, "/hashlists", createHashlistRequest{Name: name, Hashes: hashes}, &resp, 2); err != nil {
		return "", fmt.Errorf("create hashlist %s: %w", name, err)
	}
	return resp.HashlistID, nil
}

type createTaskRequest struct {
	HashlistID     string `json:"hashlistId"`
	AttackCmd      string `json:"attackCmd"`
	WordlistFileID string `json:"wordlistFileId,omitempty"`
	RuleFileID     string `json:"ruleFileId,omitempty"`
	Mask           string `json:"mask,omitempty"`
	CorrelationID  string `json:"correlationId"`
}

type createTaskResponse struct {
	TaskID string `json:"taskId"`
}

// CreateTask submits one attack against hashlistID and returns the assigned
// task id. A correlation id is minted locally before submission so task
// creation can be traced through logs even if the service's own id is slow
// to come back on a retry.
func (c *Client) CreateTask(ctx context.Context, hashlistID, attackCmd, wordlistFileID, ruleFileID, mask string) (string, error) {
	req := createTaskRequest{
		HashlistID:     hashlistID,
		AttackCmd:      attackCmd,
		WordlistFileID: wordlistFileID,
		RuleFileID:     ruleFileID,
		Mask:           mask,
		CorrelationID:  uuid.NewString(),
	}
	var resp createTaskResponse
	if err := c.doRetrying(ctx, http.MethodPost, "/tasks", req, &resp, 2); err != nil {
		return "", fmt.Errorf("create task for hashlist %s: %w", hashlistID, err)
	}
	return resp.TaskID, nil
}

// GetTaskStatus reads a task's progress. Reads are idempotent and are tried
// up to three times in all on a transient failure.
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	var resp TaskStatus
	if err := c.doRetrying(ctx, http.MethodGet, "/tasks/"+taskID+"/status", nil, &resp, 3); err != nil {
		return TaskStatus{}, fmt.Errorf("get task status %s: %w", taskID, err)
	}
	return resp, nil
}

// GetCrackedHashes downloads every (hash, plaintext) pair recovered so far
// for hashlistID.
func (c *Client) GetCrackedHashes(ctx context.Context, hashlistID string) ([]CrackedPair, error) {
	var resp []CrackedPair
	if err := c.doRetrying(ctx, http.MethodGet, "/hashlists/"+hashlistID+"/cracked", nil, &resp, 3); err != nil {
		return nil, fmt.Errorf("get cracked hashes for hashlist %s: %w", hashlistID, err)
	}
	return resp, nil
}

// ListTasks returns every task currently known to the coordination service.
func (c *Client) ListTasks(ctx context.Context) ([]TaskSummary, error) {
	var resp []TaskSummary
	if err := c.doRetrying(ctx, http.MethodGet, "/tasks", nil, &resp, 3); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return resp, nil
}

// doRetrying performs one HTTP round trip, trying it up to attempts times in
// all (at least once) while it fails with a transient error: a transport
// failure or a 5xx. A 4xx response is never retried — it is a definite
// answer from the service, not a dropped connection.
func (c *Client) doRetrying(ctx context.Context, method, path string, body, out interface{}, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		err := c.do(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transientError{cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return &transientError{cause: fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// transientError marks a failure the caller should retry: a dial failure,
// a timeout, or a 5xx from the service.
type transientError struct{ cause error }

func (e *transientError) Error() string { return e.cause.Error() }
func (e *transientError) Unwrap() error { return e.cause }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
