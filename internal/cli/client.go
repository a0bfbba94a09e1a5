package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cuongbtq/task-manage/internal/api/dto"
)

// ListTasksOpts filters the job record listing
type ListTasksOpts struct {
	Worker   string
	Status   *int
	PageSize int
	Cursor   string
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client is an HTTP client for the task API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateTask submits a job and returns its record id
func (c *Client) CreateTask(ctx context.Context, req dto.CreateTaskRequest) (*dto.CreateTaskResponse, error) {
	var resp dto.CreateTaskResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &resp)
	return &resp, err
}

// GetTask returns the job record with recordID
func (c *Client) GetTask(ctx context.Context, recordID string) (*dto.TaskDTO, error) {
	var resp dto.TaskDTO
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(recordID), nil, &resp)
	return &resp, err
}

// ListTasks returns one page of job records
func (c *Client) ListTasks(ctx context.Context, opts ListTasksOpts) (*dto.ListTasksResponse, error) {
	params := url.Values{}
	if opts.Worker != "" {
		params.Set("worker", opts.Worker)
	}
	if opts.Status != nil {
		params.Set("status", strconv.Itoa(*opts.Status))
	}
	if opts.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(opts.PageSize))
	}
	if opts.Cursor != "" {
		params.Set("cursor", opts.Cursor)
	}

	path := "/api/v1/tasks"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp dto.ListTasksResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return &resp, err
}

// ListWorkers returns the workers registered on the server
func (c *Client) ListWorkers(ctx context.Context) ([]dto.WorkerDTO, error) {
	var resp dto.ListWorkersResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/workers", nil, &resp)
	return resp.Workers, err
}

// GetTopology returns the queue topology of the server
func (c *Client) GetTopology(ctx context.Context) (*dto.TopologyResponse, error) {
	var resp dto.TopologyResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/topology", nil, &resp)
	return &resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("API error: HTTP %d: %s", resp.StatusCode, er.Error)
}
