package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quantdesk/internal/pkg/text"
)

const maxErrorBody = 512

// ClientConfig points a Client at the execution service.
type ClientConfig struct {
	APIURL   string
	APIToken string
	Timeout  time.Duration
}

// Client talks to the execution service over HTTP.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
}

func NewClient(cfg ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("engine.api_url is empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse engine.api_url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
		token:      strings.TrimSpace(cfg.APIToken),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) SubmitJob(ctx context.Context, p Payload) (Job, error) {
	var job Job
	err := c.doRequest(ctx, http.MethodPost, "/jobs", p, &job)
	return job, err
}

func (c *Client) GetJobStatus(ctx context.Context, id string) (Job, error) {
	var job Job
	err := c.doRequest(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &job)
	return job, err
}

func (c *Client) GetJobResult(ctx context.Context, id string) (ResultResponse, error) {
	var res ResultResponse
	err := c.doRequest(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id)+"/result", nil, &res)
	return res, err
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any, out any) error {
	endpoint := *c.baseURL
	endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + path
	endpoint.RawPath = ""

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(data) == 0 {
			return fmt.Errorf("engine returned %s", resp.Status)
		}
		return fmt.Errorf("engine returned %s: %s", resp.Status, text.Truncate(strings.TrimSpace(string(data)), maxErrorBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	return nil
}
