// Package duewatchsdk is a minimal typed client for the duewatch HTTP API.
package duewatchsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal duewatch HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// TaskResult mirrors one per-task outcome from a run report.
type TaskResult struct {
	TaskID  string `json:"task_id"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// RunReport mirrors the API run report (partial).
type RunReport struct {
	RunID        string       `json:"run_id"`
	Reset        bool         `json:"reset"`
	DryRun       bool         `json:"dry_run,omitempty"`
	FilesScanned int          `json:"files_scanned"`
	Candidates   int          `json:"candidates"`
	Sent         int          `json:"sent"`
	Failed       int          `json:"failed"`
	Results      []TaskResult `json:"results,omitempty"`
}

// LedgerEntry is one recorded delivery.
type LedgerEntry struct {
	TaskID string `json:"task_id"`
	SentAt string `json:"sent_at"`
}

// Status is the scanner status summary.
type Status struct {
	VaultPath   string `json:"vault_path"`
	LedgerCount int    `json:"ledger_count"`
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Health checks the API health endpoint (no auth required).
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v0/health", nil, nil)
}

// Status fetches the scanner status summary.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	err := c.do(ctx, http.MethodGet, "/v0/status", nil, &s)
	return s, err
}

// TriggerRun starts one batch scan and returns its report.
func (c *Client) TriggerRun(ctx context.Context, dryRun bool) (RunReport, error) {
	var r RunReport
	err := c.do(ctx, http.MethodPost, "/v0/runs", map[string]any{"dry_run": dryRun}, &r)
	return r, err
}

// Ledger lists all recorded deliveries.
func (c *Client) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := c.do(ctx, http.MethodGet, "/v0/ledger", nil, &entries)
	return entries, err
}

// ResetLedger destroys and recreates the delivery ledger.
func (c *Client) ResetLedger(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v0/ledger", nil, nil)
}
