// Package worker is the HTTP client for external retrieval workers. A worker
// executes one strategy per request and returns a full run result.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ai-assistant-be/pkg/rag"
)

type queryRequest struct {
	Query      string `json:"query"`
	AgentType  string `json:"agent_type"`
	AgentMode  string `json:"agent_mode,omitempty"`
	WorkerName string `json:"worker_name"`
}

// Client implements rag.Retriever against a worker gateway. The per-run
// timeout is enforced by the caller through ctx; the client's own HTTP
// timeout is only a hard upper bound.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *Client) Retrieve(ctx context.Context, spec rag.RunSpec, query string) (*rag.RunResult, error) {
	body, err := json.Marshal(queryRequest{
		Query:      query,
		AgentType:  spec.AgentType,
		AgentMode:  agentMode(spec.WorkerName),
		WorkerName: spec.WorkerName,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/query", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker %s returned %d: %s", spec.WorkerName, resp.StatusCode, string(bodyBytes))
	}

	var result rag.RunResult
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to decode worker response: %w", err)
	}
	if result.AgentType == "" {
		result.AgentType = spec.AgentType
	}
	return &result, nil
}

// agentMode extracts the third token from "{kb_prefix}:{agent_type}:{agent_mode}".
func agentMode(workerName string) string {
	parts := strings.Split(workerName, ":")
	if len(parts) == 3 {
		return parts[2]
	}
	return ""
}
