package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docrag/api/internal/server"
)

// apiClient talks to a running ragd server.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Query posts a question to /query and returns the grounded answer.
func (c *apiClient) Query(query string, topK int) (server.QueryResponse, error) {
	var out server.QueryResponse

	body, err := json.Marshal(server.QueryRequest{Query: query, TopK: topK})
	if err != nil {
		return out, fmt.Errorf("failed to marshal request: %w", err)
	}
	resp, err := c.httpClient.Post(c.baseURL+"/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &detail) == nil && detail.Detail != "" {
			return out, fmt.Errorf("server error: %s", detail.Detail)
		}
		return out, fmt.Errorf("server error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
