package agentd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/homelabcmd/homelabcmd/pkg/service"
)

// Client posts heartbeats to the coordinator API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type apiEnvelope struct {
	Success bool                     `json:"success"`
	Data    *service.HeartbeatResult `json:"data,omitempty"`
	Error   *apiError                `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendHeartbeat posts one heartbeat and returns the coordinator's response,
// including any pending command.
func (c *Client) SendHeartbeat(ctx context.Context, input service.HeartbeatInput) (*service.HeartbeatResult, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal heartbeat: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/heartbeat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send heartbeat: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read heartbeat response: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode heartbeat response (status %d): %w", resp.StatusCode, err)
	}

	if !envelope.Success || resp.StatusCode != http.StatusOK {
		msg := "unknown error"
		if envelope.Error != nil {
			msg = envelope.Error.Message
		}
		return nil, fmt.Errorf("heartbeat rejected (status %d): %s", resp.StatusCode, msg)
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("heartbeat response missing data")
	}
	return envelope.Data, nil
}
