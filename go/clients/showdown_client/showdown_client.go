package showdown_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mcdev12/showdown/go/clients"
	"github.com/mcdev12/showdown/go/clients/ollama_client"
	"github.com/mcdev12/showdown/go/internal/gateway"
	"github.com/mcdev12/showdown/go/internal/session"
)

const (
	sessionsPath = "/api/sessions"
	modelsPath   = "/api/models"
	healthPath   = "/api/health"
)

// ShowdownClient talks to the poker server's REST API
type ShowdownClient struct {
	*clients.BaseClient
}

func NewShowdownClient(baseURL string) *ShowdownClient {
	client := &ShowdownClient{
		BaseClient: clients.NewBaseClient(strings.TrimRight(baseURL, "/")),
	}
	client.SetHeader("Content-Type", "application/json")
	return client
}

func (c *ShowdownClient) CreateSession(ctx context.Context, req gateway.CreateSessionRequest) (*gateway.CreateSessionResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal create request: %w", err)
	}
	body, err := c.Post(ctx, sessionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	var resp gateway.CreateSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	return &resp, nil
}

func (c *ShowdownClient) SessionStatus(ctx context.Context, sessionID string) (*session.Status, error) {
	body, err := c.Get(ctx, sessionsPath+"/"+sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var status session.Status
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode session status: %w", err)
	}
	return &status, nil
}

func (c *ShowdownClient) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := c.MakeRequest(ctx, http.MethodDelete, sessionsPath+"/"+sessionID, nil); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (c *ShowdownClient) ListModels(ctx context.Context) ([]ollama_client.Model, error) {
	body, err := c.Get(ctx, modelsPath)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	var resp gateway.ModelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	return resp.Models, nil
}

func (c *ShowdownClient) Health(ctx context.Context) (*gateway.HealthResponse, error) {
	body, err := c.Get(ctx, healthPath)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}

	var resp gateway.HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &resp, nil
}

// WebsocketURL resolves a websocket path returned by CreateSession against
// the server address
func (c *ShowdownClient) WebsocketURL(path string) string {
	base := c.BaseURL()
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + path
}
