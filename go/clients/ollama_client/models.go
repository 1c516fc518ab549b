package ollama_client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Model is one locally available model
type Model struct {
	Name       string    `json:"name"`
	Size       string    `json:"size,omitempty"`
	Family     string    `json:"family,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
}

type tagsResponse struct {
	Models []struct {
		Name       string    `json:"name"`
		ModifiedAt time.Time `json:"modified_at"`
		Details    struct {
			Family        string `json:"family"`
			ParameterSize string `json:"parameter_size"`
		} `json:"details"`
	} `json:"models"`
}

func (c *OllamaClient) ListModels(ctx context.Context) ([]Model, error) {
	body, err := c.Get(ctx, tagsPath)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}

	models := make([]Model, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, Model{
			Name:       m.Name,
			Size:       m.Details.ParameterSize,
			Family:     m.Details.Family,
			ModifiedAt: m.ModifiedAt,
		})
	}
	return models, nil
}

// Ping checks that the server answers
func (c *OllamaClient) Ping(ctx context.Context) error {
	if _, err := c.Get(ctx, tagsPath); err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	return nil
}
