package ollama_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/mcdev12/showdown/go/clients"
	"github.com/mcdev12/showdown/go/internal/reasoning"
)

var ErrModelError = errors.New("model returned an error")

type Config struct {
	BaseURL string
	// Timeout for non streaming calls
	Timeout time.Duration
	// MaxConcurrent caps generations in flight; <= 0 means one
	MaxConcurrent int64
	// Think asks thinking models to stream their reasoning separately
	Think bool
}

// OllamaClient streams chat completions from an Ollama server
type OllamaClient struct {
	*clients.BaseClient
	sem   *semaphore.Weighted
	think bool
}

func NewOllamaClient(cfg Config) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	client := &OllamaClient{
		BaseClient: clients.NewBaseClient(strings.TrimRight(cfg.BaseURL, "/")),
		sem:        semaphore.NewWeighted(cfg.MaxConcurrent),
		think:      cfg.Think,
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	client.SetHeader(ContentTypeHeader, JsonContentType)
	return client
}

type chatMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Think    *bool          `json:"think,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatChunk struct {
	Message    chatMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Generate streams a chat completion. Thinking and content fragments are both
// sent on out in arrival order; the returned text is their concatenation.
func (c *OllamaClient) Generate(ctx context.Context, req reasoning.Request, out chan<- string) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for generation slot: %w", err)
	}
	defer c.sem.Release(1)

	body := chatRequest{
		Model:   req.Model,
		Stream:  true,
		Options: map[string]any{"temperature": req.Temperature},
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if c.think {
		think := true
		body.Think = &think
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	start := time.Now()
	stream, err := c.Stream(ctx, "POST", chatPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("start chat with %s: %w", req.Model, err)
	}
	defer stream.Close()

	var full strings.Builder
	emit := func(fragment string) error {
		if fragment == "" {
			return nil
		}
		select {
		case out <- fragment:
			full.WriteString(fragment)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	dec := json.NewDecoder(stream)
	for {
		var chunk chatChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return full.String(), fmt.Errorf("chat stream ended without done marker")
			}
			if ctx.Err() != nil {
				return full.String(), ctx.Err()
			}
			return full.String(), fmt.Errorf("decode chat chunk: %w", err)
		}
		if chunk.Error != "" {
			return full.String(), fmt.Errorf("%w: %s", ErrModelError, chunk.Error)
		}
		if err := emit(chunk.Message.Thinking); err != nil {
			return full.String(), err
		}
		if err := emit(chunk.Message.Content); err != nil {
			return full.String(), err
		}
		if chunk.Done {
			log.Debug().
				Str("model", req.Model).
				Str("done_reason", chunk.DoneReason).
				Int("chars", full.Len()).
				Dur("duration", time.Since(start)).
				Msg("chat stream complete")
			return full.String(), nil
		}
	}
}
