// Package planner talks to the external language-model planner: an
// OpenAI-compatible chat completions endpoint that turns a user turn (plus
// a memory header) into a reply and a fenced plan block.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nanoclaw/ops/internal/config"
)

// freeTierSuffixes is the closed set of model-id suffixes RequireFreeTier
// accepts. Anything else is rejected before the call is made, matching
// spec's "policy rejects non-free if required".
var freeTierSuffixes = []string{":free", "-free"}

// Client is the planner collaborator. One Client is shared across the
// message loop, IPC watcher, and scheduler.
type Client struct {
	cfg        config.PlannerConfig
	httpClient *http.Client
}

func New(cfg config.PlannerConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
}

// ErrNonFreeModel is returned when RequireFreeTier is set and the resolved
// model id doesn't carry a recognized free-tier suffix.
type ErrNonFreeModel struct{ Model string }

func (e *ErrNonFreeModel) Error() string {
	return fmt.Sprintf("planner model %q is not a recognized free-tier model", e.Model)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Reasoning selects which of the two configured model ids a turn uses.
// Scheduled and repair turns pass true; ordinary chat turns pass false.
func (c *Client) modelFor(reasoning bool) string {
	if reasoning && c.cfg.ReasoningModel != "" {
		return c.cfg.ReasoningModel
	}
	return c.cfg.CompletionModel
}

func isFreeTierModel(model string) bool {
	for _, suffix := range freeTierSuffixes {
		if strings.HasSuffix(model, suffix) {
			return true
		}
	}
	return false
}

// Complete sends systemPrompt+userPrompt to the planner and returns the raw
// reply text (reply prose plus, ordinarily, a fenced plan block).
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, reasoning bool) (string, error) {
	model := c.modelFor(reasoning)
	if c.cfg.RequireFreeTier && !isFreeTierModel(model) {
		return "", &ErrNonFreeModel{Model: model}
	}

	messages := []chatMessage{}
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	reqBody, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", err
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("planner request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("planner returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode planner response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("planner error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("planner returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
