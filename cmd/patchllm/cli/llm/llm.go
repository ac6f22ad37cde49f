// Package llm provides the model client for an OpenAI-compatible chat
// completions endpoint, plus the prompts patchllm sends with each request.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const _defaultTimeout = 120 * time.Second

// ErrUnreachable indicates the model endpoint could not be reached
// (connection refused, timeout, or non-2xx).
var ErrUnreachable = errors.New("model endpoint unreachable")

// ErrEmptyReply indicates the endpoint answered but returned no content.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Requester abstracts the model calls so the session controller can be
// exercised without a live endpoint.
type Requester interface {
	// Request sends a context document plus an instruction and returns
	// the raw model reply.
	Request(ctx context.Context, contextDoc, instruction string) (string, error)
	// Plan sends the project outline plus a goal and returns the raw
	// plan reply.
	Plan(ctx context.Context, outline, goal string) (string, error)
}

// Client calls an OpenAI-compatible /v1/chat/completions endpoint.
// Zero value is not valid; use NewClient.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient builds a model client. baseURL is the API root
// (e.g. https://api.openai.com or http://localhost:11434/v1).
// If httpClient is nil, a default client with a 120s timeout is used.
func NewClient(baseURL, apiKey, model string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: _defaultTimeout}
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Client{baseURL: baseURL, apiKey: apiKey, model: model, httpClient: httpClient}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Request sends the context document and instruction as a chat completion
// and returns the assistant reply. On connection/HTTP error it returns
// ErrUnreachable (via %w).
func (c *Client) Request(ctx context.Context, contextDoc, instruction string) (string, error) {
	return c.chat(ctx, SystemPrompt, UserPrompt(contextDoc, instruction))
}

// Plan asks for a numbered step-by-step plan instead of edits.
func (c *Client) Plan(ctx context.Context, outline, goal string) (string, error) {
	return c.chat(ctx, PlanSystemPrompt, PlanPrompt(outline, goal))
}

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("chat completion: encode request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", errors.Join(ErrUnreachable, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion: %w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("chat completion: parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completion: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyReply
	}
	return parsed.Choices[0].Message.Content, nil
}
