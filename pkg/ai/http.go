package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseBytes caps the completion body read into memory.
const maxResponseBytes = 4 << 20

// StatusError is returned when the completion service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion failed with status %d: %s", e.StatusCode, e.Body)
}

// HTTPModel calls an OpenAI-compatible POST {endpoint}/chat/completions API.
type HTTPModel struct {
	endpoint     string
	apiKey       string
	defaultModel string
	http         *http.Client
}

// HTTPOption configures an HTTPModel.
type HTTPOption func(*HTTPModel)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) HTTPOption {
	return func(m *HTTPModel) {
		m.apiKey = key
	}
}

// WithDefaultModel is used when the node does not name a model.
func WithDefaultModel(name string) HTTPOption {
	return func(m *HTTPModel) {
		m.defaultModel = name
	}
}

// WithHTTPClient replaces http.DefaultClient. Bound calls with WithTimeout rather than
// a client timeout so deadlines map to "no output".
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(m *HTTPModel) {
		m.http = c
	}
}

func NewHTTPModel(endpoint string, opts ...HTTPOption) *HTTPModel {
	m := &HTTPModel{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     http.DefaultClient,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// GenerateCompletion sends prompt as a single user message, preceded by params.System.
func (m *HTTPModel) GenerateCompletion(ctx context.Context, prompt string, params Params) (string, bool, error) {
	var messages []Message
	if params.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: params.System})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})
	return m.chat(ctx, messages, params)
}

// GenerateChatCompletion sends messages as is; params.System is ignored since callers
// put the system prompt in messages.
func (m *HTTPModel) GenerateChatCompletion(ctx context.Context, messages []Message, params Params) (string, bool, error) {
	return m.chat(ctx, messages, params)
}

func (m *HTTPModel) chat(ctx context.Context, messages []Message, params Params) (string, bool, error) {
	model := params.Model
	if model == "" {
		model = m.defaultModel
	}
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", false, fmt.Errorf("failed to read completion: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", false, fmt.Errorf("failed to decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", false, nil
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	return text, text != "", nil
}
