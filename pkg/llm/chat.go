package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ChatClient produces a single-turn completion via POST {base}/chat/completions.
type ChatClient struct {
	cfg       Config
	model     string
	maxTokens int
	client    *http.Client
}

// NewChatClient creates a chat-completion client. maxTokens <= 0 leaves the
// output length to the provider default.
func NewChatClient(cfg Config, model string, maxTokens int) *ChatClient {
	return &ChatClient{
		cfg:       cfg,
		model:     model,
		maxTokens: maxTokens,
		client:    cfg.httpClient(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one user prompt and returns the model's reply text.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.maxTokens,
	}

	body, err := doPost(ctx, c.client, c.cfg, "/chat/completions", req)
	if err != nil {
		return "", fmt.Errorf("llm: chat: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("llm: chat decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm: chat: no choices in response")
	}
	reply := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("llm: chat: empty reply")
	}
	return reply, nil
}
