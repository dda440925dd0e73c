// Package llm provides OpenAI-compatible HTTP clients for text embedding and
// chat completion. Both speak the plain REST endpoints so any compatible
// provider (OpenAI, Azure, local gateways) works unchanged.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config is shared connection configuration for both clients.
type Config struct {
	BaseURL string // e.g. https://api.openai.com/v1
	APIKey  string
	Timeout time.Duration // per-request bound; provider default when zero
}

const defaultTimeout = 30 * time.Second

func (c Config) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// EmbedClient computes one embedding vector per text via POST {base}/embeddings.
// Calls are throttled by a token-bucket limiter so that bulk index builds do
// not trip provider rate limits.
type EmbedClient struct {
	cfg     Config
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewEmbedClient creates an embedding client. ratePerSec <= 0 disables
// throttling.
func NewEmbedClient(cfg Config, model string, ratePerSec float64, burst int) *EmbedClient {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerSec > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return &EmbedClient{
		cfg:     cfg,
		model:   model,
		client:  cfg.httpClient(),
		limiter: limiter,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for one text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("llm: cannot embed empty text")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.post(ctx, "/embeddings", embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("llm: embed: %w", err)
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("llm: embed decode: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("llm: embed: empty embedding in response")
	}

	vec := make([]float32, len(parsed.Data[0].Embedding))
	for i, v := range parsed.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// post sends a JSON request and returns the raw response body on 2xx.
func (c *EmbedClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	return doPost(ctx, c.client, c.cfg, path, payload)
}

func doPost(ctx context.Context, client *http.Client, cfg Config, path string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
