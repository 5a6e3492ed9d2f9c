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
)

const defaultSystem = "You are a concise, helpful assistant."

// OllamaClient calls the Ollama /api/generate endpoint. Generation can be
// slow on local hardware, so the timeout is generous; a request that
// outlives it fails instead of hanging forever.
type OllamaClient struct {
	baseURL      string
	defaultModel string
	client       *http.Client
}

func NewOllamaClient(baseURL string, defaultModel string) *OllamaClient {
	return &OllamaClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: defaultModel,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends a prompt and returns the model's answer. Empty system or
// model fall back to the configured defaults.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, system string, model string) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	if system == "" {
		system = defaultSystem
	}

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		System: system,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cannot reach ollama at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("model not found: %s (pull it first)", model)
		}
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}

	answer := strings.TrimSpace(result.Response)
	if answer == "" {
		return "", fmt.Errorf("ollama returned an empty response")
	}

	return answer, nil
}
