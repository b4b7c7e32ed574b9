package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// LocalBackend calls an Ollama-compatible server running the model on
// the local machine.
type LocalBackend struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewLocalBackend constructs the local backend.
func NewLocalBackend(baseURL, model string) (*LocalBackend, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://localhost:11434"
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LOCAL_INFERENCE_MODEL is required for the local backend")
	}
	timeout := 300 * time.Second
	if raw := strings.TrimSpace(os.Getenv("LOCAL_INFERENCE_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &LocalBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// ExtractRaw sends the base64-encoded image with the prompt.
func (b *LocalBackend) ExtractRaw(ctx context.Context, imagePath, prompt string, maxNewTokens int) (string, error) {
	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return b.generate(ctx, ollamaRequest{
		Model:   b.model,
		System:  SystemInstruction,
		Prompt:  prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(imageBytes)},
		Options: map[string]any{"num_predict": maxNewTokens},
	})
}

// GenerateText sends a text-only prompt.
func (b *LocalBackend) GenerateText(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	return b.generate(ctx, ollamaRequest{
		Model:   b.model,
		System:  SystemInstruction,
		Prompt:  prompt,
		Options: map[string]any{"num_predict": maxNewTokens},
	})
}

func (b *LocalBackend) generate(ctx context.Context, reqBody ollamaRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return "", fmt.Errorf("local inference timeout: %w", err)
		}
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("local inference status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("local inference response parse: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("local inference error: %s", parsed.Error)
	}
	return parsed.Response, nil
}
