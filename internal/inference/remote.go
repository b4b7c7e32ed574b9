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

// RemoteBackend calls a hosted GPU inference service that wraps the
// extraction model behind a JSON API.
type RemoteBackend struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRemoteBackend constructs the remote backend.
func NewRemoteBackend(baseURL, token string) (*RemoteBackend, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("REMOTE_INFERENCE_URL is required for the remote backend")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("REMOTE_INFERENCE_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &RemoteBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type remoteRequest struct {
	System       string `json:"system"`
	Prompt       string `json:"prompt"`
	ImageBase64  string `json:"image_base64,omitempty"`
	MaxNewTokens int    `json:"max_new_tokens"`
}

type remoteResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// ExtractRaw sends the image bytes and prompt to the remote service.
func (b *RemoteBackend) ExtractRaw(ctx context.Context, imagePath, prompt string, maxNewTokens int) (string, error) {
	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return b.generate(ctx, remoteRequest{
		System:       SystemInstruction,
		Prompt:       prompt,
		ImageBase64:  base64.StdEncoding.EncodeToString(imageBytes),
		MaxNewTokens: maxNewTokens,
	})
}

// GenerateText sends a text-only prompt to the remote service.
func (b *RemoteBackend) GenerateText(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	return b.generate(ctx, remoteRequest{
		System:       SystemInstruction,
		Prompt:       prompt,
		MaxNewTokens: maxNewTokens,
	})
}

func (b *RemoteBackend) generate(ctx context.Context, reqBody remoteRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return "", fmt.Errorf("remote inference timeout: %w", err)
		}
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remote inference status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed remoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("remote inference response parse: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("remote inference error: %s", parsed.Error)
	}
	return parsed.Text, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
