package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	xhttp "CryptoScanner/pkg/http"
)

// Request is the single normalized inference call shape. Backend quirks
// stay behind the adapters; orchestration code never branches on which
// provider served a request.
type Request struct {
	Prompt      string
	ModelHint   string
	Temperature float64
	MaxTokens   int
}

// Service is the call contract exposed to the generator and estimator.
type Service interface {
	Infer(ctx context.Context, req Request) (string, error)
}

// Backend is one interchangeable inference provider.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// BackendConfig describes one OpenAI-compatible chat-completions
// endpoint.
type BackendConfig struct {
	Name        string
	URL         string
	KeyEnv      string
	Model       string
	RPM         int
	QualityTier string
}

// OpenAIBackend adapts an OpenAI-compatible chat-completions endpoint
// to the Backend interface.
type OpenAIBackend struct {
	name   string
	url    string
	apiKey string
	model  string
	client *xhttp.Client
}

// NewOpenAIBackend builds an adapter from config. The API key is read
// from the configured environment variable; an empty key yields a nil
// backend, which the caller skips (mirrors scanning for configured
// providers at startup).
func NewOpenAIBackend(cfg BackendConfig, timeout time.Duration) *OpenAIBackend {
	key := os.Getenv(cfg.KeyEnv)
	if key == "" {
		return nil
	}
	return &OpenAIBackend{
		name:   cfg.Name,
		url:    cfg.URL,
		apiKey: key,
		model:  cfg.Model,
		client: xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (b *OpenAIBackend) Name() string { return b.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat-completions request and returns the text of
// the first choice. Failures are classified into inference error kinds.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	model := b.model
	if req.ModelHint != "" {
		model = req.ModelHint
	}
	payload := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	resp, err := b.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.url,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + b.apiKey,
		},
		Body: payload,
	})
	if err != nil {
		kind := KindServerError
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			kind = KindTimeout
		}
		return "", &Error{Kind: kind, Provider: b.name, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == 200:
	case resp.StatusCode == 429:
		return "", &Error{Kind: KindRateLimited, Provider: b.name, Status: resp.StatusCode}
	case resp.StatusCode == 401:
		return "", &Error{Kind: KindUnauthorized, Provider: b.name, Status: resp.StatusCode}
	case resp.StatusCode >= 500:
		return "", &Error{Kind: KindServerError, Provider: b.name, Status: resp.StatusCode}
	default:
		return "", &Error{Kind: KindBadResponse, Provider: b.name, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindBadResponse, Provider: b.name, Err: fmt.Errorf("read body: %w", err)}
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &Error{Kind: KindBadResponse, Provider: b.name, Err: fmt.Errorf("decode: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &Error{Kind: KindBadResponse, Provider: b.name, Err: errors.New("empty choices")}
	}
	return parsed.Choices[0].Message.Content, nil
}
