package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yungbote/skillforge-backend/internal/pkg/envutil"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

// Provider is one external language-model backend. Implementations make a
// single attempt and classify the failure; retry policy lives upstream.
type Provider interface {
	Generate(ctx context.Context, system, user string) (string, Usage, error)
	Model() string
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openAIProvider struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIProvider(log *logger.Logger) (Provider, error) {
	apiKey := envutil.GetEnv("OPENAI_API_KEY", "", nil)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	return &openAIProvider{
		log:     log.With("service", "OpenAIProvider"),
		baseURL: envutil.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", log),
		apiKey:  apiKey,
		model:   envutil.GetEnv("OPENAI_MODEL", "gpt-4o-mini", log),
		// The per-call deadline comes from the gateway context; this client
		// timeout is only a backstop against leaked calls.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (p *openAIProvider) Model() string { return p.model }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type providerHTTPError struct {
	StatusCode int
	Body       string
}

func (e *providerHTTPError) Error() string {
	return fmt.Sprintf("provider http %d: %s", e.StatusCode, e.Body)
}

func (p *openAIProvider) Generate(ctx context.Context, system, user string) (string, Usage, error) {
	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", Usage{}, Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return "", Usage{}, Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", Usage{}, classifyNetErr(err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", Usage{}, Transient(readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &providerHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		if retryableStatus(resp.StatusCode) {
			return "", Usage{}, Transient(httpErr)
		}
		return "", Usage{}, Permanent(httpErr)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", Usage{}, Transient(fmt.Errorf("provider decode error: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", parsed.Usage, Permanent(fmt.Errorf("provider returned no choices"))
	}
	return parsed.Choices[0].Message.Content, parsed.Usage, nil
}

func retryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// Network failures and timeouts are transient; a canceled caller context is
// passed through untouched so shutdown does not look like provider failure.
func classifyNetErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return Transient(err)
}
