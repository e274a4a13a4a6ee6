package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	codelet "github.com/Paranoid-AF/codelet"
)

// DefaultTimeout bounds a single generation request.
const DefaultTimeout = 30 * time.Second

// RequestConfig is the chat completion request body.
type RequestConfig struct {
	Model            string            `json:"model"`
	Messages         []codelet.Message `json:"messages"`
	MaxTokens        int               `json:"max_tokens"`
	Temperature      float64           `json:"temperature"`
	TopP             float64           `json:"top_p"`
	PresencePenalty  float64           `json:"presence_penalty"`
	FrequencyPenalty float64           `json:"frequency_penalty"`
	Seed             *int              `json:"seed"`
	Stream           bool              `json:"stream"`
}

// Client sends a chat completion request and returns the raw response body.
type Client interface {
	Do(ctx context.Context, req *RequestConfig) ([]byte, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d - %s", e.Code, e.Message)
}

// NewClient builds the transport selected by cfg.Generation.APIType.
func NewClient(cfg *codelet.Config) (Client, error) {
	apiKey := codelet.ResolveAPIKey(cfg)
	if apiKey == "" {
		return nil, errors.New("generation API key not configured")
	}
	timeout := DefaultTimeout
	if cfg.Generation.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
	}
	baseURL := codelet.ResolveBaseURL(cfg)

	switch t := codelet.ResolveAPIType(cfg); t {
	case "http":
		return NewHTTPClient(baseURL, cfg.Generation.Endpoint, apiKey, timeout), nil
	case "openai":
		return NewSDKClient(baseURL, apiKey, timeout, nil), nil
	default:
		return nil, fmt.Errorf("unknown api_type %q", t)
	}
}

// HTTPClient posts requests to an OpenAI-compatible endpoint.
type HTTPClient struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPClient creates a client posting to baseURL+endpoint.
func NewHTTPClient(baseURL, endpoint, apiKey string, timeout time.Duration) *HTTPClient {
	if endpoint == "" {
		endpoint = "/chat/completions"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return &HTTPClient{
		url:    strings.TrimRight(baseURL, "/") + endpoint,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Do posts req and returns the response body.
func (c *HTTPClient) Do(ctx context.Context, req *RequestConfig) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	slog.Debug("generation request", "url", c.url, "body", string(data))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	slog.Debug("generation response", "status", resp.StatusCode, "body", string(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Message: statusMessage(resp)}
	}
	return body, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// statusMessage returns the reason phrase of resp.Status ("404 Not Found" → "Not Found").
func statusMessage(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// SDKClient sends requests through the openai-go chat completions client.
type SDKClient struct {
	client openai.Client
}

// NewSDKClient creates an SDK-backed client. Retries are disabled.
// httpClient may be nil.
func NewSDKClient(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client) *SDKClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL+"/"))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &SDKClient{client: openai.NewClient(opts...)}
}

// Do sends req and returns the raw JSON of the completion.
func (c *SDKClient) Do(ctx context.Context, req *RequestConfig) ([]byte, error) {
	params := openai.ChatCompletionNewParams{
		Model:            req.Model,
		Messages:         sdkMessages(req.Messages),
		MaxTokens:        openai.Int(int64(req.MaxTokens)),
		Temperature:      openai.Float(req.Temperature),
		TopP:             openai.Float(req.TopP),
		PresencePenalty:  openai.Float(req.PresencePenalty),
		FrequencyPenalty: openai.Float(req.FrequencyPenalty),
	}
	if req.Seed != nil {
		params.Seed = openai.Int(int64(*req.Seed))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Code: apiErr.StatusCode, Message: http.StatusText(apiErr.StatusCode)}
		}
		return nil, err
	}
	raw := resp.RawJSON()
	slog.Debug("generation response", "body", raw)
	return []byte(raw), nil
}

func sdkMessages(msgs []codelet.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case codelet.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case codelet.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
