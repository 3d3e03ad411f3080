// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jeranaias/heavon/internal/model"
)

// Configuration constants for the OpenRouter API.
const (
	// DefaultOpenRouterURL is the base URL for the OpenRouter API.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// DefaultSiteURL is sent as HTTP-Referer.
	DefaultSiteURL = "https://heavon.local"

	// DefaultSiteName is sent as X-Title.
	DefaultSiteName = "AIHeavon"

	// MaxResponseSize caps non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024
)

// Error variables for common completion failures.
var (
	// ErrEmptyBody indicates a successful response without a readable body.
	ErrEmptyBody = errors.New("Response body is empty")

	// ErrUnknown stands in for errors that carry no message.
	ErrUnknown = errors.New("Unknown error")
)

// APIError represents a non-success response from the provider.
type APIError struct {
	Status     int
	StatusText string
	Code       string
	Message    string
}

// Error returns the provider's message, or a generic one naming the status.
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Failed to generate response: " + e.StatusText
}

// ErrorMessage returns the text shown to the user for err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return ErrUnknown.Error()
}

// ChatMessage is one role/content entry of a context window.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user entry.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: string(model.RoleUser), Content: content}
}

// NewSystemMessage creates a system entry.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: string(model.RoleSystem), Content: content}
}

// FromMessage converts a stored message to a context entry.
func FromMessage(m model.Message) ChatMessage {
	return ChatMessage{Role: string(m.Role), Content: m.Content}
}

// modelsResponse is the body of GET /models.
type modelsResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		ContextLength int    `json:"context_length"`
	} `json:"data"`
}

// apiErrorResponse represents an error response from the API.
type apiErrorResponse struct {
	Error struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// OpenRouterClient talks to an OpenRouter-compatible endpoint. It holds no
// per-request state and is safe for concurrent use.
type OpenRouterClient struct {
	baseURL  string
	siteURL  string
	siteName string

	// httpClient serves bounded requests; streamClient has no overall
	// timeout so long completions are limited by the caller's context only.
	httpClient   *http.Client
	streamClient *http.Client

	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewOpenRouterClient creates a client for baseURL. An empty baseURL selects
// DefaultOpenRouterURL.
func NewOpenRouterClient(baseURL string) *OpenRouterClient {
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	return &OpenRouterClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		siteURL:      DefaultSiteURL,
		siteName:     DefaultSiteName,
		httpClient:   &http.Client{},
		streamClient: &http.Client{},
		logger:       log.Logger.With().Str("component", "openrouter").Logger(),
	}
}

// BaseURL returns the configured endpoint.
func (c *OpenRouterClient) BaseURL() string {
	return c.baseURL
}

// WithTimeout bounds model listing by timeout and completions by the time
// until response headers arrive. Zero disables both.
func (c *OpenRouterClient) WithTimeout(timeout time.Duration) *OpenRouterClient {
	c.httpClient.Timeout = timeout
	c.streamClient.Transport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: timeout,
	}
	return c
}

// WithHTTPClient replaces both underlying clients.
func (c *OpenRouterClient) WithHTTPClient(hc *http.Client) *OpenRouterClient {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithSiteURL sets the HTTP-Referer header value.
func (c *OpenRouterClient) WithSiteURL(url string) *OpenRouterClient {
	c.siteURL = url
	return c
}

// WithSiteName sets the X-Title header value.
func (c *OpenRouterClient) WithSiteName(name string) *OpenRouterClient {
	c.siteName = name
	return c
}

// WithRateLimit throttles outgoing requests to perMinute. Zero or less
// removes the limit.
func (c *OpenRouterClient) WithRateLimit(perMinute int) *OpenRouterClient {
	if perMinute <= 0 {
		c.limiter = nil
		return c
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	return c
}

// WithLogger sets the logger.
func (c *OpenRouterClient) WithLogger(logger zerolog.Logger) *OpenRouterClient {
	c.logger = logger.With().Str("component", "openrouter").Logger()
	return c
}

// setHeaders sets the identifying headers and, when apiKey is set, the
// bearer token.
func (c *OpenRouterClient) setHeaders(req *http.Request, apiKey string) {
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

func (c *OpenRouterClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// =============================================================================
// MODEL LISTING
// =============================================================================

// ListModels fetches the provider's model list. Any failure yields an empty
// slice; callers fall back to their own defaults.
func (c *OpenRouterClient) ListModels(ctx context.Context, apiKey string) []model.Model {
	models, err := c.listModels(ctx, apiKey)
	if err != nil {
		c.logger.Warn().Err(err).Msg("listing models failed")
		return []model.Model{}
	}
	return models
}

func (c *OpenRouterClient) listModels(ctx context.Context, apiKey string) ([]model.Model, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debug().Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("GET /models")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed modelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}

	models := make([]model.Model, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, model.Model{
			ID:            m.ID,
			Name:          m.Name,
			Provider:      model.ProviderOpenRouter,
			ContextLength: m.ContextLength,
		})
	}
	return models, nil
}

// parseAPIError builds the error for a non-success completion response.
func parseAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}

	if resp.Body == nil {
		return apiErr
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return apiErr
	}
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}
	apiErr.Message = parsed.Error.Message
	apiErr.Code = strings.Trim(string(parsed.Error.Code), `"`)
	return apiErr
}
