// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hf streams completions from Hugging Face through its
// OpenAI-compatible inference router.
package hf

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/heavon/internal/cloud"
)

// DefaultBaseURL is the Hugging Face router endpoint.
const DefaultBaseURL = "https://router.huggingface.co/v1"

// Client streams chat completions from Hugging Face. It creates one
// go-openai client per request because the token travels with the request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a client for baseURL. An empty baseURL selects
// DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     log.Logger.With().Str("component", "huggingface").Logger(),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger zerolog.Logger) *Client {
	c.logger = logger.With().Str("component", "huggingface").Logger()
	return c
}

// StreamCompletion has the same contract as the OpenRouter client's: text
// increments in order, then at most one error.
func (c *Client) StreamCompletion(ctx context.Context, req cloud.CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		cfg := openai.DefaultConfig(strings.TrimSpace(req.APIKey))
		cfg.BaseURL = c.baseURL
		cfg.HTTPClient = c.httpClient
		client := openai.NewClientWithConfig(cfg)

		messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
		for _, m := range req.Messages {
			messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}

		stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    req.Model,
			Messages: messages,
			Stream:   true,
		})
		if err != nil {
			yield("", c.convertErr(ctx, err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield("", ctxErr)
				}
				return
			}
			if err != nil {
				yield("", c.convertErr(ctx, err))
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(resp.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

// convertErr maps go-openai errors onto cloud.APIError so both providers
// produce the same transcript text.
func (c *Client) convertErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	c.logger.Warn().Err(err).Msg("completion stream failed")

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &cloud.APIError{
			Status:     apiErr.HTTPStatusCode,
			StatusText: http.StatusText(apiErr.HTTPStatusCode),
			Message:    apiErr.Message,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &cloud.APIError{
			Status:     reqErr.HTTPStatusCode,
			StatusText: http.StatusText(reqErr.HTTPStatusCode),
		}
	}
	return err
}
