// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
)

// =============================================================================
// STREAMING TYPES
// =============================================================================

// CompletionRequest is one streaming completion call.
type CompletionRequest struct {
	Model    string
	Messages []ChatMessage
	APIKey   string
}

// chatRequest is the wire body of POST /chat/completions.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// streamChunk is the JSON payload of one data line.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// content returns choices[0].delta.content, or "".
func (c *streamChunk) content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

var (
	dataPrefix = []byte("data: ")
	doneLine   = []byte("data: [DONE]")
)

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader splits an event stream into lines.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadLine returns the next non-blank line without its line terminator.
// A final unterminated line is returned before io.EOF.
func (s *SSEReader) ReadLine() ([]byte, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// =============================================================================
// STREAMING COMPLETION
// =============================================================================

// StreamCompletion posts req and yields each text increment in stream order.
//
// The sequence ends after a "data: [DONE]" line or at end of stream. A
// failure is yielded once as the final element: an *APIError for a
// non-success status, ErrEmptyBody for a missing body, the context's error
// after cancellation, or the transport error. Lines whose JSON does not
// parse are skipped. Stopping iteration early closes the response body.
func (c *OpenRouterClient) StreamCompletion(ctx context.Context, req CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.sendStreamRequest(ctx, req)
		if err != nil {
			yield("", c.streamErr(ctx, err))
			return
		}
		if resp.Body != nil {
			defer resp.Body.Close()
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := parseAPIError(resp)
			c.logger.Warn().Int("status", apiErr.Status).Str("code", apiErr.Code).Msg("completion rejected")
			yield("", apiErr)
			return
		}
		if resp.Body == nil || resp.Body == http.NoBody {
			yield("", ErrEmptyBody)
			return
		}

		reader := NewSSEReader(resp.Body)
		for {
			line, err := reader.ReadLine()
			if err != nil {
				if errors.Is(err, io.EOF) && ctx.Err() == nil {
					return
				}
				yield("", c.streamErr(ctx, err))
				return
			}

			if bytes.Equal(line, doneLine) {
				return
			}
			if !bytes.HasPrefix(line, dataPrefix) {
				continue
			}

			var chunk streamChunk
			if err := json.Unmarshal(line[len(dataPrefix):], &chunk); err != nil {
				c.logger.Debug().Err(err).Int("bytes", len(line)).Msg("skipping malformed stream line")
				continue
			}
			if content := chunk.content(); content != "" {
				if !yield(content, nil) {
					return
				}
			}
		}
	}
}

// StreamCompletionFunc drives StreamCompletion through callbacks. onChunk
// receives each increment, onError receives the failure message, and
// onFinish runs exactly once on every path. Any callback may be nil.
func (c *OpenRouterClient) StreamCompletionFunc(
	ctx context.Context,
	req CompletionRequest,
	onChunk func(string),
	onError func(string),
	onFinish func(),
) {
	defer func() {
		if onFinish != nil {
			onFinish()
		}
	}()

	for chunk, err := range c.StreamCompletion(ctx, req) {
		if err != nil {
			if onError != nil {
				onError(ErrorMessage(err))
			}
			return
		}
		if onChunk != nil {
			onChunk(chunk)
		}
	}
}

// sendStreamRequest posts the completion request and returns the open
// response. The caller owns the body.
func (c *OpenRouterClient) sendStreamRequest(ctx context.Context, req CompletionRequest) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{Model: req.Model, Messages: req.Messages, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).Msg("POST /chat/completions")
	return c.streamClient.Do(httpReq)
}

// streamErr prefers the context's error so callers can tell cancellation
// from transport failure.
func (c *OpenRouterClient) streamErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	c.logger.Warn().Err(err).Msg("completion stream failed")
	return err
}
