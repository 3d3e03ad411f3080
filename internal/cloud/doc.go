// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the OpenRouter completion client.
//
// OpenRouter exposes many hosted models behind one OpenAI-style API. The
// client implements the two calls heavon needs: listing the available models
// and streaming a chat completion as server-sent events.
//
// # Key Types
//
//   - OpenRouterClient: HTTP client holding the base URL and identifying headers
//   - CompletionRequest: model, context window and API key for one completion
//   - APIError: a non-success HTTP response from the provider
//   - SSEReader: line reader for the event stream
//
// # Usage
//
// Iterate the stream; each value is one text increment:
//
//	client := cloud.NewOpenRouterClient(cloud.DefaultOpenRouterURL)
//	for chunk, err := range client.StreamCompletion(ctx, cloud.CompletionRequest{
//	    Model:    "openai/gpt-3.5-turbo",
//	    Messages: []cloud.ChatMessage{cloud.NewUserMessage("Hello")},
//	    APIKey:   key,
//	}) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(chunk)
//	}
//
// StreamCompletionFunc offers the same stream through onChunk, onError and
// onFinish callbacks.
//
// API keys are never logged.
package cloud
