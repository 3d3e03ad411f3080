// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/heavon/internal/model"
)

// =============================================================================
// MODEL LISTING TESTS
// =============================================================================

func TestListModels_MapsFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"id":"openai/gpt-4o","name":"OpenAI: GPT-4o","context_length":128000,"pricing":{"prompt":"0.000005"}},
			{"id":"mistralai/mistral-7b-instruct:free","name":"Mistral 7B Instruct (free)"}
		]}`))
	}))
	defer server.Close()

	models := NewOpenRouterClient(server.URL).ListModels(context.Background(), "sk-or-test")

	require.Len(t, models, 2)
	assert.Equal(t, model.Model{
		ID:            "openai/gpt-4o",
		Name:          "OpenAI: GPT-4o",
		Provider:      model.ProviderOpenRouter,
		ContextLength: 128000,
	}, models[0])
	assert.Equal(t, 0, models[1].ContextLength)
}

func TestListModels_Headers(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := NewOpenRouterClient(server.URL).WithSiteURL("https://example.test").WithSiteName("Example")
	client.ListModels(context.Background(), "sk-or-abc")

	assert.Equal(t, "Bearer sk-or-abc", got.Get("Authorization"))
	assert.Equal(t, "https://example.test", got.Get("HTTP-Referer"))
	assert.Equal(t, "Example", got.Get("X-Title"))
}

func TestListModels_NoKeyNoAuthorization(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	NewOpenRouterClient(server.URL).ListModels(context.Background(), "")

	assert.Empty(t, got.Get("Authorization"))
	assert.Equal(t, DefaultSiteURL, got.Get("HTTP-Referer"))
	assert.Equal(t, DefaultSiteName, got.Get("X-Title"))
}

func TestListModels_SoftFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"No auth credentials found","code":401}}`))
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			models := NewOpenRouterClient(server.URL).ListModels(context.Background(), "k")
			assert.NotNil(t, models)
			assert.Empty(t, models)
		})
	}
}

func TestListModels_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var models []model.Model
	assert.NotPanics(t, func() {
		models = NewOpenRouterClient(url).WithTimeout(2*time.Second).ListModels(context.Background(), "k")
	})
	assert.NotNil(t, models)
	assert.Empty(t, models)
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestAPIError_Message(t *testing.T) {
	assert.Equal(t, "rate limited", (&APIError{Status: 429, StatusText: "Too Many Requests", Message: "rate limited"}).Error())
	assert.Equal(t, "Failed to generate response: Too Many Requests", (&APIError{Status: 429, StatusText: "Too Many Requests"}).Error())
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "", ErrorMessage(nil))
	assert.Equal(t, "Response body is empty", ErrorMessage(ErrEmptyBody))
	assert.Equal(t, "Unknown error", ErrorMessage(emptyErr{}))
}

type emptyErr struct{}

func (emptyErr) Error() string { return "" }

func TestNewOpenRouterClient_Defaults(t *testing.T) {
	assert.Equal(t, DefaultOpenRouterURL, NewOpenRouterClient("").BaseURL())
	assert.Equal(t, "http://localhost:9999/v1", NewOpenRouterClient("http://localhost:9999/v1/").BaseURL())
}

func TestWithRateLimit(t *testing.T) {
	c := NewOpenRouterClient("").WithRateLimit(60)
	require.NotNil(t, c.limiter)
	assert.NoError(t, c.wait(context.Background()))

	c.WithRateLimit(0)
	assert.Nil(t, c.limiter)
}
