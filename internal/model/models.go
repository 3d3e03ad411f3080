// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
)

// =============================================================================
// PROVIDER
// =============================================================================

// Provider tags the service a model is served by.
type Provider string

const (
	ProviderOpenRouter  Provider = "openrouter"
	ProviderHuggingFace Provider = "huggingface"
)

// DefaultModelID is used when a chat is created without an explicit model.
const DefaultModelID = "openai/gpt-3.5-turbo"

// =============================================================================
// MODEL TYPE
// =============================================================================

// Model describes a selectable completion model.
// ContextLength is zero when the provider did not report it.
type Model struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Provider      Provider `json:"provider"`
	ContextLength int      `json:"contextLength,omitempty"`
}

// DisplayName returns the name, or the id for models without one.
func (m Model) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// defaultModels is offered until a live list has been fetched.
var defaultModels = []Model{
	{ID: "google/gemma-7b-it:free", Name: "Gemma 7B (Free)", Provider: ProviderOpenRouter},
	{ID: "mistralai/mistral-7b-instruct:free", Name: "Mistral 7B (Free)", Provider: ProviderOpenRouter},
	{ID: "huggingfaceh4/zephyr-7b-beta:free", Name: "Zephyr 7B (Free)", Provider: ProviderOpenRouter},
	{ID: "openai/gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Provider: ProviderOpenRouter},
	{ID: "openai/gpt-4-turbo", Name: "GPT-4 Turbo", Provider: ProviderOpenRouter},
	{ID: "anthropic/claude-3-opus", Name: "Claude 3 Opus", Provider: ProviderOpenRouter},
	{ID: "anthropic/claude-3-sonnet", Name: "Claude 3 Sonnet", Provider: ProviderOpenRouter},
}

// huggingFaceModels are served through the Hugging Face router.
var huggingFaceModels = []Model{
	{ID: "meta-llama/Llama-3.1-8B-Instruct", Name: "Llama 3.1 8B (HF)", Provider: ProviderHuggingFace},
	{ID: "Qwen/Qwen2.5-7B-Instruct", Name: "Qwen 2.5 7B (HF)", Provider: ProviderHuggingFace},
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is an ordered list of models offered to the user.
type Catalog struct {
	models []Model
}

// DefaultCatalog returns the built-in fallback list.
func DefaultCatalog() Catalog {
	models := make([]Model, 0, len(defaultModels)+len(huggingFaceModels))
	models = append(models, defaultModels...)
	models = append(models, huggingFaceModels...)
	return Catalog{models: models}
}

// NewCatalog wraps a list of models.
func NewCatalog(models []Model) Catalog {
	return Catalog{models: append([]Model(nil), models...)}
}

// Models returns the models in catalog order.
func (c Catalog) Models() []Model {
	return append([]Model(nil), c.models...)
}

// Len returns the number of models.
func (c Catalog) Len() int {
	return len(c.models)
}

// WithFetched replaces the OpenRouter entries by a freshly fetched list.
// An empty fetch leaves the catalog as it is, so a failed listing keeps the
// built-in defaults.
func (c Catalog) WithFetched(fetched []Model) Catalog {
	if len(fetched) == 0 {
		return c
	}
	models := append([]Model(nil), fetched...)
	for _, m := range c.models {
		if m.Provider == ProviderHuggingFace {
			models = append(models, m)
		}
	}
	return Catalog{models: models}
}

// Filter returns the models whose name or id contains query, ignoring case.
func (c Catalog) Filter(query string) []Model {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c.Models()
	}
	var out []Model
	for _, m := range c.models {
		if strings.Contains(strings.ToLower(m.Name), query) ||
			strings.Contains(strings.ToLower(m.ID), query) {
			out = append(out, m)
		}
	}
	return out
}

// Lookup returns the model with the given id.
func (c Catalog) Lookup(id string) (Model, bool) {
	for _, m := range c.models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// Find returns the model with the given id. Unknown ids are assumed to be
// OpenRouter models and are displayed by their id.
func (c Catalog) Find(id string) Model {
	if m, ok := c.Lookup(id); ok {
		return m
	}
	return Model{ID: id, Name: id, Provider: ProviderOpenRouter}
}
