// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// DefaultSystemPrompt is the system prompt used until the user saves another.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// Settings holds the user-configurable credentials and system prompt.
type Settings struct {
	OpenRouterKey  string `json:"openRouterKey"`
	HuggingFaceKey string `json:"huggingFaceKey"`
	SystemPrompt   string `json:"systemPrompt"`
}

// DefaultSettings returns the settings of a fresh installation.
func DefaultSettings() Settings {
	return Settings{
		SystemPrompt: DefaultSystemPrompt,
	}
}

// KeyFor returns the API key used for the given provider.
func (s Settings) KeyFor(p Provider) string {
	if p == ProviderHuggingFace {
		return s.HuggingFaceKey
	}
	return s.OpenRouterKey
}
