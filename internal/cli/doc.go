// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the heavon command line.
//
// Running heavon without a subcommand opens the terminal UI. The
// subcommands work on the same stores without it:
//
//	heavon                          Open the TUI
//	heavon chat [-m model]          Line-based chat in the terminal
//	heavon models [query]           List available models
//	heavon chats                    List saved chats
//	heavon chats delete <id>        Delete a chat
//	heavon export <id> -f markdown  Export a chat
//	heavon config show|get|set|path Inspect or edit the config file
//
// Every command loads the config file (--config or ~/.heavon/config.toml),
// initialises logging and opens the configured storage driver before it
// runs.
package cli
