// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/heavon/internal/config"
	"github.com/jeranaias/heavon/internal/export"
	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/storage"
	"github.com/jeranaias/heavon/internal/store"
)

// =============================================================================
// HELPERS
// =============================================================================

// isolate points HOME at a temp dir and clears HEAVON_* overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("NO_COLOR", "1")
	for _, name := range []string{
		"HEAVON_MODEL", "HEAVON_BASE_URL", "HEAVON_OPENROUTER_KEY",
		"HEAVON_STORAGE_DRIVER", "HEAVON_DATA_DIR", "HEAVON_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
	return home
}

// writeConfig writes a config file that keeps data and logs under dir.
func writeConfig(t *testing.T, dir, baseURL string) string {
	t.Helper()
	if baseURL == "" {
		baseURL = "http://127.0.0.1:1/api/v1"
	}
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`
[provider]
base_url = %q
openrouter_key = "sk-or-test"

[storage]
driver = "file"
dir = %q
watch = false

[log]
level = "error"
file = %q
`, baseURL, filepath.Join(dir, "data"), filepath.Join(dir, "heavon.log"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// seedChats stores one chat per title in the file driver under dir/data.
func seedChats(t *testing.T, dir string, titles ...string) []string {
	t.Helper()
	driver, err := storage.NewFileDriver(filepath.Join(dir, "data"), zerolog.Nop())
	require.NoError(t, err)
	conversations := store.NewConversationStore(driver.Backend(store.ChatsKey), zerolog.Nop())

	var ids []string
	for _, title := range titles {
		id := conversations.CreateChat(model.DefaultModelID)
		conversations.AppendMessage(id, model.NewUserMessage("question about "+title))
		conversations.UpdateChat(id, func(c model.Chat) model.Chat {
			c.Title = title
			return c
		})
		ids = append(ids, id)
	}
	return ids
}

// run executes the command tree with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func dataLine(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": content}}},
	})
	return "data: " + string(b) + "\n\n"
}

// completionServer streams chunks for every chat completion request.
func completionServer(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			io.WriteString(w, dataLine(c))
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)
	return server
}

// =============================================================================
// ROOT
// =============================================================================

func TestRoot_Version(t *testing.T) {
	isolate(t)
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestRoot_Help(t *testing.T) {
	isolate(t)
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"chat", "models", "chats", "export", "config"} {
		assert.Contains(t, out, sub)
	}
}

func TestRoot_UnknownCommand(t *testing.T) {
	isolate(t)
	_, err := run(t, "frobnicate")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitGeneralError},
		{"not found", &NotFoundError{Resource: "chat", ID: "x"}, ExitNotFoundError},
		{"wrapped not found", fmt.Errorf("show: %w", &NotFoundError{Resource: "chat", ID: "x"}), ExitNotFoundError},
		{"config", &ConfigError{Path: "c.toml", Err: errors.New("bad")}, ExitConfigError},
		{"validation", config.ValidateErrors{{Field: "log.level", Message: "bad"}}, ExitConfigError},
		{"driver", fmt.Errorf("open: %w", storage.ErrUnknownDriver), ExitConfigError},
		{"format", fmt.Errorf("%w: pdf", export.ErrUnsupportedFormat), ExitUsageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_PathAndKeys(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.toml")

	out, err := run(t, "config", "path", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, path, strings.TrimSpace(out))

	out, err = run(t, "config", "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "provider.base_url")
	assert.Contains(t, out, "storage.driver")
	assert.Contains(t, out, "log.level")
}

func TestConfig_SetThenGet(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")

	out, err := run(t, "config", "set", "log.level", "debug", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "log.level = debug")

	out, err = run(t, "config", "get", "log.level", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "debug", strings.TrimSpace(out))

	// Keys that were never set keep their defaults.
	out, err = run(t, "config", "get", "storage.driver", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "file", strings.TrimSpace(out))
}

func TestConfig_SetMasksSecrets(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")

	out, err := run(t, "config", "set", "provider.openrouter_key", "sk-or-secret", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-or-secret")
	assert.Contains(t, out, "sha256:")

	out, err = run(t, "config", "get", "provider.openrouter_key", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-or-secret")
}

func TestConfig_SetDoesNotPersistEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	t.Setenv("HEAVON_OPENROUTER_KEY", "sk-or-from-env")

	_, err := run(t, "config", "set", "log.level", "warn", "--config", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-or-from-env")
	assert.Contains(t, string(data), "warn")
}

func TestConfig_SetRejectsInvalid(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")

	_, err := run(t, "config", "set", "log.level", "loud", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
	assert.NoFileExists(t, path)

	_, err = run(t, "config", "set", "no.such.key", "1", "--config", path)
	assert.Error(t, err)
}

func TestConfig_ShowRedactsKey(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "")

	out, err := run(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-or-test")
	assert.Contains(t, out, "base_url")
}

func TestConfig_MissingFileIsConfigError(t *testing.T) {
	dir := isolate(t)
	_, err := run(t, "chats", "--config", filepath.Join(dir, "absent.toml"))
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestMaskIfSecret(t *testing.T) {
	assert.Equal(t, "debug", maskIfSecret("log.level", "debug"))
	assert.Equal(t, "(not set)", maskIfSecret("provider.openrouter_key", ""))

	masked := maskIfSecret("provider.openrouter_key", "sk-or-abc")
	assert.True(t, strings.HasPrefix(masked, "sha256:"))
	assert.NotContains(t, masked, "sk-or-abc")
	assert.Equal(t, masked, maskIfSecret("storage.redis_password", "sk-or-abc"))
	assert.NotEqual(t, masked, maskIfSecret("provider.openrouter_key", "sk-or-xyz"))
}

// =============================================================================
// CHATS AND EXPORT
// =============================================================================

func TestChats_Empty(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "")

	out, err := run(t, "chats", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No chats yet")
}

func TestChats_ListShowDelete(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "")
	ids := seedChats(t, dir, "Go generics", "Sourdough starter")

	out, err := run(t, "chats", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Go generics")
	assert.Contains(t, out, "Sourdough starter")
	assert.Contains(t, out, ids[0][:shortIDLen])

	out, err = run(t, "chats", "show", ids[1][:shortIDLen], "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Sourdough starter")
	assert.Contains(t, out, "question about Sourdough starter")

	out, err = run(t, "chats", "rm", ids[0], "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted Go generics")

	out, err = run(t, "chats", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "Go generics")

	_, err = run(t, "chats", "show", ids[0], "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitNotFoundError, ExitCode(err))
}

func TestExport_Stdout(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "")
	ids := seedChats(t, dir, "Tide tables")

	out, err := run(t, "export", ids[0][:shortIDLen], "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "# Tide tables")
	assert.Contains(t, out, "question about Tide tables")

	out, err = run(t, "export", ids[0], "-f", "json", "--config", path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
}

func TestExport_ToDirectory(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "")
	ids := seedChats(t, dir, "Tide tables")
	outDir := filepath.Join(dir, "exports")

	out, err := run(t, "export", ids[0], "-f", "yaml", "-o", outDir, "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".yaml"))
}

func TestExport_UnknownFormat(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "")

	_, err := run(t, "export", "anything", "-f", "pdf", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestFindChat(t *testing.T) {
	driver := storage.NewMemoryDriver()
	driver.Put(store.ChatsKey, []byte(`[
		{"id":"abc-1","title":"One","messages":[],"model":"openai/gpt-3.5-turbo"},
		{"id":"abc-2","title":"Two","messages":[],"model":"openai/gpt-3.5-turbo"},
		{"id":"xyz","title":"Three","messages":[],"model":"openai/gpt-3.5-turbo"}
	]`))
	a := &app{conversations: store.NewConversationStore(driver.Backend(store.ChatsKey), zerolog.Nop())}

	chat, err := a.findChat("abc-2")
	require.NoError(t, err)
	assert.Equal(t, "Two", chat.Title)

	chat, err = a.findChat("x")
	require.NoError(t, err)
	assert.Equal(t, "Three", chat.Title)

	_, err = a.findChat("abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = a.findChat("nope")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.ID)

	_, err = a.findChat("")
	assert.ErrorAs(t, err, &notFound)
}

// =============================================================================
// MODELS
// =============================================================================

func TestModels_Offline(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "")

	out, err := run(t, "models", "--offline", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "PROVIDER")
	assert.Contains(t, out, model.DefaultModelID)
	assert.Contains(t, out, string(model.ProviderHuggingFace))

	out, err = run(t, "models", "claude", "--offline", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "anthropic/")
	assert.NotContains(t, out, model.DefaultModelID)

	out, err = run(t, "models", "no-such-model", "--offline", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, `No models match "no-such-model"`)
}

func TestPrintModelTable(t *testing.T) {
	var buf bytes.Buffer
	printModelTable(&buf, []model.Model{
		{ID: "vendor/model-a", Name: "Model A", Provider: model.ProviderOpenRouter, ContextLength: 8192},
		{ID: "vendor/model-b", Provider: model.ProviderHuggingFace},
	}, 80)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "CONTEXT")
	assert.Contains(t, lines[1], "Model A")
	assert.True(t, strings.HasSuffix(lines[1], "8192"))
	assert.True(t, strings.HasSuffix(lines[2], "-"))
}

// =============================================================================
// CHAT REPL
// =============================================================================

// newTestApp opens an app on the memory driver, talking to baseURL.
func newTestApp(t *testing.T, baseURL string) *app {
	t.Helper()
	dir := isolate(t)
	cfg := config.Default()
	cfg.Provider.BaseURL = baseURL
	cfg.Provider.OpenRouterKey = "sk-or-test"
	cfg.Provider.RequestsPerMinute = 0
	cfg.Storage.Driver = "memory"
	cfg.Storage.Dir = dir
	cfg.Storage.Watch = false
	cfg.Log.Level = "error"
	cfg.Log.File = filepath.Join(dir, "heavon.log")

	a, err := openApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func newTestREPL(a *app, input string, out io.Writer) *chatREPL {
	r := newChatREPL(a, newScanReader(strings.NewReader(input)), out)
	r.turnContext = func(ctx context.Context) (context.Context, context.CancelFunc) {
		return context.WithCancel(ctx)
	}
	return r
}

func TestChatREPL_StreamsReply(t *testing.T) {
	server := completionServer(t, "Hel", "lo", " there")
	a := newTestApp(t, server.URL)

	var out bytes.Buffer
	r := newTestREPL(a, "hi\n/quit\nnever sent\n", &out)
	require.NoError(t, r.run(context.Background()))

	assert.Contains(t, out.String(), "Hello there")

	chats := a.conversations.Chats()
	require.Len(t, chats, 1)
	msgs := chats[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello there", msgs[1].Content)
}

func TestChatREPL_ContinuesChat(t *testing.T) {
	server := completionServer(t, "ok")
	a := newTestApp(t, server.URL)

	var out bytes.Buffer
	r := newTestREPL(a, "first\nsecond\n", &out)
	require.NoError(t, r.run(context.Background()))

	chats := a.conversations.Chats()
	require.Len(t, chats, 1)
	assert.Len(t, chats[0].Messages, 4)
}

func TestChatREPL_Commands(t *testing.T) {
	server := completionServer(t, "ok")
	a := newTestApp(t, server.URL)
	existing := a.conversations.CreateChat("anthropic/claude-3-opus")

	var out bytes.Buffer
	input := strings.Join([]string{
		"/help",
		"/model openai/gpt-4-turbo",
		"/use " + existing[:shortIDLen],
		"/new",
		"/bogus",
		"/chats",
	}, "\n") + "\n"
	r := newTestREPL(a, input, &out)
	require.NoError(t, r.run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Commands:")
	assert.Contains(t, text, "(openai/gpt-4-turbo)")
	assert.Contains(t, text, "Continuing chat")
	assert.Contains(t, text, "Started a new chat")
	assert.Contains(t, text, "unknown command /bogus")

	// /use switched to the saved chat's model, /new kept it.
	assert.Equal(t, "anthropic/claude-3-opus", r.model)
	assert.NotEqual(t, existing, r.chatID)
	assert.Len(t, a.conversations.Chats(), 2)
}

func TestChatREPL_UseUnknownChat(t *testing.T) {
	a := newTestApp(t, "http://127.0.0.1:1/api/v1")
	r := newTestREPL(a, "", io.Discard)

	err := r.use("missing")
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestChatREPL_UpstreamErrorIsRecorded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	t.Cleanup(server.Close)
	a := newTestApp(t, server.URL)

	var out bytes.Buffer
	r := newTestREPL(a, "hi\n", &out)
	require.NoError(t, r.run(context.Background()))

	assert.Contains(t, out.String(), "**Error:**")
	chats := a.conversations.Chats()
	require.Len(t, chats, 1)
	last, ok := chats[0].LastMessage()
	require.True(t, ok)
	assert.Contains(t, last.Content, "**Error:**")
}
