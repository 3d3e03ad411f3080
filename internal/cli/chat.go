// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/heavon/internal/engine"
)

const historyFileName = "chat_history"

func newChatCommand(opts *rootOptions) *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Chat with a model line by line. Replies stream into the terminal and the
conversation is saved like any chat started in the TUI.

Interactive Commands (during chat):
  /help            Show available commands
  /new             Start a new chat
  /model [id]      Show or switch the model
  /models [query]  List models
  /chats           List saved chats
  /use <id>        Continue a saved chat
  /quit            Exit chat
  Ctrl+C           Stop the current reply
  Ctrl+D           Exit chat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				var in lineReader
				if IsTTY() {
					dir, err := a.cfg.DataDir()
					if err != nil {
						return err
					}
					in = newLinerReader(filepath.Join(dir, historyFileName))
				} else {
					in = newScanReader(cmd.InOrStdin())
				}
				defer in.Close()

				r := newChatREPL(a, in, cmd.OutOrStdout())
				if chatID != "" {
					if err := r.use(chatID); err != nil {
						return err
					}
				}
				return r.run(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&chatID, "resume", "", "continue the chat with this id")
	return cmd
}

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of user input.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// linerReader provides line editing and history on a terminal.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader(historyFile string) *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &linerReader{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *linerReader) Close() error {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	return r.line.Close()
}

// scanReader reads piped input without echoing prompts.
type scanReader struct {
	scanner *bufio.Scanner
}

func newScanReader(in io.Reader) *scanReader {
	return &scanReader{scanner: bufio.NewScanner(in)}
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) Close() error { return nil }

// =============================================================================
// REPL
// =============================================================================

type chatREPL struct {
	app    *app
	in     lineReader
	out    io.Writer
	model  string
	chatID string

	// turnContext bounds one reply; the default cancels it on Ctrl+C.
	turnContext func(context.Context) (context.Context, context.CancelFunc)
}

func newChatREPL(a *app, in lineReader, out io.Writer) *chatREPL {
	return &chatREPL{
		app:   a,
		in:    in,
		out:   out,
		model: a.engine.DefaultModel(),
		turnContext: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		},
	}
}

func (r *chatREPL) run(ctx context.Context) error {
	fmt.Fprintln(r.out, TitleStyle.Render("heavon chat"))
	fmt.Fprintln(r.out, DimStyle.Render("Model: "+r.modelName()+"  (/help for commands, Ctrl+D to exit)"))
	if r.app.settings.Settings().KeyFor(r.app.engine.Catalog().Find(r.model).Provider) == "" {
		fmt.Fprintln(r.out, WarningStyle.Render("No API key set for this model's provider; replies will fail."))
	}
	fmt.Fprintln(r.out)

	for {
		line, err := r.in.Prompt(PromptStyle.Render("You") + ": ")
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(r.out)
			return nil
		case err != nil:
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintln(r.out, WarningStyle.Render(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		if err := r.send(ctx, line); err != nil {
			fmt.Fprintln(r.out, WarningStyle.Render(err.Error()))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (r *chatREPL) modelName() string {
	return r.app.engine.Catalog().Find(r.model).DisplayName()
}

// send streams one reply, printing it as it grows.
func (r *chatREPL) send(ctx context.Context, content string) error {
	conversations := r.app.conversations
	if _, ok := conversations.Chat(r.chatID); !ok {
		r.chatID = conversations.CreateChat(r.model)
	}
	conversations.SetActiveChatID(r.chatID)

	chat, _ := conversations.Chat(r.chatID)
	// The user message lands at base and the reply right after it.
	replyIndex := len(chat.Messages) + 1

	changes, unsubscribe := conversations.Subscribe()
	defer unsubscribe()

	turnCtx, stop := r.turnContext(ctx)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- r.app.engine.SendMessage(turnCtx, content, r.model, r.chatID)
	}()

	fmt.Fprint(r.out, AssistantStyle.Render("Assistant")+": ")
	printed := 0
	flush := func() {
		chat, ok := conversations.Chat(r.chatID)
		if !ok || len(chat.Messages) <= replyIndex {
			return
		}
		reply := chat.Messages[replyIndex].Content
		if len(reply) > printed {
			fmt.Fprint(r.out, reply[printed:])
			printed = len(reply)
		}
	}

	for {
		select {
		case <-changes:
			flush()
		case err := <-done:
			flush()
			fmt.Fprint(r.out, "\n\n")
			if errors.Is(err, engine.ErrChatBusy) {
				return err
			}
			return nil
		}
	}
}

// command runs a slash command and reports whether the REPL should exit.
func (r *chatREPL) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h":
		fmt.Fprintln(r.out, `Commands:
  /new             Start a new chat
  /model [id]      Show or switch the model
  /models [query]  List models
  /chats           List saved chats
  /use <id>        Continue a saved chat
  /quit            Exit chat`)

	case "/new":
		r.chatID = r.app.conversations.CreateChat(r.model)
		fmt.Fprintln(r.out, SuccessStyle.Render("Started a new chat"))

	case "/model":
		if arg != "" {
			r.model = arg
		}
		fmt.Fprintln(r.out, LabelStyle.Render("Model: ")+r.modelName()+DimStyle.Render(" ("+r.model+")"))

	case "/models":
		r.app.engine.RefreshModels(ctx)
		printModelTable(r.out, r.app.engine.Catalog().Filter(arg), GetTerminalWidth())

	case "/chats":
		printChatTable(r.out, r.app.conversations.Chats(), r.app.engine, GetTerminalWidth())

	case "/use":
		if err := r.use(arg); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Continuing chat")+" "+r.chatTitle())

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

// use switches to a saved chat; the model follows the chat.
func (r *chatREPL) use(id string) error {
	chat, err := r.app.findChat(id)
	if err != nil {
		return err
	}
	r.chatID = chat.ID
	if chat.Model != "" {
		r.model = chat.Model
	}
	r.app.conversations.SetActiveChatID(chat.ID)
	return nil
}

func (r *chatREPL) chatTitle() string {
	chat, _ := r.app.conversations.Chat(r.chatID)
	return chat.Title
}
