// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/heavon/internal/engine"
	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/util"
)

// shortIDLen is how much of a chat id the tables show; any unique prefix
// is accepted where an id is expected.
const shortIDLen = 8

func newChatsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List saved chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				chats := a.conversations.Chats()
				if len(chats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No chats yet. Start one with 'heavon' or 'heavon chat'.")
					return nil
				}
				printChatTable(cmd.OutOrStdout(), chats, a.engine, GetTerminalWidth())
				return nil
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a chat transcript",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), opts, func(a *app) error {
					chat, err := a.findChat(args[0])
					if err != nil {
						return err
					}
					printTranscript(cmd.OutOrStdout(), chat)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "delete <id>",
			Aliases: []string{"rm"},
			Short:   "Delete a chat",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), opts, func(a *app) error {
					chat, err := a.findChat(args[0])
					if err != nil {
						return err
					}
					a.conversations.DeleteChat(chat.ID)
					fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted")+" "+chat.Title)
					return nil
				})
			},
		},
	)
	return cmd
}

// printChatTable lists chats newest first with id prefix, title, model,
// message count and creation time.
func printChatTable(w io.Writer, chats []model.Chat, eng *engine.Engine, width int) {
	const (
		msgsCol    = 5
		createdCol = 16
	)
	rest := max(width-shortIDLen-msgsCol-createdCol-4, 20)
	titleCol := rest * 3 / 5
	modelCol := rest - titleCol

	fmt.Fprintln(w, TitleStyle.Render(strings.Join([]string{
		util.PadWidth("ID", shortIDLen),
		util.PadWidth("TITLE", titleCol),
		util.PadWidth("MODEL", modelCol),
		util.PadWidth("MSGS", msgsCol),
		"CREATED",
	}, " ")))

	catalog := eng.Catalog()
	for _, c := range chats {
		id := c.ID
		if len(id) > shortIDLen {
			id = id[:shortIDLen]
		}
		row := []string{
			util.PadWidth(id, shortIDLen),
			util.PadWidth(util.TruncateWidth(util.SingleLine(c.Title), titleCol-1), titleCol),
			util.PadWidth(util.TruncateWidth(catalog.Find(c.Model).DisplayName(), modelCol-1), modelCol),
			util.PadWidth(strconv.Itoa(len(c.Messages)), msgsCol),
			c.CreatedAt.Local().Format("2006-01-02 15:04"),
		}
		fmt.Fprintln(w, strings.Join(row, " "))
	}
}

// printTranscript writes a chat as plain labelled paragraphs.
func printTranscript(w io.Writer, chat model.Chat) {
	fmt.Fprintln(w, TitleStyle.Render(chat.Title))
	fmt.Fprintln(w, DimStyle.Render(chat.Model+"  "+chat.CreatedAt.Local().Format("2006-01-02 15:04")))
	fmt.Fprintln(w, RenderSeparator(min(GetTerminalWidth(), 70)))
	for _, m := range chat.Messages {
		label := PromptStyle.Render(m.Role.DisplayName())
		if m.Role == model.RoleAssistant {
			label = AssistantStyle.Render(m.Role.DisplayName())
		}
		fmt.Fprintf(w, "%s: %s\n\n", label, m.Content)
	}
}
