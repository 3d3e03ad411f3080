// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/heavon/internal/export"
)

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		format       string
		outputDir    string
		open         bool
		noMetadata   bool
		noTimestamps bool
	)

	cmd := &cobra.Command{
		Use:   "export <chat-id>",
		Short: "Export a chat to a file",
		Long: `Export a chat as ` + strings.Join(export.Formats, ", ") + `.

Without --out the export is written to stdout. With --out a new file named
after the chat title is created in that directory. Use 'heavon chats' to see
chat ids; any unique prefix works.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exportOpts := export.DefaultOptions()
			exportOpts.IncludeMetadata = !noMetadata
			exportOpts.IncludeTimestamps = !noTimestamps
			exportOpts.OpenAfterExport = open

			exporter, err := export.ForFormat(format, exportOpts)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				chat, err := a.findChat(args[0])
				if err != nil {
					return err
				}

				if outputDir == "" {
					content, err := exporter.Export(chat)
					if err != nil {
						return fmt.Errorf("export failed: %w", err)
					}
					_, err = cmd.OutOrStdout().Write(content)
					return err
				}

				exportOpts.OutputDir = outputDir
				path, err := export.ExportToFile(chat, exporter, exportOpts)
				if err != nil {
					return err
				}
				a.logger.Info().Str("chat", chat.ID).Str("path", path).Msg("chat exported")
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Exported")+" "+path)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", "markdown", "export format ("+strings.Join(export.Formats, "/")+")")
	flags.StringVarP(&outputDir, "out", "o", "", "directory to write the file to (default: stdout)")
	flags.BoolVar(&open, "open", false, "open the file after exporting")
	flags.BoolVar(&noMetadata, "no-metadata", false, "omit the chat header")
	flags.BoolVar(&noTimestamps, "no-timestamps", false, "omit message timestamps")
	return cmd
}
