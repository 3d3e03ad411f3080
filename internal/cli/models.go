// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/util"
)

func newModelsCommand(opts *rootOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "models [query]",
		Short: "List available models",
		Long: `List the models heavon can talk to. The OpenRouter list is fetched live
and falls back to the built-in list when it cannot be reached. A query
filters by name or id.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				if !offline {
					a.engine.RefreshModels(cmd.Context())
				}
				models := a.engine.Catalog().Filter(query)
				if len(models) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No models match "+strconv.Quote(query))
					return nil
				}
				printModelTable(cmd.OutOrStdout(), models, GetTerminalWidth())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "show the built-in list without fetching")
	return cmd
}

// printModelTable writes one row per model, truncating the id and name
// columns to fit width.
func printModelTable(w io.Writer, models []model.Model, width int) {
	const (
		providerCol = 12
		contextCol  = 8
	)
	rest := max(width-providerCol-contextCol-3, 20)
	idCol := rest * 3 / 5
	nameCol := rest - idCol

	fmt.Fprintln(w, TitleStyle.Render(
		util.PadWidth("ID", idCol)+" "+
			util.PadWidth("NAME", nameCol)+" "+
			util.PadWidth("PROVIDER", providerCol)+" "+
			"CONTEXT"))

	for _, m := range models {
		ctxLen := "-"
		if m.ContextLength > 0 {
			ctxLen = strconv.Itoa(m.ContextLength)
		}
		row := []string{
			util.PadWidth(util.TruncateWidth(m.ID, idCol-1), idCol),
			util.PadWidth(util.TruncateWidth(m.DisplayName(), nameCol-1), nameCol),
			util.PadWidth(string(m.Provider), providerCol),
			ctxLen,
		}
		fmt.Fprintln(w, strings.Join(row, " "))
	}
}
