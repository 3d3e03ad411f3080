// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/ui/styles"
	"github.com/jeranaias/heavon/internal/util"
)

// modelPicker lists the catalog filtered by a search box.
type modelPicker struct {
	filter  textinput.Model
	catalog model.Catalog
	matches []model.Model
	cursor  int
}

func newModelPicker(catalog model.Catalog, current string) modelPicker {
	in := textinput.New()
	in.Prompt = "/ "
	in.Placeholder = "search models"
	in.Focus()

	p := modelPicker{
		filter:  in,
		catalog: catalog,
		matches: catalog.Models(),
	}
	for i, m := range p.matches {
		if m.ID == current {
			p.cursor = i
			break
		}
	}
	return p
}

// Selected returns the model under the cursor.
func (p modelPicker) Selected() (model.Model, bool) {
	if p.cursor < 0 || p.cursor >= len(p.matches) {
		return model.Model{}, false
	}
	return p.matches[p.cursor], true
}

func (p modelPicker) Update(msg tea.KeyMsg) (modelPicker, overlayResult, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return p, overlayDismiss, nil
	case "enter":
		if _, ok := p.Selected(); ok {
			return p, overlayCommit, nil
		}
		return p, overlayOpen, nil
	case "up", "ctrl+p":
		if p.cursor > 0 {
			p.cursor--
		}
		return p, overlayOpen, nil
	case "down", "ctrl+n":
		if p.cursor < len(p.matches)-1 {
			p.cursor++
		}
		return p, overlayOpen, nil
	}

	var cmd tea.Cmd
	before := p.filter.Value()
	p.filter, cmd = p.filter.Update(msg)
	if p.filter.Value() != before {
		p.matches = p.catalog.Filter(p.filter.Value())
		p.cursor = 0
	}
	return p, overlayOpen, cmd
}

func (p modelPicker) View(theme *styles.Theme, width, rows int) string {
	var b strings.Builder
	b.WriteString(theme.OverlayTitle.Render(fmt.Sprintf("Models (%d)", p.catalog.Len())))
	b.WriteString("\n")
	b.WriteString(p.filter.View())
	b.WriteString("\n\n")

	if len(p.matches) == 0 {
		b.WriteString(theme.Timestamp.Render("No models match"))
		return theme.Overlay.Render(b.String())
	}

	rows = max(rows, 1)
	start := 0
	if p.cursor >= rows {
		start = p.cursor - rows + 1
	}
	end := min(start+rows, len(p.matches))

	for i := start; i < end; i++ {
		m := p.matches[i]
		line := m.DisplayName()
		if m.Provider == model.ProviderHuggingFace {
			line += " [hf]"
		}
		line = util.PadWidth(util.TruncateWidth(line, width), width)
		if i == p.cursor {
			b.WriteString(theme.ListSelected.Render(line))
		} else {
			b.WriteString(theme.ListItem.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(theme.Timestamp.Render("Enter select  Esc close"))
	return theme.Overlay.Render(b.String())
}
