package style

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// NewColorTableStyle is the rounded style used on terminals.
func NewColorTableStyle() *table.Style {
	style := table.StyleRounded
	style.Color = table.ColorOptionsCyanWhiteOnBlack
	style.Color.Row = text.Colors{text.FgHiWhite, text.BgHiBlack}
	style.Color.RowAlternate = text.Colors{text.FgWhite, text.BgBlack}
	style.Format.Header = text.FormatLower
	return &style
}

// NewTable creates a table writer rendering to w. Plain tables carry no
// colors, for output that is piped or diffed.
func NewTable(w io.Writer, title string, plain bool, header ...interface{}) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	if plain {
		t.SetStyle(table.StyleLight)
	} else {
		t.SetStyle(*NewColorTableStyle())
	}

	t.AppendHeader(table.Row(header))
	return t
}
