package main

import (
	"encoding/json"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

type column struct {
	title string
	right bool
}

var (
	recordColumns = []column{
		{title: "Seq", right: true},
		{title: "Fingerprint"},
		{title: "Score", right: true},
		{title: "Authentic"},
		{title: "Registered"},
	}
	fieldColumns = []column{{title: "Field"}, {title: "Value"}}
)

// emit prints v as indented JSON when asJSON is set and hands stdout to
// render otherwise.
func emit(cmd *cobra.Command, asJSON bool, v any, render func(out io.Writer)) error {
	out := cmd.OutOrStdout()
	if !asJSON {
		render(out)
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable lays rows out under columns. Missing trailing cells render
// blank and extra cells are dropped.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if col.right {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render() + "\n"
}
