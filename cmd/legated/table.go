package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

func renderDeviceTable(rows []deviceRow) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Device", "Kind", "Major:Minor"})
	for _, row := range rows {
		tw.AppendRow(table.Row{row.Path, row.Kind, fmt.Sprintf("%d:%d", row.Major, row.Minor)})
	}
	return tw.Render()
}
