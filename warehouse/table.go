package warehouse

import (
	"strings"
	"unicode/utf8"
)

// RenderTable draws rows as an ASCII table:
//
//	+----+-------+
//	| id | name  |
//	+====+=======+
//	| 1  | alice |
//	+----+-------+
//
// Rows shorter than headers are padded with empty cells; extra cells are
// dropped.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i := 0; i < len(widths) && i < len(row); i++ {
			widths[i] = max(widths[i], utf8.RuneCountInString(row[i]))
		}
	}

	var border strings.Builder
	border.WriteByte('+')
	for _, w := range widths {
		border.WriteString(strings.Repeat("-", w+2))
		border.WriteByte('+')
	}
	top := border.String()

	var b strings.Builder
	b.WriteString(top)
	b.WriteByte('\n')
	writeRow(&b, headers, widths)
	b.WriteString(strings.ReplaceAll(top, "-", "="))
	for _, row := range rows {
		b.WriteByte('\n')
		writeRow(&b, row, widths)
		b.WriteString(top)
	}

	return b.String()
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	b.WriteByte('|')
	for i, w := range widths {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}
		b.WriteByte(' ')
		b.WriteString(cell)
		b.WriteString(strings.Repeat(" ", w-utf8.RuneCountInString(cell)))
		b.WriteString(" |")
	}
	b.WriteByte('\n')
}
