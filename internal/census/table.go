package census

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/shrimpwatch/internal/models"
)

// Table is the tabular shape of a Census response: a header and string cells.
// Absent (null) cells are empty strings.
type Table struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of col in the header, or -1.
func (t Table) Index(col string) int {
	for i, h := range t.Header {
		if h == col {
			return i
		}
	}
	return -1
}

// Cell returns the value of col in row i. ok is false if the column does not exist.
func (t Table) Cell(i int, col string) (string, bool) {
	idx := t.Index(col)
	if idx < 0 || idx >= len(t.Rows[i]) {
		return "", false
	}
	return t.Rows[i][idx], true
}

// parseTable decodes a Census JSON payload: a 2D array whose first row is the header.
func parseTable(body []byte) (Table, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) < 2 {
		return Table{}, &FormatError{Excerpt: truncate(string(body), formatExcerptLen)}
	}

	header, err := decodeRow(raw[0])
	if err != nil {
		return Table{}, &FormatError{Excerpt: truncate(string(body), formatExcerptLen)}
	}

	rows := make([][]string, 0, len(raw)-1)
	for _, r := range raw[1:] {
		row, err := decodeRow(r)
		if err != nil || len(row) != len(header) {
			return Table{}, &FormatError{Excerpt: truncate(string(body), formatExcerptLen)}
		}
		rows = append(rows, row)
	}

	return normalize(Table{Header: header, Rows: rows}), nil
}

func decodeRow(msg json.RawMessage) ([]string, error) {
	var cells []any
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	if err := dec.Decode(&cells); err != nil {
		return nil, err
	}
	out := make([]string, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = v
		case json.Number:
			out[i] = v.String()
		case bool:
			out[i] = strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("cell %d: unexpected %T", i, c)
		}
	}
	return out, nil
}

// normalize collapses duplicate columns to their first occurrence and folds YEAR into MONTH.
func normalize(t Table) Table {
	seen := make(map[string]bool, len(t.Header))
	var keep []int
	for i, h := range t.Header {
		if seen[h] {
			continue
		}
		seen[h] = true
		keep = append(keep, i)
	}

	out := Table{Header: make([]string, 0, len(keep)), Rows: make([][]string, len(t.Rows))}
	for _, i := range keep {
		out.Header = append(out.Header, t.Header[i])
	}
	for r, row := range t.Rows {
		cells := make([]string, 0, len(keep))
		for _, i := range keep {
			cells = append(cells, row[i])
		}
		out.Rows[r] = cells
	}

	yearIdx, monthIdx := out.Index(models.ColYear), out.Index(models.ColMonth)
	if yearIdx < 0 || monthIdx < 0 {
		return out
	}

	for _, row := range out.Rows {
		row[monthIdx] = row[yearIdx] + "-" + zeroPad(row[monthIdx], 2)
	}
	return dropColumn(out, yearIdx)
}

func dropColumn(t Table, idx int) Table {
	t.Header = append(t.Header[:idx:idx], t.Header[idx+1:]...)
	for r, row := range t.Rows {
		t.Rows[r] = append(row[:idx:idx], row[idx+1:]...)
	}
	return t
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
