package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lox/shrimpwatch/internal/dataset"
)

// ErrUnsupportedFormat is returned for input files that are neither CSV nor JSON.
var ErrUnsupportedFormat = errors.New("analysis: unsupported file type")

// Table is a loosely typed sample. Cells are nil, string, bool or json.Number.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// LoadTable reads a .csv file or a .json array of objects. A missing file is an empty table.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return &Table{}, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return &Table{}, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path)
	case ".json":
		return loadJSON(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func loadCSV(path string) (*Table, error) {
	header, rows, err := dataset.ReadTable(path)
	if err != nil {
		return nil, err
	}
	t := &Table{Columns: header, Rows: make([]map[string]any, 0, len(rows))}
	for _, row := range rows {
		rec := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = csvCell(row[i])
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// csvCell maps empty cells to null and numeric text to a JSON number.
func csvCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil && !dec.More() {
		if n, ok := v.(json.Number); ok {
			return n
		}
	}
	return s
}

// loadJSON decodes token by token so column order follows first appearance.
func loadJSON(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	t := &Table{}
	seen := make(map[string]bool)
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		rec := make(map[string]any)
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			key, _ := tok.(string)
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("%s: %s: %w", path, key, err)
			}
			rec[key] = v
			if !seen[key] {
				seen[key] = true
				t.Columns = append(t.Columns, key)
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		t.Rows = append(t.Rows, rec)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// Tail returns the last n rows as ordered records.
func (t *Table) Tail(n int) []Record {
	rows := t.Rows
	if n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record{columns: t.Columns, values: r}
	}
	return out
}

// Record marshals as a JSON object with keys in column order. Absent cells are null.
type Record struct {
	columns []string
	values  map[string]any
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[col])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
