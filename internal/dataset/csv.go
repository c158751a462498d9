package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lox/shrimpwatch/internal/models"
)

// ReadTable reads a CSV file with a header row. Errors wrap the os error, so a missing file
// satisfies errors.Is(err, fs.ErrNotExist).
func ReadTable(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	header = records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header, records[1:], nil
}

// WriteTable writes header and rows as CSV.
func WriteTable(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// ReadTradeRecords loads the canonical dataset. Columns are matched by name so files written by
// other tools with a different column order still load.
func ReadTradeRecords(path string) ([]models.TradeRecord, error) {
	header, rows, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	if len(header) == 0 {
		return nil, nil
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	for _, col := range []string{models.ColCommodity, models.ColMonth, models.ColValue} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("read %s: missing column %s", path, col)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]models.TradeRecord, 0, len(rows))
	for n, row := range rows {
		value, err := decimal.NewFromString(cell(row, models.ColValue))
		if err != nil {
			return nil, fmt.Errorf("read %s: line %d: %s: %w", path, n+2, models.ColValue, err)
		}
		records = append(records, models.TradeRecord{
			CommodityCode:        cell(row, models.ColCommodity),
			CommodityDescription: cell(row, models.ColDescription),
			ValueUSD:             value,
			VesselWeightKg:       ParseNullDecimal(cell(row, models.ColVesselWeight)),
			ContainerWeightKg:    ParseNullDecimal(cell(row, models.ColContainerWeight)),
			AirWeightKg:          ParseNullDecimal(cell(row, models.ColAirWeight)),
			Month:                cell(row, models.ColMonth),
		})
	}
	return records, nil
}

// ParseNullDecimal parses s, mapping empty or unparsable input to an invalid NullDecimal.
func ParseNullDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// WriteTradeRecords atomically replaces the canonical dataset at path.
func WriteTradeRecords(path string, records []models.TradeRecord) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Strings()
	}
	return WriteFileAtomic(path, func(w io.Writer) error {
		return WriteTable(w, models.TradeColumns, rows)
	})
}

// WriteFeatureRecords atomically replaces the feature dataset at path.
func WriteFeatureRecords(path string, records []models.FeatureRecord) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Strings()
	}
	return WriteFileAtomic(path, func(w io.Writer) error {
		return WriteTable(w, models.FeatureColumns, rows)
	})
}
