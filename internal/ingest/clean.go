package ingest

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lox/shrimpwatch/internal/census"
	"github.com/lox/shrimpwatch/internal/dataset"
	"github.com/lox/shrimpwatch/internal/models"
)

// CleanStats accounts for every input row:
// Input = len(output) + DroppedMissingValue + DroppedBadMonth + DroppedDuplicate.
type CleanStats struct {
	Input               int
	DroppedMissingValue int
	DroppedBadMonth     int
	DroppedDuplicate    int
}

// Clean turns a fetched table into canonical records: numeric fields parsed (unparsable values
// become missing), rows without a value or a YYYY-MM month dropped, then sorted by month with
// one row per month, the last one encountered winning.
func Clean(t census.Table) ([]models.TradeRecord, CleanStats) {
	stats := CleanStats{Input: t.Len()}

	cell := func(i int, col string) string {
		v, _ := t.Cell(i, col)
		return strings.TrimSpace(v)
	}

	records := make([]models.TradeRecord, 0, t.Len())
	for i := range t.Rows {
		value, err := decimal.NewFromString(cell(i, models.ColValue))
		if err != nil {
			stats.DroppedMissingValue++
			continue
		}
		month := cell(i, models.ColMonth)
		if _, err := time.Parse(models.MonthLayout, month); err != nil {
			stats.DroppedBadMonth++
			continue
		}
		records = append(records, models.TradeRecord{
			CommodityCode:        cell(i, models.ColCommodity),
			CommodityDescription: cell(i, models.ColDescription),
			ValueUSD:             value,
			VesselWeightKg:       dataset.ParseNullDecimal(cell(i, models.ColVesselWeight)),
			ContainerWeightKg:    dataset.ParseNullDecimal(cell(i, models.ColContainerWeight)),
			AirWeightKg:          dataset.ParseNullDecimal(cell(i, models.ColAirWeight)),
			Month:                month,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Month < records[j].Month
	})

	out := keepLast(records, func(r models.TradeRecord) models.Key {
		return models.Key{Month: r.Month}
	})
	stats.DroppedDuplicate = len(records) - len(out)
	return out, stats
}

// keepLast removes records whose key appears again later, preserving the position of the
// surviving (last) occurrence.
func keepLast(records []models.TradeRecord, key func(models.TradeRecord) models.Key) []models.TradeRecord {
	seen := make(map[models.Key]bool, len(records))
	keep := make([]bool, len(records))
	n := 0
	for i := len(records) - 1; i >= 0; i-- {
		k := key(records[i])
		if seen[k] {
			continue
		}
		seen[k] = true
		keep[i] = true
		n++
	}

	out := make([]models.TradeRecord, 0, n)
	for i, r := range records {
		if keep[i] {
			out = append(out, r)
		}
	}
	return out
}
