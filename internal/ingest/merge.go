package ingest

import (
	"sort"

	"github.com/lox/shrimpwatch/internal/models"
)

// MergeResult is the merged canonical table.
type MergeResult struct {
	Records []models.TradeRecord

	// ExistingDuplicates counts keys that appeared more than once in the existing table.
	// The canonical table should never contain any; a non-zero value indicates corruption.
	ExistingDuplicates int
}

// MinMonth returns the earliest month present, or "" for an empty table.
func (m MergeResult) MinMonth() string {
	if len(m.Records) == 0 {
		return ""
	}
	return m.Records[0].Month
}

// MaxMonth returns the latest month present, or "" for an empty table.
func (m MergeResult) MaxMonth() string {
	if len(m.Records) == 0 {
		return ""
	}
	return m.Records[len(m.Records)-1].Month
}

// Merge appends fresh after existing, orders by month and keeps the last occurrence of every
// (commodity, month) key, so a fresh pull supersedes earlier observations of the same period.
func Merge(existing, fresh []models.TradeRecord) MergeResult {
	all := make([]models.TradeRecord, 0, len(existing)+len(fresh))
	all = append(all, existing...)
	all = append(all, fresh...)

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Month < all[j].Month
	})

	return MergeResult{
		Records:            keepLast(all, models.TradeRecord.Key),
		ExistingDuplicates: countDuplicateKeys(existing),
	}
}

func countDuplicateKeys(records []models.TradeRecord) int {
	seen := make(map[models.Key]bool, len(records))
	dups := 0
	for _, r := range records {
		if seen[r.Key()] {
			dups++
			continue
		}
		seen[r.Key()] = true
	}
	return dups
}
