package ingest

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/lox/shrimpwatch/internal/census"
	"github.com/lox/shrimpwatch/internal/models"
)

const (
	FlagValueNegative          = "value_negative"
	FlagWeightNegative         = "weight_negative"
	FlagContainerExceedsVessel = "container_exceeds_vessel"
	FlagMonthInvalid           = "month_invalid"
	FlagCommodityMissing       = "commodity_missing"
)

// ValidateRecord reports quality flags for a cleaned record. Flags are informational: flagged
// records are still stored.
func ValidateRecord(r models.TradeRecord) []string {
	var flags []string

	if r.ValueUSD.IsNegative() {
		flags = append(flags, FlagValueNegative)
	}

	for _, w := range []decimal.NullDecimal{r.VesselWeightKg, r.ContainerWeightKg, r.AirWeightKg} {
		if w.Valid && w.Decimal.IsNegative() {
			flags = append(flags, FlagWeightNegative)
			break
		}
	}

	if r.ContainerWeightKg.Valid && r.VesselWeightKg.Valid &&
		r.ContainerWeightKg.Decimal.GreaterThan(r.VesselWeightKg.Decimal) {
		flags = append(flags, FlagContainerExceedsVessel)
	}

	if _, err := census.ParseYearMonth(r.Month); err != nil || len(r.Month) != len(models.MonthLayout) {
		flags = append(flags, FlagMonthInvalid)
	}

	if r.CommodityCode == "" {
		flags = append(flags, FlagCommodityMissing)
	}

	return flags
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
