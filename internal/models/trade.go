package models

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Census field names. These double as the canonical CSV header.
const (
	ColCommodity       = "I_COMMODITY"
	ColDescription     = "I_COMMODITY_SDESC"
	ColValue           = "GEN_VAL_MO"
	ColVesselWeight    = "VES_WGT_MO"
	ColContainerWeight = "CNT_WGT_MO"
	ColAirWeight       = "AIR_WGT_MO"
	ColMonth           = "MONTH"
	ColYear            = "YEAR"
)

// MonthLayout is the period format used everywhere a month is stored.
const MonthLayout = "2006-01"

// RequestFields are the Census fields pulled for every query.
var RequestFields = []string{
	ColCommodity,
	ColDescription,
	ColValue,
	ColVesselWeight,
	ColContainerWeight,
	ColAirWeight,
}

// TradeColumns is the column order of the canonical dataset.
var TradeColumns = []string{
	ColCommodity,
	ColDescription,
	ColValue,
	ColVesselWeight,
	ColContainerWeight,
	ColAirWeight,
	ColMonth,
}

// TradeRecord is one month of imports for one commodity code.
type TradeRecord struct {
	CommodityCode        string
	CommodityDescription string
	ValueUSD             decimal.Decimal
	VesselWeightKg       decimal.NullDecimal
	ContainerWeightKg    decimal.NullDecimal
	AirWeightKg          decimal.NullDecimal
	Month                string // YYYY-MM
}

// Key identifies a record in the canonical dataset.
type Key struct {
	CommodityCode string
	Month         string
}

func (r TradeRecord) Key() Key {
	return Key{CommodityCode: r.CommodityCode, Month: r.Month}
}

// Strings renders the record in TradeColumns order. Absent weights become empty cells.
func (r TradeRecord) Strings() []string {
	return []string{
		r.CommodityCode,
		r.CommodityDescription,
		r.ValueUSD.String(),
		nullDecimalString(r.VesselWeightKg),
		nullDecimalString(r.ContainerWeightKg),
		nullDecimalString(r.AirWeightKg),
		r.Month,
	}
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// Value is a float that may be missing. Missing values are written as empty cells.
type Value struct {
	Float64 float64
	Valid   bool
}

func Some(f float64) Value { return Value{Float64: f, Valid: true} }

// Missing is the absent value.
var Missing = Value{}

func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}

// FeatureColumns is the fixed column order of the feature dataset.
var FeatureColumns = append(append([]string{}, TradeColumns...),
	"total_weight_mo",
	"air_share",
	"container_ratio",
	"unit_value_per_kg",
	"weight_mom_pct",
	"weight_yoy_pct",
	"unit_value_mom_pct",
	"air_share_mom_delta",
	"weight_roll3_avg",
	"weight_roll6_avg",
	"weight_roll3_std",
	"weight_roll6_std",
	"weight_zscore_6",
)

// FeatureRecord augments a TradeRecord with derived time-series features.
type FeatureRecord struct {
	TradeRecord

	TotalWeightKg    float64
	AirShare         Value
	ContainerRatio   Value
	UnitValuePerKg   Value
	WeightMoMPct     Value
	WeightYoYPct     Value
	UnitValueMoMPct  Value
	AirShareMoMDelta Value
	WeightRoll3Avg   float64
	WeightRoll6Avg   float64
	WeightRoll3Std   float64
	WeightRoll6Std   float64
	WeightZScore6    float64
}

// Strings renders the record in FeatureColumns order.
func (f FeatureRecord) Strings() []string {
	return append(f.TradeRecord.Strings(),
		formatFloat(f.TotalWeightKg),
		f.AirShare.String(),
		f.ContainerRatio.String(),
		f.UnitValuePerKg.String(),
		f.WeightMoMPct.String(),
		f.WeightYoYPct.String(),
		f.UnitValueMoMPct.String(),
		f.AirShareMoMDelta.String(),
		formatFloat(f.WeightRoll3Avg),
		formatFloat(f.WeightRoll6Avg),
		formatFloat(f.WeightRoll3Std),
		formatFloat(f.WeightRoll6Std),
		formatFloat(f.WeightZScore6),
	)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
