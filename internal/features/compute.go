// Package features derives per-commodity time-series features from the canonical
// trade dataset.
package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/shrimpwatch/internal/models"
)

const (
	shortWindow = 3
	longWindow  = 6
	yoyLag      = 12
)

// Compute returns one FeatureRecord per input record, ordered by commodity code and
// then month. Lags and rolling windows never cross a commodity boundary.
func Compute(records []models.TradeRecord) ([]models.FeatureRecord, error) {
	sorted := make([]models.TradeRecord, len(records))
	copy(sorted, records)

	months := make(map[string]time.Time, len(sorted))
	for _, r := range sorted {
		if _, ok := months[r.Month]; ok {
			continue
		}
		t, err := time.Parse(models.MonthLayout, r.Month)
		if err != nil {
			return nil, fmt.Errorf("commodity %s: invalid month %q", r.CommodityCode, r.Month)
		}
		months[r.Month] = t
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CommodityCode != sorted[j].CommodityCode {
			return sorted[i].CommodityCode < sorted[j].CommodityCode
		}
		return months[sorted[i].Month].Before(months[sorted[j].Month])
	})

	out := make([]models.FeatureRecord, 0, len(sorted))
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[end].CommodityCode == sorted[start].CommodityCode {
			end++
		}
		out = append(out, computeSeries(sorted[start:end])...)
		start = end
	}
	return out, nil
}

// computeSeries scans one commodity's month-ordered rows left to right.
func computeSeries(series []models.TradeRecord) []models.FeatureRecord {
	out := make([]models.FeatureRecord, len(series))
	short := newWindow(shortWindow)
	long := newWindow(longWindow)

	for i, r := range series {
		f := models.FeatureRecord{TradeRecord: r}

		f.TotalWeightKg = totalWeight(r)
		f.AirShare = airShare(r.AirWeightKg, f.TotalWeightKg)
		f.ContainerRatio = containerRatio(r.ContainerWeightKg, r.VesselWeightKg)
		f.UnitValuePerKg = unitValuePerKg(r.ValueUSD.InexactFloat64(), f.TotalWeightKg)

		if i >= 1 {
			prev := out[i-1]
			f.WeightMoMPct = pctChange(models.Some(prev.TotalWeightKg), models.Some(f.TotalWeightKg))
			f.UnitValueMoMPct = pctChange(prev.UnitValuePerKg, f.UnitValuePerKg)
			f.AirShareMoMDelta = delta(prev.AirShare, f.AirShare)
		}
		if i >= yoyLag {
			f.WeightYoYPct = pctChange(models.Some(out[i-yoyLag].TotalWeightKg), models.Some(f.TotalWeightKg))
		}

		short.push(f.TotalWeightKg)
		long.push(f.TotalWeightKg)
		f.WeightRoll3Avg, f.WeightRoll3Std = short.meanStdDev()
		f.WeightRoll6Avg, f.WeightRoll6Std = long.meanStdDev()
		f.WeightZScore6 = zScore(f.TotalWeightKg, f.WeightRoll6Avg, f.WeightRoll6Std)

		out[i] = f
	}
	return out
}

func totalWeight(r models.TradeRecord) float64 {
	var total float64
	if r.VesselWeightKg.Valid {
		total += r.VesselWeightKg.Decimal.InexactFloat64()
	}
	if r.AirWeightKg.Valid {
		total += r.AirWeightKg.Decimal.InexactFloat64()
	}
	return total
}

// airShare is 0 for a zero total.
func airShare(air decimal.NullDecimal, total float64) models.Value {
	if total == 0 {
		return models.Some(0)
	}
	if !air.Valid {
		return models.Missing
	}
	return models.Some(air.Decimal.InexactFloat64() / total)
}

// containerRatio is 0 when vessel weight is 0.
func containerRatio(container, vessel decimal.NullDecimal) models.Value {
	if !vessel.Valid {
		return models.Missing
	}
	v := vessel.Decimal.InexactFloat64()
	if v == 0 {
		return models.Some(0)
	}
	if !container.Valid {
		return models.Missing
	}
	return models.Some(container.Decimal.InexactFloat64() / v)
}

// unitValuePerKg is missing, not zero, when nothing was weighed.
func unitValuePerKg(value, total float64) models.Value {
	if total == 0 {
		return models.Missing
	}
	return models.Some(value / total)
}

// pctChange is the fractional change from prev to cur. Missing when either side is
// missing or prev is 0.
func pctChange(prev, cur models.Value) models.Value {
	if !prev.Valid || !cur.Valid || prev.Float64 == 0 {
		return models.Missing
	}
	return models.Some((cur.Float64 - prev.Float64) / prev.Float64)
}

func delta(prev, cur models.Value) models.Value {
	if !prev.Valid || !cur.Valid {
		return models.Missing
	}
	return models.Some(cur.Float64 - prev.Float64)
}

// zScore is 0 when the window has no spread.
func zScore(x, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (x - mean) / std
}

// window holds the most recent size values.
type window struct {
	size   int
	values []float64
}

func newWindow(size int) *window {
	return &window{size: size, values: make([]float64, 0, size)}
}

func (w *window) push(v float64) {
	if len(w.values) == w.size {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.size-1]
	}
	w.values = append(w.values, v)
}

// meanStdDev returns the mean and sample standard deviation. The deviation of a
// single value is 0.
func (w *window) meanStdDev() (mean, std float64) {
	if len(w.values) < 2 {
		return w.values[0], 0
	}
	mean, std = stat.MeanStdDev(w.values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}
