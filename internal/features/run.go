package features

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/lox/shrimpwatch/internal/dataset"
	"github.com/lox/shrimpwatch/internal/logger"
	"github.com/lox/shrimpwatch/internal/metrics"
	"github.com/lox/shrimpwatch/internal/store"
)

// ErrMissingInput is returned when the canonical dataset has not been created yet.
var ErrMissingInput = fmt.Errorf("canonical dataset not found: %w", fs.ErrNotExist)

type Config struct {
	InputPath  string
	OutputPath string
	Store      *store.Store // optional audit ledger
}

type Summary struct {
	InputRows   int    `json:"input_rows"`
	OutputRows  int    `json:"output_rows"`
	Commodities int    `json:"commodities"`
	OutputCSV   string `json:"output_csv"`
}

// Run recomputes the feature dataset from the canonical dataset, replacing the
// output file in full.
func Run(ctx context.Context, cfg Config) (summary *Summary, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var run *store.FeatureRun
	if cfg.Store != nil {
		run, err = cfg.Store.StartFeatureRun(cfg.InputPath, cfg.OutputPath)
		if err != nil {
			logger.L().Warn().Err(err).Msg("features: failed to record run start")
		}
		defer func() {
			if run == nil {
				return
			}
			run.Success = err == nil
			if err != nil {
				run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
			}
			if summary != nil {
				run.InputRows = sql.NullInt64{Int64: int64(summary.InputRows), Valid: true}
				run.OutputRows = sql.NullInt64{Int64: int64(summary.OutputRows), Valid: true}
				run.Commodities = sql.NullInt64{Int64: int64(summary.Commodities), Valid: true}
			}
			if cerr := cfg.Store.CompleteFeatureRun(run); cerr != nil {
				logger.L().Warn().Err(cerr).Msg("features: failed to record run completion")
			}
		}()
	}

	records, err := dataset.ReadTradeRecords(cfg.InputPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingInput, cfg.InputPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read canonical dataset: %w", err)
	}

	out, err := Compute(records)
	if err != nil {
		return nil, fmt.Errorf("compute features: %w", err)
	}

	if err := dataset.WriteFeatureRecords(cfg.OutputPath, out); err != nil {
		return nil, fmt.Errorf("write feature dataset: %w", err)
	}

	commodities := make(map[string]struct{})
	for _, r := range records {
		commodities[r.CommodityCode] = struct{}{}
	}

	metrics.FeatureRows.Set(float64(len(out)))
	metrics.LastSuccess.WithLabelValues("features").Set(float64(time.Now().Unix()))

	logger.L().Info().
		Int("rows", len(out)).
		Int("commodities", len(commodities)).
		Str("path", cfg.OutputPath).
		Msg("features: wrote feature dataset")

	return &Summary{
		InputRows:   len(records),
		OutputRows:  len(out),
		Commodities: len(commodities),
		OutputCSV:   cfg.OutputPath,
	}, nil
}
