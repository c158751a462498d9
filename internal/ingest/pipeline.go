package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/lox/shrimpwatch/internal/archive"
	"github.com/lox/shrimpwatch/internal/census"
	"github.com/lox/shrimpwatch/internal/dataset"
	"github.com/lox/shrimpwatch/internal/logger"
	"github.com/lox/shrimpwatch/internal/metrics"
	"github.com/lox/shrimpwatch/internal/models"
	"github.com/lox/shrimpwatch/internal/store"
)

const (
	DefaultMonthsBack = 96
	auditSource       = "census"
)

type Config struct {
	APIKey        string
	MonthsBack    int      // 0 pulls the current month only; negative selects DefaultMonthsBack
	Candidates    []string // defaults to census.DefaultCandidates
	Fields        []string // defaults to models.RequestFields
	RawDir        string
	CanonicalPath string
}

// Uploader mirrors an archived snapshot somewhere else. *archive.FTP satisfies it.
type Uploader interface {
	Upload(ctx context.Context, localPath string) error
}

// Summary describes a completed ingestion run.
type Summary struct {
	PulledRange   string `json:"pulled_range"`
	Candidate     string `json:"candidate"`
	RowsNewWindow int    `json:"rows_new_window"`
	RowsTotal     int    `json:"rows_total"`
	RawSnapshot   string `json:"raw_snapshot"`
	OutputCSV     string `json:"output_csv"`
	MinTime       string `json:"min_time,omitempty"` // "" when the dataset is empty
	MaxTime       string `json:"max_time,omitempty"`
}

// Pipeline pulls the recent window from the Census API and folds it into the
// canonical dataset.
type Pipeline struct {
	cfg     Config
	fetcher census.Fetcher
	archive *archive.Local
	mirror  Uploader
	store   *store.Store
	now     func() time.Time
	write   func(path string, records []models.TradeRecord) error
}

func NewPipeline(cfg Config, fetcher census.Fetcher) *Pipeline {
	if cfg.MonthsBack < 0 {
		cfg.MonthsBack = DefaultMonthsBack
	}
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = census.DefaultCandidates
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = models.RequestFields
	}
	return &Pipeline{
		cfg:     cfg,
		fetcher: fetcher,
		archive: archive.NewLocal(cfg.RawDir),
		now:     time.Now,
		write:   dataset.WriteTradeRecords,
	}
}

// SetStore records every fetch attempt and its raw payload in the audit ledger.
func (p *Pipeline) SetStore(s *store.Store) {
	p.store = s
}

// SetMirror uploads each new snapshot once the canonical dataset has been written. Upload
// failures are logged, never fatal.
func (p *Pipeline) SetMirror(u Uploader) {
	p.mirror = u
}

// SetClock overrides the clock used for the fetch window and snapshot names.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Window returns the inclusive month range pulled on every run: the current UTC month and the
// MonthsBack months before it.
func (p *Pipeline) Window() (from, to string) {
	end := census.MonthOf(p.now().UTC())
	return end.AddMonths(-p.cfg.MonthsBack).String(), end.String()
}

// Run executes fetch, clean, merge, snapshot and canonical write. On error no file is left
// behind: a snapshot written ahead of a failed canonical write is removed again.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if p.cfg.APIKey == "" {
		return nil, census.ErrMissingAPIKey
	}

	from, to := p.Window()
	log := logger.L().With().Str("from", from).Str("to", to).Logger()
	log.Info().Strs("candidates", p.cfg.Candidates).Msg("ingest: pulling window")

	attempts := &attemptRecorder{store: p.store}
	res, candidate, err := census.FetchWithFallback(ctx, p.fetcher, p.cfg.Candidates, from, to, p.cfg.Fields, attempts.record(from, to))
	if err != nil {
		return nil, fmt.Errorf("fetch %s..%s: %w", from, to, err)
	}
	fetchedAt := p.now()

	summary, err := p.apply(ctx, res, fetchedAt, attempts.winner)
	attempts.finish(err)
	if err != nil {
		return nil, err
	}

	summary.PulledRange = from + " to " + to
	summary.Candidate = candidate

	metrics.LastSuccess.WithLabelValues("ingest").Set(float64(fetchedAt.Unix()))
	log.Info().
		Str("candidate", candidate).
		Int("rows_new_window", summary.RowsNewWindow).
		Int("rows_total", summary.RowsTotal).
		Str("path", summary.OutputCSV).
		Msg("ingest: canonical dataset updated")
	return summary, nil
}

func (p *Pipeline) apply(ctx context.Context, res *census.Result, fetchedAt time.Time, run *store.IngestRun) (*Summary, error) {
	fresh, stats := Clean(res.Table)
	metrics.RecordsDropped.WithLabelValues("missing_value").Add(float64(stats.DroppedMissingValue))
	metrics.RecordsDropped.WithLabelValues("bad_month").Add(float64(stats.DroppedBadMonth))
	metrics.RecordsDropped.WithLabelValues("duplicate_month").Add(float64(stats.DroppedDuplicate))

	flagged := 0
	for _, r := range fresh {
		if flags := ValidateRecord(r); len(flags) > 0 {
			flagged++
			logger.L().Warn().Str("commodity", r.CommodityCode).Str("month", r.Month).
				Str("flags", QualityFlagsToJSON(flags)).Msg("ingest: suspicious record")
		}
	}
	if run != nil {
		run.RecordsParsed = sql.NullInt64{Int64: int64(stats.Input), Valid: true}
		run.ParseErrors = sql.NullInt64{Int64: int64(stats.DroppedMissingValue + stats.DroppedBadMonth + flagged), Valid: true}
	}

	existing, err := dataset.ReadTradeRecords(p.cfg.CanonicalPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load canonical dataset: %w", err)
	}

	merged := Merge(existing, fresh)
	if merged.ExistingDuplicates > 0 {
		logger.L().Error().Int("duplicates", merged.ExistingDuplicates).Str("path", p.cfg.CanonicalPath).
			Msg("ingest: canonical dataset contained duplicate keys, keeping the last of each")
	}

	snapshot, err := p.archive.Write(fetchedAt, res.Table)
	if err != nil {
		return nil, fmt.Errorf("archive snapshot: %w", err)
	}

	if err := p.write(p.cfg.CanonicalPath, merged.Records); err != nil {
		if rerr := os.Remove(snapshot); rerr != nil {
			logger.L().Warn().Err(rerr).Str("path", snapshot).Msg("ingest: failed to remove snapshot")
		}
		return nil, fmt.Errorf("write canonical dataset: %w", err)
	}

	if p.mirror != nil {
		if err := p.mirror.Upload(ctx, snapshot); err != nil {
			logger.L().Warn().Err(err).Str("path", snapshot).Msg("ingest: snapshot mirror failed")
		}
	}

	for _, r := range fresh {
		metrics.RecordsIngested.WithLabelValues(r.CommodityCode).Inc()
	}
	metrics.CanonicalRows.Set(float64(len(merged.Records)))
	if run != nil {
		run.RecordsStored = sql.NullInt64{Int64: int64(len(fresh)), Valid: true}
	}

	return &Summary{
		RowsNewWindow: len(fresh),
		RowsTotal:     len(merged.Records),
		RawSnapshot:   snapshot,
		OutputCSV:     p.cfg.CanonicalPath,
		MinTime:       merged.MinMonth(),
		MaxTime:       merged.MaxMonth(),
	}, nil
}

// attemptRecorder writes one ingest run per fallback attempt. The attempt that produced
// rows stays open until the merge has been persisted.
type attemptRecorder struct {
	store  *store.Store
	winner *store.IngestRun
}

func (a *attemptRecorder) record(from, to string) census.AttemptFunc {
	if a.store == nil {
		return nil
	}
	return func(candidate string, res *census.Result, err error) {
		run, serr := a.store.StartIngestRun(auditSource, census.Endpoint, candidate, from, to)
		if serr != nil {
			logger.L().Warn().Err(serr).Msg("ingest: failed to record ingest run")
			return
		}

		if res != nil {
			run.HTTPStatus = sql.NullInt64{Int64: int64(res.HTTPStatus), Valid: res.HTTPStatus > 0}
			run.ResponseSizeBytes = sql.NullInt64{Int64: int64(len(res.Body)), Valid: true}
			if len(res.Body) > 0 {
				if _, serr := a.store.StoreRawPayload(run.ID, auditSource, census.Endpoint, candidate, res.Body); serr != nil {
					logger.L().Warn().Err(serr).Str("candidate", candidate).Msg("ingest: failed to store raw payload")
				}
			}
		}

		switch {
		case err != nil:
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		case res.Table.Len() == 0:
			run.ErrorMessage = sql.NullString{String: census.ErrNoData.Error(), Valid: true}
		default:
			a.winner = run
			return
		}
		if serr := a.store.CompleteIngestRun(run); serr != nil {
			logger.L().Warn().Err(serr).Msg("ingest: failed to complete ingest run")
		}
	}
}

func (a *attemptRecorder) finish(err error) {
	if a.winner == nil {
		return
	}
	a.winner.Success = err == nil
	if err != nil {
		a.winner.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}
	if serr := a.store.CompleteIngestRun(a.winner); serr != nil {
		logger.L().Warn().Err(serr).Msg("ingest: failed to complete ingest run")
	}
}
