package store

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestIngestRun_StartAndComplete(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartIngestRun("census", "timeseries/intltrade/imports/hs", "0306170000", "2017-01", "2025-01")
	if err != nil {
		t.Fatalf("StartIngestRun: %v", err)
	}
	if run.ID == 0 {
		t.Error("run.ID should be set")
	}
	if run.Source != "census" {
		t.Errorf("run.Source = %q, want 'census'", run.Source)
	}

	run.HTTPStatus = sql.NullInt64{Int64: 200, Valid: true}
	run.ResponseSizeBytes = sql.NullInt64{Int64: 1024, Valid: true}
	run.RecordsParsed = sql.NullInt64{Int64: 3, Valid: true}
	run.RecordsStored = sql.NullInt64{Int64: 2, Valid: true}
	run.ParseErrors = sql.NullInt64{Int64: 1, Valid: true}
	run.Success = true

	if err := store.CompleteIngestRun(run); err != nil {
		t.Fatalf("CompleteIngestRun: %v", err)
	}

	health, err := store.GetIngestHealth(1)
	if err != nil {
		t.Fatalf("GetIngestHealth: %v", err)
	}
	if len(health) != 1 {
		t.Fatalf("len(health) = %d, want 1", len(health))
	}
	h := health[0]
	if h.CommodityCode != "0306170000" {
		t.Errorf("CommodityCode = %q, want 0306170000", h.CommodityCode)
	}
	if h.SuccessRuns != 1 {
		t.Errorf("SuccessRuns = %d, want 1", h.SuccessRuns)
	}
	if h.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", h.TotalRecords)
	}
	if h.TotalParseErrors != 1 {
		t.Errorf("TotalParseErrors = %d, want 1", h.TotalParseErrors)
	}
}

func TestIngestRun_GetRecentFailures(t *testing.T) {
	store := setupTestStore(t)

	ok, err := store.StartIngestRun("census", "timeseries/intltrade/imports/hs", "0306170000", "2017-01", "2025-01")
	if err != nil {
		t.Fatal(err)
	}
	ok.Success = true
	if err := store.CompleteIngestRun(ok); err != nil {
		t.Fatal(err)
	}

	run, err := store.StartIngestRun("census", "timeseries/intltrade/imports/hs", "030617", "2017-01", "2025-01")
	if err != nil {
		t.Fatal(err)
	}
	run.HTTPStatus = sql.NullInt64{Int64: 500, Valid: true}
	run.Success = false
	run.ErrorMessage = sql.NullString{String: "server error", Valid: true}
	if err := store.CompleteIngestRun(run); err != nil {
		t.Fatal(err)
	}

	failures, err := store.GetRecentIngestRuns(10, true)
	if err != nil {
		t.Fatalf("GetRecentIngestRuns: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("len(failures) = %d, want 1", len(failures))
	}
	if failures[0].ErrorMessage.String != "server error" {
		t.Errorf("ErrorMessage = %q, want 'server error'", failures[0].ErrorMessage.String)
	}
	if failures[0].CommodityCode.String != "030617" {
		t.Errorf("CommodityCode = %q, want 030617", failures[0].CommodityCode.String)
	}

	all, err := store.GetRecentIngestRuns(10, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	if all[0].ID != run.ID {
		t.Errorf("newest run ID = %d, want %d", all[0].ID, run.ID)
	}
}

func TestMigrationVersion(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("MigrationVersion = %d, want %d", version, len(migrations))
	}

	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestIngestHealth_Aggregation(t *testing.T) {
	store := setupTestStore(t)

	successRun, err := store.StartIngestRun("census", "timeseries/intltrade/imports/hs", "0306170000", "", "")
	if err != nil {
		t.Fatal(err)
	}
	successRun.HTTPStatus = sql.NullInt64{Int64: 200, Valid: true}
	successRun.RecordsStored = sql.NullInt64{Int64: 1, Valid: true}
	successRun.Success = true
	if err := store.CompleteIngestRun(successRun); err != nil {
		t.Fatal(err)
	}

	failedRun, err := store.StartIngestRun("census", "timeseries/intltrade/imports/hs", "0306170000", "", "")
	if err != nil {
		t.Fatal(err)
	}
	failedRun.HTTPStatus = sql.NullInt64{Int64: 500, Valid: true}
	failedRun.Success = false
	failedRun.ErrorMessage = sql.NullString{String: "server error", Valid: true}
	if err := store.CompleteIngestRun(failedRun); err != nil {
		t.Fatal(err)
	}

	health, err := store.GetIngestHealth(1)
	if err != nil {
		t.Fatalf("GetIngestHealth: %v", err)
	}

	var found bool
	for _, h := range health {
		if h.CommodityCode == "0306170000" {
			found = true
			if h.TotalRuns != 2 {
				t.Errorf("TotalRuns = %d, want 2", h.TotalRuns)
			}
			if h.SuccessRuns != 1 {
				t.Errorf("SuccessRuns = %d, want 1", h.SuccessRuns)
			}
			if h.FailedRuns != 1 {
				t.Errorf("FailedRuns = %d, want 1", h.FailedRuns)
			}
		}
	}
	if !found {
		t.Error("Expected health summary for 0306170000")
	}
}

func TestRawPayload_RoundTripAndDedupe(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartIngestRun("census", "timeseries/intltrade/imports/hs", "0306170000", "", "")
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte(`[["GEN_VAL_MO","MONTH"],["1000","2025-01"]]`)
	id, err := store.StoreRawPayload(run.ID, "census", "timeseries/intltrade/imports/hs", "0306170000", payload)
	if err != nil {
		t.Fatalf("StoreRawPayload: %v", err)
	}
	if id == 0 {
		t.Fatal("first StoreRawPayload returned 0")
	}

	got, err := store.GetRawPayload(id)
	if err != nil {
		t.Fatalf("GetRawPayload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("GetRawPayload = %q, want %q", got, payload)
	}

	dup, err := store.StoreRawPayload(run.ID, "census", "timeseries/intltrade/imports/hs", "0306170000", payload)
	if err != nil {
		t.Fatalf("duplicate StoreRawPayload: %v", err)
	}
	if dup != 0 {
		t.Errorf("duplicate StoreRawPayload = %d, want 0", dup)
	}

	p, err := store.GetRawPayloadByHash(PayloadHash(payload))
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.ID != id {
		t.Fatalf("GetRawPayloadByHash = %+v, want id %d", p, id)
	}
	if p.IngestRunID.Int64 != run.ID {
		t.Errorf("IngestRunID = %d, want %d", p.IngestRunID.Int64, run.ID)
	}

	missing, err := store.GetRawPayloadByHash("nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("GetRawPayloadByHash(nope) = %+v, want nil", missing)
	}

	stats, err := store.GetRawPayloadStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCount != 1 || stats.CountByCommodity["0306170000"] != 1 {
		t.Errorf("stats = %+v, want one payload for 0306170000", stats)
	}
}

func TestCleanupOldRawPayloads(t *testing.T) {
	store := setupTestStore(t)

	oldID, err := store.StoreRawPayload(0, "census", "timeseries/intltrade/imports/hs", "0306170000", []byte(`[["old"]]`))
	if err != nil {
		t.Fatal(err)
	}
	freshID, err := store.StoreRawPayload(0, "census", "timeseries/intltrade/imports/hs", "0306170000", []byte(`[["fresh"]]`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.Exec(`UPDATE raw_payloads SET fetched_at = ? WHERE id = ?`,
		time.Now().UTC().AddDate(0, 0, -40), oldID); err != nil {
		t.Fatal(err)
	}

	deleted, err := store.CleanupOldRawPayloads(30)
	if err != nil {
		t.Fatalf("CleanupOldRawPayloads: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := store.GetRawPayload(oldID); err != sql.ErrNoRows {
		t.Errorf("GetRawPayload(old) err = %v, want sql.ErrNoRows", err)
	}
	if _, err := store.GetRawPayload(freshID); err != nil {
		t.Errorf("GetRawPayload(fresh): %v", err)
	}
}

func TestFeatureRun(t *testing.T) {
	store := setupTestStore(t)

	latest, err := store.LatestFeatureRun()
	if err != nil {
		t.Fatal(err)
	}
	if latest != nil {
		t.Fatalf("LatestFeatureRun on empty db = %+v, want nil", latest)
	}

	run, err := store.StartFeatureRun("in.csv", "out.csv")
	if err != nil {
		t.Fatalf("StartFeatureRun: %v", err)
	}
	run.InputRows = sql.NullInt64{Int64: 24, Valid: true}
	run.OutputRows = sql.NullInt64{Int64: 24, Valid: true}
	run.Commodities = sql.NullInt64{Int64: 2, Valid: true}
	run.Success = true
	if err := store.CompleteFeatureRun(run); err != nil {
		t.Fatalf("CompleteFeatureRun: %v", err)
	}

	latest, err = store.LatestFeatureRun()
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != run.ID {
		t.Fatalf("LatestFeatureRun = %+v, want id %d", latest, run.ID)
	}
	if !latest.Success || latest.OutputRows.Int64 != 24 {
		t.Errorf("LatestFeatureRun = %+v, want success with 24 rows", latest)
	}
}

func TestOpen_CreatesDirAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shrimpwatch.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != len(migrations) {
		t.Errorf("MigrationVersion = %d, want %d", version, len(migrations))
	}
}
