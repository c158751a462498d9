package store

import (
	"database/sql"
	"time"
)

// FeatureRun records one pass of the feature engine over the canonical dataset.
type FeatureRun struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	InputPath    string
	OutputPath   string
	InputRows    sql.NullInt64
	OutputRows   sql.NullInt64
	Commodities  sql.NullInt64
	Success      bool
	ErrorMessage sql.NullString
}

func (s *Store) StartFeatureRun(inputPath, outputPath string) (*FeatureRun, error) {
	run := &FeatureRun{
		StartedAt:  time.Now().UTC(),
		InputPath:  inputPath,
		OutputPath: outputPath,
	}

	result, err := s.db.Exec(`
		INSERT INTO feature_runs (started_at, input_path, output_path, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt, run.InputPath, run.OutputPath)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) CompleteFeatureRun(run *FeatureRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE feature_runs SET
			finished_at = ?,
			input_rows = ?,
			output_rows = ?,
			commodities = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.InputRows, run.OutputRows, run.Commodities,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

// LatestFeatureRun returns the most recent feature run, or nil if there are none.
func (s *Store) LatestFeatureRun() (*FeatureRun, error) {
	var r FeatureRun
	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, input_path, output_path,
		       input_rows, output_rows, commodities, success, error_message
		FROM feature_runs
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.InputPath, &r.OutputPath,
		&r.InputRows, &r.OutputRows, &r.Commodities, &r.Success, &r.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
