package store

import (
	"context"
	"fmt"
	"time"
)

// RunPhase is the terminal state of a recorded run.
type RunPhase string

const (
	// PhaseComplete means the batch committed.
	PhaseComplete RunPhase = "Complete"
	// PhaseFailed means the run aborted and nothing was committed.
	PhaseFailed RunPhase = "Failed"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunRecord is one row of the run ledger.
type RunRecord struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Phase       RunPhase  `json:"phase"`
	Fingerprint string    `json:"fingerprint"`
	SelectedNew int64     `json:"selected_new"`
	Rejected    int64     `json:"rejected"`
	Inserted    int64     `json:"inserted"`
	Removed     int64     `json:"removed"`
	Consumed    int64     `json:"consumed"`
	MasterCount int64     `json:"master_count"`
	Message     string    `json:"message,omitempty"`
}

// RecordRun appends a run to the ledger. Completed runs are recorded inside
// their unit of work; failed runs are recorded afterwards on the Store.
func (c conn) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := c.exec(ctx, `
		INSERT INTO `+TableRuns+` (run_id, started_at, finished_at, phase, fingerprint,
			selected_new, rejected, inserted, removed, consumed, master_count, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		string(run.Phase),
		run.Fingerprint,
		run.SelectedNew,
		run.Rejected,
		run.Inserted,
		run.Removed,
		run.Consumed,
		run.MasterCount,
		run.Message,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (c conn) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := c.query(ctx, `
		SELECT run_id, started_at, finished_at, phase, fingerprint, selected_new,
			rejected, inserted, removed, consumed, master_count, message
		FROM `+TableRuns+`
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastRun returns the most recent run, or false if the ledger is empty.
func (c conn) LastRun(ctx context.Context) (RunRecord, bool, error) {
	runs, err := c.RecentRuns(ctx, 1)
	if err != nil {
		return RunRecord{}, false, err
	}
	if len(runs) == 0 {
		return RunRecord{}, false, nil
	}
	return runs[0], true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		run               RunRecord
		started, finished string
		phase             string
	)
	err := row.Scan(&run.RunID, &started, &finished, &phase, &run.Fingerprint,
		&run.SelectedNew, &run.Rejected, &run.Inserted, &run.Removed,
		&run.Consumed, &run.MasterCount, &run.Message)
	if err != nil {
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}

	run.Phase = RunPhase(phase)
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return RunRecord{}, fmt.Errorf("run %s: parse started_at: %w", run.RunID, err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return RunRecord{}, fmt.Errorf("run %s: parse finished_at: %w", run.RunID, err)
	}
	return run, nil
}
