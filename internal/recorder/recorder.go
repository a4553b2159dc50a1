// Package recorder persists simulation runs to a local SQLite database so a
// run's events and score history can be inspected after the process exits.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/signalsfoundry/debris-avoidance-sim/core"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/logging"
	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// ErrNoRun is returned when a run id is unknown or Record is called before
// BeginRun.
var ErrNoRun = errors.New("recorder: no such run")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id      TEXT PRIMARY KEY,
    scenario    TEXT NOT NULL DEFAULT '',
    epoch       TEXT NOT NULL,
    tick_ns     INTEGER NOT NULL,
    satellites  INTEGER NOT NULL,
    debris      INTEGER NOT NULL,
    started_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP,
    last_tick   INTEGER NOT NULL DEFAULT 0,
    final_score REAL NOT NULL DEFAULT 0,
    mission_over BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ticks (
    run_id     TEXT NOT NULL,
    tick       INTEGER NOT NULL,
    sim_time   TEXT NOT NULL,
    score      REAL NOT NULL,
    satellites INTEGER NOT NULL,
    debris     INTEGER NOT NULL,
    PRIMARY KEY (run_id, tick),
    FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS events (
    run_id       TEXT NOT NULL,
    seq          INTEGER NOT NULL,
    tick         INTEGER NOT NULL,
    kind         TEXT NOT NULL,
    participants TEXT NOT NULL,
    severity     TEXT NOT NULL,
    distance_km  REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, seq),
    FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS score_log (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id    TEXT NOT NULL,
    tick      INTEGER NOT NULL,
    delta     REAL NOT NULL,
    reason    TEXT NOT NULL,
    event_seq INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_events_kind ON events(run_id, kind);
`

// Run summarizes one recorded simulation run.
type Run struct {
	ID          string
	Scenario    string
	Epoch       time.Time
	Tick        time.Duration
	Satellites  int
	Debris      int
	LastTick    uint64
	FinalScore  float64
	MissionOver bool
	Finished    bool
}

// Recorder writes snapshots of a single active run. It is safe for
// concurrent use.
type Recorder struct {
	db  *sql.DB
	log logging.Logger

	mu    sync.Mutex
	runID string
	err   error
}

// Open opens (or creates) the database at path and ensures the schema
// exists. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, log logging.Logger) (*Recorder, error) {
	if log == nil {
		log = logging.Noop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive across calls and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: create schema: %w", err)
	}
	return &Recorder{db: db, log: log}, nil
}

// Close releases the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// BeginRun registers a new run built from cfg and makes it the target of
// subsequent Record calls.
func (r *Recorder) BeginRun(ctx context.Context, runID, scenario string, cfg core.Config) error {
	const q = `
		INSERT INTO runs (run_id, scenario, epoch, tick_ns, satellites, debris)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, runID, scenario,
		cfg.Epoch.UTC().Format(time.RFC3339Nano), int64(cfg.Tick),
		len(cfg.Satellites), len(cfg.Debris))
	if err != nil {
		return fmt.Errorf("recorder: begin run %q: %w", runID, err)
	}

	r.mu.Lock()
	r.runID = runID
	r.err = nil
	r.mu.Unlock()
	r.log.Info(ctx, "recording run", logging.String("scenario", scenario))
	return nil
}

// RunID returns the run currently being recorded.
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Record stores the tick summary, events and score entries of snap in one
// transaction.
func (r *Recorder) Record(ctx context.Context, snap core.Snapshot) error {
	runID := r.RunID()
	if runID == "" {
		return ErrNoRun
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recorder: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ticks (run_id, tick, sim_time, score, satellites, debris)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, int64(snap.Tick), snap.SimTime.UTC().Format(time.RFC3339Nano), snap.Score,
		snap.Stats.ActiveSatellites, snap.Stats.ActiveDebris); err != nil {
		return fmt.Errorf("recorder: insert tick %d: %w", snap.Tick, err)
	}

	if len(snap.Events) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO events (run_id, seq, tick, kind, participants, severity, distance_km)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("recorder: prepare event insert: %w", err)
		}
		defer stmt.Close()
		for _, ev := range snap.Events {
			participants, err := json.Marshal(ev.Participants)
			if err != nil {
				return fmt.Errorf("recorder: encode participants: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, runID, int64(ev.Seq), int64(ev.Tick), ev.Kind.String(),
				string(participants), ev.Severity.String(), ev.Distance); err != nil {
				return fmt.Errorf("recorder: insert event %d: %w", ev.Seq, err)
			}
		}
	}

	for _, entry := range snap.ScoreEntries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO score_log (run_id, tick, delta, reason, event_seq)
			VALUES (?, ?, ?, ?, ?)`,
			runID, int64(entry.Tick), entry.Delta, entry.Reason, int64(entry.EventSeq)); err != nil {
			return fmt.Errorf("recorder: insert score entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE runs SET last_tick = ?, final_score = ?, mission_over = ? WHERE run_id = ?`,
		int64(snap.Tick), snap.Score, snap.MissionOver, runID); err != nil {
		return fmt.Errorf("recorder: update run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recorder: commit tick %d: %w", snap.Tick, err)
	}
	return nil
}

// Listener adapts Record to an engine tick listener. The first failure is
// logged and kept for Err; later snapshots are dropped.
func (r *Recorder) Listener(ctx context.Context) func(core.Snapshot) {
	return func(snap core.Snapshot) {
		if r.Err() != nil {
			return
		}
		if err := r.Record(ctx, snap); err != nil {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
			r.log.Error(ctx, "recording stopped", logging.Uint64("tick", snap.Tick), logging.Err(err))
		}
	}
}

// Err returns the error that stopped a Listener, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// FinishRun marks the active run complete.
func (r *Recorder) FinishRun(ctx context.Context) error {
	runID := r.RunID()
	if runID == "" {
		return ErrNoRun
	}
	if _, err := r.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = CURRENT_TIMESTAMP WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("recorder: finish run %q: %w", runID, err)
	}
	return nil
}

// Runs lists recorded runs, most recently started first.
func (r *Recorder) Runs(ctx context.Context) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, scenario, epoch, tick_ns, satellites, debris,
		       last_tick, final_score, mission_over, finished_at IS NOT NULL
		FROM runs ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("recorder: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run    Run
			epoch  string
			tickNS int64
			last   int64
		)
		if err := rows.Scan(&run.ID, &run.Scenario, &epoch, &tickNS, &run.Satellites, &run.Debris,
			&last, &run.FinalScore, &run.MissionOver, &run.Finished); err != nil {
			return nil, fmt.Errorf("recorder: scan run: %w", err)
		}
		run.Epoch, err = time.Parse(time.RFC3339Nano, epoch)
		if err != nil {
			return nil, fmt.Errorf("recorder: run %q epoch: %w", run.ID, err)
		}
		run.Tick = time.Duration(tickNS)
		run.LastTick = uint64(last)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Events returns the recorded events of runID in sequence order. A non-empty
// kinds list filters by event kind.
func (r *Recorder) Events(ctx context.Context, runID string, kinds ...model.EventKind) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, tick, kind, participants, severity, distance_km
		FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("recorder: query events: %w", err)
	}
	defer rows.Close()

	want := make(map[model.EventKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	var events []model.Event
	for rows.Next() {
		var (
			seq, tick          int64
			kind, participants string
			severity           string
			ev                 model.Event
		)
		if err := rows.Scan(&seq, &tick, &kind, &participants, &severity, &ev.Distance); err != nil {
			return nil, fmt.Errorf("recorder: scan event: %w", err)
		}
		k, ok := model.ParseEventKind(kind)
		if !ok {
			return nil, fmt.Errorf("recorder: unknown event kind %q", kind)
		}
		if len(want) > 0 && !want[k] {
			continue
		}
		if err := json.Unmarshal([]byte(participants), &ev.Participants); err != nil {
			return nil, fmt.Errorf("recorder: decode participants of event %d: %w", seq, err)
		}
		ev.Seq = uint64(seq)
		ev.Tick = uint64(tick)
		ev.Kind = k
		ev.Severity = parseSeverity(severity)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ScoreLog returns the recorded score entries of runID in application order.
func (r *Recorder) ScoreLog(ctx context.Context, runID string) ([]core.ScoreEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tick, delta, reason, event_seq FROM score_log
		WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("recorder: query score log: %w", err)
	}
	defer rows.Close()

	var entries []core.ScoreEntry
	for rows.Next() {
		var (
			tick, seq int64
			entry     core.ScoreEntry
		)
		if err := rows.Scan(&tick, &entry.Delta, &entry.Reason, &seq); err != nil {
			return nil, fmt.Errorf("recorder: scan score entry: %w", err)
		}
		entry.Tick = uint64(tick)
		entry.EventSeq = uint64(seq)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Run returns the summary of runID.
func (r *Recorder) Run(ctx context.Context, runID string) (Run, error) {
	runs, err := r.Runs(ctx)
	if err != nil {
		return Run{}, err
	}
	for _, run := range runs {
		if run.ID == runID {
			return run, nil
		}
	}
	return Run{}, fmt.Errorf("%w: %q", ErrNoRun, runID)
}

func parseSeverity(s string) model.Severity {
	for _, sev := range []model.Severity{model.SeverityNone, model.SeverityCloseApproach, model.SeverityCollision} {
		if sev.String() == s {
			return sev
		}
	}
	return model.SeverityNone
}
