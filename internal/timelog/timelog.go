// Package timelog records task start/end times and checkpoints in
// PostgreSQL, so a long-running agent keeps an accurate sense of how
// long things actually took.
package timelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nidhogg/vigil/internal/clock"
	"go.uber.org/zap"
)

// Log is a Postgres-backed task duration log.
type Log struct {
	db     *pgxpool.Pool
	clock  clock.Clock
	logger *zap.Logger
}

// New connects to Postgres and verifies the connection.
func New(dsn string, clk clock.Clock, logger *zap.Logger) (*Log, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("timelog connected to PostgreSQL")
	return &Log{db: pool, clock: clk, logger: logger}, nil
}

// Migrate reads and executes all .up.sql files from the migrations
// directory, in name order.
func (l *Log) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := l.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		l.logger.Info("migration applied", zap.String("file", f))
	}
	return nil
}

// Close shuts down the connection pool.
func (l *Log) Close() {
	l.db.Close()
}

// Entry is one recorded start or end.
type Entry struct {
	Type        string    `json:"type"` // start | end
	Task        string    `json:"task"`
	RecordedAt  time.Time `json:"recorded_at"`
	ElapsedMin  int       `json:"elapsed_min,omitempty"`
	Checkpoints int       `json:"checkpoints,omitempty"`
	Note        string    `json:"note,omitempty"`
}

// CurrentTask describes the task in progress.
type CurrentTask struct {
	Name       string    `json:"name"`
	Started    time.Time `json:"started"`
	ElapsedMin int       `json:"elapsed_min"`
}

// StartTask begins a task, auto-ending any task already running.
func (l *Log) StartTask(ctx context.Context, name string) (CurrentTask, error) {
	now := l.clock.Now()

	// Auto-end a task left running.
	if cur, ok, err := l.current(ctx); err != nil {
		return CurrentTask{}, err
	} else if ok {
		if _, _, err := l.EndTask(ctx, "(auto-ended)"); err != nil {
			return CurrentTask{}, fmt.Errorf("auto-end %s: %w", cur.Name, err)
		}
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return CurrentTask{}, fmt.Errorf("start task: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO timelog_current (singleton, task, started, checkpoints)
		 VALUES (TRUE, $1, $2, 0)
		 ON CONFLICT (singleton) DO UPDATE SET task = $1, started = $2, checkpoints = 0`,
		name, now); err != nil {
		return CurrentTask{}, fmt.Errorf("record current task: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO timelog_entries (entry_type, task, recorded_at) VALUES ('start', $1, $2)`,
		name, now); err != nil {
		return CurrentTask{}, fmt.Errorf("record start entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return CurrentTask{}, fmt.Errorf("start task: %w", err)
	}

	l.logger.Debug("task started", zap.String("task", name))
	return CurrentTask{Name: name, Started: now}, nil
}

// Checkpoint notes progress on the current task. Returns false when no
// task is running.
func (l *Log) Checkpoint(ctx context.Context, note string) (CurrentTask, bool, error) {
	cur, ok, err := l.current(ctx)
	if err != nil || !ok {
		return CurrentTask{}, false, err
	}

	now := l.clock.Now()
	cur.ElapsedMin = int(now.Sub(cur.Started).Minutes())

	if _, err := l.db.Exec(ctx,
		`UPDATE timelog_current SET checkpoints = checkpoints + 1 WHERE singleton`); err != nil {
		return CurrentTask{}, false, fmt.Errorf("record checkpoint: %w", err)
	}

	l.logger.Debug("checkpoint recorded",
		zap.String("task", cur.Name),
		zap.Int("elapsed_min", cur.ElapsedMin),
		zap.String("note", note))
	return cur, true, nil
}

// EndTask finishes the current task and records its duration. Returns
// false when no task is running.
func (l *Log) EndTask(ctx context.Context, note string) (Entry, bool, error) {
	var task string
	var started time.Time
	var checkpoints int
	err := l.db.QueryRow(ctx,
		`SELECT task, started, checkpoints FROM timelog_current WHERE singleton`).
		Scan(&task, &started, &checkpoints)
	if err == pgx.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read current task: %w", err)
	}

	now := l.clock.Now()
	entry := Entry{
		Type:        "end",
		Task:        task,
		RecordedAt:  now,
		ElapsedMin:  int(now.Sub(started).Minutes()),
		Checkpoints: checkpoints,
		Note:        note,
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return Entry{}, false, fmt.Errorf("end task: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO timelog_entries (entry_type, task, recorded_at, elapsed_min, checkpoints, note)
		 VALUES ('end', $1, $2, $3, $4, $5)`,
		entry.Task, entry.RecordedAt, entry.ElapsedMin, entry.Checkpoints, entry.Note); err != nil {
		return Entry{}, false, fmt.Errorf("record end entry: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM timelog_current WHERE singleton`); err != nil {
		return Entry{}, false, fmt.Errorf("clear current task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, false, fmt.Errorf("end task: %w", err)
	}

	l.logger.Debug("task ended",
		zap.String("task", task),
		zap.Int("elapsed_min", entry.ElapsedMin))
	return entry, true, nil
}

// Status reports the running task, if any, and the five most recent
// entries.
type Status struct {
	CurrentTime   time.Time    `json:"current_time"`
	CurrentTask   *CurrentTask `json:"current_task,omitempty"`
	RecentEntries []Entry      `json:"recent_entries"`
}

// Status summarizes the timelog.
func (l *Log) Status(ctx context.Context) (Status, error) {
	now := l.clock.Now()
	st := Status{CurrentTime: now, RecentEntries: []Entry{}}

	if cur, ok, err := l.current(ctx); err != nil {
		return Status{}, err
	} else if ok {
		cur.ElapsedMin = int(now.Sub(cur.Started).Minutes())
		st.CurrentTask = &cur
	}

	rows, err := l.db.Query(ctx,
		`SELECT entry_type, task, recorded_at, elapsed_min, checkpoints, note
		 FROM timelog_entries ORDER BY recorded_at DESC, id DESC LIMIT 5`)
	if err != nil {
		return Status{}, fmt.Errorf("query recent entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Type, &e.Task, &e.RecordedAt, &e.ElapsedMin, &e.Checkpoints, &e.Note); err != nil {
			return Status{}, fmt.Errorf("scan entry: %w", err)
		}
		st.RecentEntries = append(st.RecentEntries, e)
	}
	return st, rows.Err()
}

func (l *Log) current(ctx context.Context) (CurrentTask, bool, error) {
	var cur CurrentTask
	err := l.db.QueryRow(ctx,
		`SELECT task, started FROM timelog_current WHERE singleton`).
		Scan(&cur.Name, &cur.Started)
	if err == pgx.ErrNoRows {
		return CurrentTask{}, false, nil
	}
	if err != nil {
		return CurrentTask{}, false, fmt.Errorf("read current task: %w", err)
	}
	return cur, true, nil
}
