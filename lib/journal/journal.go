// Package journal records periodic snapshots of service contexts in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/xtclang/xvm-sub023/vm"
)

var log = commonlog.GetLogger("xvm.journal")

// ErrNoSnapshot indicates no snapshot was recorded for a service.
var ErrNoSnapshot = errors.New("no snapshot recorded")

const schema = `CREATE TABLE IF NOT EXISTS snapshots (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	taken     INTEGER NOT NULL,
	service   TEXT    NOT NULL,
	name      TEXT    NOT NULL,
	status    TEXT    NOT NULL,
	uptime    INTEGER NOT NULL,
	cpu       INTEGER NOT NULL,
	ops       INTEGER NOT NULL,
	requests  INTEGER NOT NULL,
	fibers    INTEGER NOT NULL,
	ready     INTEGER NOT NULL,
	waiting   INTEGER NOT NULL,
	queued    INTEGER NOT NULL,
	contended INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_service ON snapshots (service, seq);`

// Snapshot is one recorded row.
type Snapshot struct {
	Taken time.Time
	vm.ServiceStats
	// StatusName is the status as recorded; it survives engine upgrades
	// that renumber ServiceStatus.
	StatusName string
}

// Journal is a SQLite store of service snapshots.
type Journal struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the journal at path. Parent directories are
// created as needed.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &Journal{db: db, path: path}, nil
}

// Path returns the database file.
func (j *Journal) Path() string { return j.path }

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record stores one snapshot per service, all stamped with the same time.
func (j *Journal) Record(ctx context.Context, stats []vm.ServiceStats) error {
	if len(stats) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshots
		(taken, service, name, status, uptime, cpu, ops, requests, fibers, ready, waiting, queued, contended)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot: %w", err)
	}
	defer stmt.Close()

	taken := time.Now().UnixNano()
	for _, s := range stats {
		_, err := stmt.ExecContext(ctx, taken, s.ID.String(), s.Name, s.Status.String(),
			int64(s.Uptime), int64(s.CPU), int64(s.Ops), int64(s.Requests), int64(s.Fibers),
			s.Ready, s.Waiting, s.Queued, int64(s.Contended))
		if err != nil {
			return fmt.Errorf("recording %s: %w", s.Name, err)
		}
	}
	return tx.Commit()
}

// Snapshot records the current stats of every context in v.
func (j *Journal) Snapshot(ctx context.Context, v *vm.VM) error {
	return j.Record(ctx, v.Stats().Services)
}

// Run records a snapshot of v every interval until ctx is done, then
// records a final one. Failed snapshots are logged and skipped.
func (j *Journal) Run(ctx context.Context, v *vm.VM, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := j.Snapshot(context.Background(), v); err != nil {
				log.Warningf("final snapshot: %s", err)
			}
			return
		case <-ticker.C:
			if err := j.Snapshot(ctx, v); err != nil && ctx.Err() == nil {
				log.Warningf("snapshot: %s", err)
			}
		}
	}
}

// Latest returns the most recent snapshot of the named service.
func (j *Journal) Latest(ctx context.Context, name string) (Snapshot, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+columns+` FROM snapshots
		WHERE name = ? ORDER BY seq DESC LIMIT 1`, name)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w for %s", ErrNoSnapshot, name)
	}
	return s, err
}

// History returns up to limit snapshots of the named service, newest first.
func (j *Journal) History(ctx context.Context, name string, limit int) ([]Snapshot, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+columns+` FROM snapshots
		WHERE name = ? ORDER BY seq DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const columns = `taken, service, name, status, uptime, cpu, ops, requests, fibers, ready, waiting, queued, contended`

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var (
		s                                              Snapshot
		taken, uptime, cpu, ops, reqs, fibers, content int64
		id                                             string
	)
	err := row.Scan(&taken, &id, &s.Name, &s.StatusName, &uptime, &cpu, &ops, &reqs, &fibers,
		&s.Ready, &s.Waiting, &s.Queued, &content)
	if err != nil {
		return Snapshot{}, err
	}
	s.Taken = time.Unix(0, taken)
	s.Uptime = time.Duration(uptime)
	s.CPU = time.Duration(cpu)
	s.Ops = uint64(ops)
	s.Requests = uint64(reqs)
	s.Fibers = uint64(fibers)
	s.Contended = uint64(content)
	s.Status = parseStatus(s.StatusName)
	if s.ID, err = uuid.Parse(id); err != nil {
		return Snapshot{}, fmt.Errorf("bad service id %q: %w", id, err)
	}
	return s, nil
}

func parseStatus(name string) vm.ServiceStatus {
	for st := vm.StatusIdle; st <= vm.StatusTerminated; st++ {
		if st.String() == name {
			return st
		}
	}
	return vm.StatusTerminated
}
