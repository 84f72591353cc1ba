package jobs

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"eiffel-lsp/internal/errors"
)

// MemoryPath keeps the job database in memory for the life of the process.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS repair_jobs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	class        TEXT NOT NULL,
	feature      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	attempt      INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	started_at   INTEGER,
	completed_at INTEGER,
	error        TEXT NOT NULL DEFAULT '',
	result       TEXT NOT NULL DEFAULT '',
	snapshot     BLOB
);
CREATE INDEX IF NOT EXISTS repair_jobs_created ON repair_jobs(created_at DESC);
CREATE INDEX IF NOT EXISTS repair_jobs_status ON repair_jobs(status);
`

const columns = `id, kind, class, feature, status, attempt, created_at, started_at, completed_at, error, result, snapshot`

// Store keeps job records in SQLite. Timestamps are stored as Unix
// nanoseconds.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenStore opens or creates the job database at path. An empty path or
// MemoryPath gives an in-memory database.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path == "" {
		path = MemoryPath
	}
	memory := path == MemoryPath
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.New(errors.InternalError, "create job database directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.InternalError, "open job database", err)
	}
	// Every connection to :memory: would be its own database.
	db.SetMaxOpenConns(1)

	setup := []string{"PRAGMA busy_timeout=5000"}
	if !memory {
		setup = append(setup, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	setup = append(setup, schema)
	for _, stmt := range setup {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, errors.New(errors.InternalError, "initialise job database", err)
		}
	}
	logger.Debug("Opened job database", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new job.
func (s *Store) Create(job *Job) error {
	_, err := s.db.Exec(`INSERT INTO repair_jobs (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Kind, job.Class, job.Feature, job.Status, job.Attempt,
		job.CreatedAt.UnixNano(), unixNano(job.StartedAt), unixNano(job.CompletedAt),
		job.Error, job.Result, job.snapshot)
	if err != nil {
		return errors.New(errors.InternalError, "insert job "+job.ID, err)
	}
	return nil
}

// Get returns the job with id, or (nil, nil) when there is none.
func (s *Store) Get(id string) (*Job, error) {
	job, err := scan(s.db.QueryRow(`SELECT `+columns+` FROM repair_jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// Update writes the mutable fields of job.
func (s *Store) Update(job *Job) error {
	res, err := s.db.Exec(`UPDATE repair_jobs
		SET status = ?, attempt = ?, started_at = ?, completed_at = ?, error = ?, result = ?, snapshot = ?
		WHERE id = ?`,
		job.Status, job.Attempt, unixNano(job.StartedAt), unixNano(job.CompletedAt),
		job.Error, job.Result, job.snapshot, job.ID)
	if err != nil {
		return errors.New(errors.InternalError, "update job "+job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.InvalidRequest, "job not found: %s", job.ID)
	}
	return nil
}

// List returns the jobs matching f, newest first.
func (s *Store) List(f Filter) (*Page, error) {
	var where []string
	var args []any
	if len(f.Status) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Status))+")")
		for _, st := range f.Status {
			args = append(args, st)
		}
	}
	if len(f.Kind) > 0 {
		where = append(where, "kind IN ("+placeholders(len(f.Kind))+")")
		for _, k := range f.Kind {
			args = append(args, k)
		}
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	page := &Page{Jobs: []Summary{}}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM repair_jobs`+cond, args...).Scan(&page.Total); err != nil {
		return nil, errors.New(errors.InternalError, "count jobs", err)
	}

	limit := f.Limit
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	rows, err := s.db.Query(`SELECT `+columns+` FROM repair_jobs`+cond+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset)...)
	if err != nil {
		return nil, errors.New(errors.InternalError, "list jobs", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		job, err := scan(rows)
		if err != nil {
			return nil, err
		}
		page.Jobs = append(page.Jobs, job.summary())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.InternalError, "list jobs", err)
	}
	return page, nil
}

// Interrupt cancels jobs a previous server left queued or running. Their
// sessions died with that process, so the file may hold an unverified
// candidate; the snapshot shows what it held before.
func (s *Store) Interrupt() (int64, error) {
	res, err := s.db.Exec(`UPDATE repair_jobs SET status = ?, completed_at = ?, error = ?
		WHERE status IN (?, ?)`,
		Cancelled, time.Now().UTC().UnixNano(), "interrupted by server shutdown", Queued, Running)
	if err != nil {
		return 0, errors.New(errors.InternalError, "interrupt stale jobs", err)
	}
	return res.RowsAffected()
}

// Prune deletes finished jobs completed before cutoff.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM repair_jobs WHERE status IN (?, ?, ?) AND completed_at < ?`,
		Completed, Failed, Cancelled, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, errors.New(errors.InternalError, "prune jobs", err)
	}
	return res.RowsAffected()
}

type row interface {
	Scan(dest ...any) error
}

func scan(r row) (*Job, error) {
	var (
		job              Job
		created          int64
		started, stopped sql.NullInt64
	)
	err := r.Scan(&job.ID, &job.Kind, &job.Class, &job.Feature, &job.Status, &job.Attempt,
		&created, &started, &stopped, &job.Error, &job.Result, &job.snapshot)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.New(errors.InternalError, "read job", err)
	}
	job.CreatedAt = time.Unix(0, created).UTC()
	job.StartedAt = fromUnixNano(started)
	job.CompletedAt = fromUnixNano(stopped)
	if len(job.snapshot) == 0 {
		job.snapshot = nil
	}
	return &job, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func unixNano(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromUnixNano(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
