// Package history persists completed optimization runs in SQLite so they can
// be listed and inspected later. Callers decide what to record; by convention
// only runs that reached the completed step are stored.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/logging"
	"github.com/XiaoConstantine/promptforge/pkg/optimizer"
)

const (
	defaultPath        = "promptforge_history.db"
	defaultBusyTimeout = 5 * time.Second
	defaultListLimit   = 50
)

// Config holds storage configuration for the history store.
type Config struct {
	Path           string        // Database file path (default "promptforge_history.db")
	MaxConnections int           // Connection pool size (default 10)
	BusyTimeout    time.Duration // SQLite busy timeout (default 5s)
	PruneInterval  time.Duration // How often the background prune runs; 0 disables it
	RetainFor      time.Duration // Age beyond which the prune loop deletes records
}

// Record is one stored optimization run.
type Record struct {
	ID        string
	CreatedAt time.Time
	Role      string
	Provider  string
	Step      optimizer.Step
	Request   optimizer.Request
	Result    optimizer.Result
}

// Store persists optimization runs in SQLite.
type Store struct {
	db        *sql.DB
	config    Config
	closeOnce sync.Once
	closeChan chan struct{}
	pruneWG   sync.WaitGroup
}

// NewStore opens (creating if needed) the history database at config.Path.
func NewStore(config Config) (*Store, error) {
	if config.Path == "" {
		config.Path = defaultPath
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = defaultBusyTimeout
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to open history database")
	}

	if config.MaxConnections > 0 {
		db.SetMaxOpenConns(config.MaxConnections)
	} else {
		db.SetMaxOpenConns(10)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:        db,
		config:    config,
		closeChan: make(chan struct{}),
	}

	if err := s.initDB(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to initialize history schema")
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to enable WAL mode")
	}

	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", config.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			logging.GetLogger().Warn(context.Background(), "Failed to set pragma %s: %v", pragma, err)
		}
	}

	if config.PruneInterval > 0 && config.RetainFor > 0 {
		s.pruneWG.Add(1)
		go s.pruneLoop()
	}

	return s, nil
}

func (s *Store) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS optimization_runs (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		role TEXT NOT NULL,
		provider TEXT NOT NULL,
		step TEXT NOT NULL,
		request TEXT NOT NULL,
		result TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON optimization_runs(created_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// Put stores one run and returns the stored record with its generated ID.
func (s *Store) Put(ctx context.Context, req optimizer.Request, result *optimizer.Result) (*Record, error) {
	if result == nil {
		return nil, errors.New(errors.InvalidInput, "result cannot be nil")
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to encode request")
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to encode result")
	}

	record := &Record{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Role:      result.Role,
		Provider:  result.Provider,
		Step:      result.Step,
		Request:   req,
		Result:    *result,
	}

	query := `
	INSERT INTO optimization_runs (id, created_at, role, provider, step, request, result)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		record.ID, record.CreatedAt.UnixNano(), record.Role, record.Provider,
		string(record.Step), string(reqJSON), string(resultJSON))
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to store optimization run")
	}

	return record, nil
}

// Get retrieves one run by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	query := `
	SELECT id, created_at, role, provider, step, request, result
	FROM optimization_runs WHERE id = ?
	`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "optimization run not found"),
			errors.Fields{"id": id})
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to load optimization run")
	}
	return record, nil
}

// List returns runs newest first, at most limit of them. A non-positive limit
// applies the default of 50.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
	SELECT id, created_at, role, provider, step, request, result
	FROM optimization_runs ORDER BY created_at DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to list optimization runs")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.StorageFailed, "failed to scan optimization run")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to list optimization runs")
	}
	return records, nil
}

// Delete removes one run by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM optimization_runs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to delete optimization run")
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.WithFields(
			errors.New(errors.ResourceNotFound, "optimization run not found"),
			errors.Fields{"id": id})
	}
	return nil
}

// Prune deletes runs older than the given age and reports how many were
// removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()

	result, err := s.db.ExecContext(ctx, `DELETE FROM optimization_runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, errors.StorageFailed, "failed to prune optimization runs")
	}

	affected, _ := result.RowsAffected()
	return affected, nil
}

// Close stops the prune loop and closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeChan)
	})
	s.pruneWG.Wait()
	return s.db.Close()
}

func (s *Store) pruneLoop() {
	defer s.pruneWG.Done()

	ticker := time.NewTicker(s.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeChan:
			return
		case <-ticker.C:
			pruned, err := s.Prune(context.Background(), s.config.RetainFor)
			if err != nil {
				logging.GetLogger().Warn(context.Background(), "History prune failed: %v", err)
				continue
			}
			if pruned > 0 {
				logging.GetLogger().Debug(context.Background(), "Pruned %d optimization runs", pruned)
			}
		}
	}
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		record     Record
		createdAt  int64
		step       string
		reqJSON    string
		resultJSON string
	)
	if err := row.Scan(&record.ID, &createdAt, &record.Role, &record.Provider, &step, &reqJSON, &resultJSON); err != nil {
		return nil, err
	}

	record.CreatedAt = time.Unix(0, createdAt).UTC()
	record.Step = optimizer.Step(step)
	if err := json.Unmarshal([]byte(reqJSON), &record.Request); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(resultJSON), &record.Result); err != nil {
		return nil, err
	}
	return &record, nil
}
