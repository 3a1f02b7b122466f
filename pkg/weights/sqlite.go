package weights

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteSampleStore implements SampleStore on an embedded SQLite file.
type SQLiteSampleStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// sampleRow is the training_samples table row.
type sampleRow struct {
	ID          string  `db:"id"`
	Scores      string  `db:"scores"`
	GroundTruth float64 `db:"ground_truth"`
	CreatedAt   string  `db:"created_at"`
}

// OpenSQLiteSampleStore opens (creating if needed) the sample database at
// path and applies pending migrations.
func OpenSQLiteSampleStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteSampleStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: coherent.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("sample store initialized", "component", "weights.sqlite", "db_path", path)

	return &SQLiteSampleStore{
		db:     db,
		logger: logger.With("component", "weights.sqlite"),
	}, nil
}

func migrate(ctx context.Context, db *sqlx.DB) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db.DB, migrations)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// AppendSamples inserts samples in one transaction, skipping known IDs.
func (s *SQLiteSampleStore) AppendSamples(ctx context.Context, samples []TrainingSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR IGNORE INTO training_samples (id, scores, ground_truth, created_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, sample := range samples {
		scores, err := json.Marshal(sample.Scores)
		if err != nil {
			return fmt.Errorf("marshal scores %s: %w", sample.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			sample.ID,
			string(scores),
			sample.GroundTruth,
			sample.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert %s: %w", sample.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("samples appended", "count", len(samples))
	return nil
}

// LoadSamples returns the newest limit samples, oldest first.
func (s *SQLiteSampleStore) LoadSamples(ctx context.Context, limit int) ([]TrainingSample, error) {
	var rows []sampleRow
	var err error
	if limit > 0 {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, scores, ground_truth, created_at FROM (
				SELECT id, scores, ground_truth, created_at
				FROM training_samples ORDER BY id DESC LIMIT ?
			) ORDER BY id
		`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, scores, ground_truth, created_at
			FROM training_samples ORDER BY id
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("select samples: %w", err)
	}

	out := make([]TrainingSample, 0, len(rows))
	for _, r := range rows {
		var scores Scores
		if err := json.Unmarshal([]byte(r.Scores), &scores); err != nil {
			s.logger.Warn("skipping unreadable sample", "id", r.ID, "error", err)
			continue
		}
		created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			s.logger.Warn("sample has bad timestamp", "id", r.ID, "error", err)
		}
		out = append(out, TrainingSample{
			ID:          r.ID,
			Scores:      scores,
			GroundTruth: r.GroundTruth,
			CreatedAt:   created,
		})
	}
	return out, nil
}

// Count returns the number of stored samples.
func (s *SQLiteSampleStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM training_samples`); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteSampleStore) Close() error {
	return s.db.Close()
}

// Verify SQLiteSampleStore implements SampleStore at compile time.
var _ SampleStore = (*SQLiteSampleStore)(nil)
