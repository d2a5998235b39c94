// Package sqlite stores index checkpoints in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/termset/pkg/termset/accumulate"
	"github.com/cognicore/termset/pkg/termset/internalerr"
)

// Store is an accumulate.Sink backed by SQLite. Each write replaces the
// stored index and appends a row to the checkpoint log.
type Store struct {
	db *sql.DB
}

// CheckpointRecord is one row of the checkpoint log.
type CheckpointRecord struct {
	RunID     string
	Documents int
	Final     bool
	WrittenAt time.Time
	Concepts  int
}

// Open opens a SQLite database with WAL mode enabled.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", internalerr.ErrPersistence, path, err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %w", internalerr.ErrPersistence, pragma, err)
		}
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema: %w", internalerr.ErrPersistence, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS concepts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	position INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS variants (
	concept_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	text TEXT NOT NULL,
	score REAL NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY(concept_id, position),
	FOREIGN KEY(concept_id) REFERENCES concepts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	documents INTEGER NOT NULL,
	final INTEGER NOT NULL,
	written_at TEXT NOT NULL,
	concepts INTEGER NOT NULL
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Write implements accumulate.Sink. The index is replaced in one
// transaction so readers never see a partial checkpoint.
func (s *Store) Write(ctx context.Context, cp accumulate.Checkpoint) error {
	if err := s.write(ctx, cp); err != nil {
		return fmt.Errorf("%w: sqlite checkpoint: %w", internalerr.ErrPersistence, err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, cp accumulate.Checkpoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM variants`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM concepts`); err != nil {
		return err
	}

	conceptStmt, err := tx.PrepareContext(ctx, `INSERT INTO concepts (id, name, position) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer conceptStmt.Close()

	variantStmt, err := tx.PrepareContext(ctx, `INSERT INTO variants (concept_id, position, text, score, count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer variantStmt.Close()

	concepts := 0
	if cp.Index != nil {
		for i, e := range cp.Index.Entries() {
			if _, err := conceptStmt.ExecContext(ctx, e.ID, e.Name, i); err != nil {
				return err
			}
			for j, v := range e.Variants {
				if _, err := variantStmt.ExecContext(ctx, e.ID, j, v.Text, v.Score, v.Count); err != nil {
					return err
				}
			}
		}
		concepts = cp.Index.Len()
	}

	final := 0
	if cp.Final {
		final = 1
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, documents, final, written_at, concepts) VALUES (?, ?, ?, ?, ?)`,
		cp.RunID, cp.Documents, final, cp.At.UTC().Format(time.RFC3339Nano), concepts,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Load reads the stored index in its original concept and variant order.
func (s *Store) Load(ctx context.Context) (*accumulate.Index, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.name, v.text, v.score, v.count
FROM concepts c
LEFT JOIN variants v ON v.concept_id = c.id
ORDER BY c.position, v.position`)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", internalerr.ErrPersistence, err)
	}
	defer rows.Close()

	idx := accumulate.NewIndex()
	var cur *accumulate.ConceptEntry
	flush := func() {
		if cur != nil {
			idx.Put(*cur)
		}
	}

	for rows.Next() {
		var (
			id, name string
			text     sql.NullString
			score    sql.NullFloat64
			count    sql.NullInt64
		)
		if err := rows.Scan(&id, &name, &text, &score, &count); err != nil {
			return nil, fmt.Errorf("%w: load: %w", internalerr.ErrPersistence, err)
		}
		if cur == nil || cur.ID != id {
			flush()
			cur = &accumulate.ConceptEntry{ID: id, Name: name, Variants: []accumulate.VariantEntry{}}
		}
		if text.Valid {
			cur.Variants = append(cur.Variants, accumulate.VariantEntry{
				Text:  text.String,
				Score: score.Float64,
				Count: int(count.Int64),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load: %w", internalerr.ErrPersistence, err)
	}
	flush()
	return idx, nil
}

// Checkpoints returns the checkpoint log, oldest first.
func (s *Store) Checkpoints(ctx context.Context) ([]CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, documents, final, written_at, concepts FROM checkpoints ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoints: %w", internalerr.ErrPersistence, err)
	}
	defer rows.Close()

	var out []CheckpointRecord
	for rows.Next() {
		var (
			rec     CheckpointRecord
			final   int
			written string
		)
		if err := rows.Scan(&rec.RunID, &rec.Documents, &final, &written, &rec.Concepts); err != nil {
			return nil, fmt.Errorf("%w: checkpoints: %w", internalerr.ErrPersistence, err)
		}
		rec.Final = final != 0
		if t, err := time.Parse(time.RFC3339Nano, written); err == nil {
			rec.WrittenAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
