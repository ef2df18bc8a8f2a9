package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/verify"
)

// PostgresStore keeps maps in PostgreSQL. Tiles are stored run-length
// encoded; the rest of the artifact is a JSONB document.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects and creates the schema
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	store, err := NewPostgresStoreDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreDB wraps an open database handle and creates the schema
func NewPostgresStoreDB(db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS maps (
	id TEXT PRIMARY KEY,
	prompt TEXT NOT NULL,
	generator TEXT NOT NULL DEFAULT '',
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	tiles_rle TEXT NOT NULL,
	connected BOOLEAN NOT NULL,
	document JSONB NOT NULL,
	generated_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS verifications (
	artifact_id TEXT PRIMARY KEY REFERENCES maps(id) ON DELETE CASCADE,
	score DOUBLE PRECISION NOT NULL,
	passed BOOLEAN NOT NULL,
	document JSONB NOT NULL,
	verified_at TIMESTAMP WITH TIME ZONE NOT NULL
);
`

func (ps *PostgresStore) initSchema() error {
	_, err := ps.db.Exec(schema)
	return err
}

// SaveArtifact stores or replaces a map
func (ps *PostgresStore) SaveArtifact(ctx context.Context, a *builder.Artifact) error {
	if err := checkArtifact(a); err != nil {
		return err
	}
	doc := *a
	doc.Tiles = nil
	if doc.TilesRLE == "" {
		doc.TilesRLE = builder.EncodeRLE(a.Tiles)
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	query := `
	INSERT INTO maps (id, prompt, generator, width, height, tiles_rle, connected, document, generated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id)
	DO UPDATE SET
		prompt = $2, generator = $3, width = $4, height = $5, tiles_rle = $6,
		connected = $7, document = $8, generated_at = $9,
		updated_at = NOW()
	`
	_, err = ps.db.ExecContext(ctx, query,
		a.ID, a.Prompt, a.Generator, a.Width, a.Height, doc.TilesRLE,
		a.Connected, string(docJSON), a.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// LoadArtifact loads a map by id
func (ps *PostgresStore) LoadArtifact(ctx context.Context, id string) (*builder.Artifact, error) {
	var docJSON string
	err := ps.db.QueryRowContext(ctx, `SELECT document FROM maps WHERE id = $1`, id).Scan(&docJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("artifact %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	return builder.DecodeArtifact([]byte(docJSON))
}

// ListArtifacts lists every stored map, oldest first
func (ps *PostgresStore) ListArtifacts(ctx context.Context) ([]Summary, error) {
	rows, err := ps.db.QueryContext(ctx,
		`SELECT id, prompt, generator, width, height, connected, generated_at FROM maps ORDER BY generated_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Prompt, &s.Generator, &s.Width, &s.Height, &s.Connected, &s.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveVerification stores the latest verification of a map
func (ps *PostgresStore) SaveVerification(ctx context.Context, r verify.Result) error {
	if r.ArtifactID == "" {
		return fmt.Errorf("verification without artifact id")
	}
	docJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal verification: %w", err)
	}
	query := `
	INSERT INTO verifications (artifact_id, score, passed, document, verified_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (artifact_id)
	DO UPDATE SET score = $2, passed = $3, document = $4, verified_at = $5
	`
	if _, err := ps.db.ExecContext(ctx, query, r.ArtifactID, r.Score, r.Passed, string(docJSON), r.VerifiedAt); err != nil {
		return fmt.Errorf("failed to save verification: %w", err)
	}
	return nil
}

// LoadVerification loads the verification of a map
func (ps *PostgresStore) LoadVerification(ctx context.Context, artifactID string) (verify.Result, error) {
	var docJSON string
	err := ps.db.QueryRowContext(ctx, `SELECT document FROM verifications WHERE artifact_id = $1`, artifactID).Scan(&docJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return verify.Result{}, fmt.Errorf("verification of %s: %w", artifactID, ErrNotFound)
		}
		return verify.Result{}, fmt.Errorf("failed to load verification: %w", err)
	}
	return decodeVerification([]byte(docJSON))
}

// Close closes the database connection
func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
