package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nvandessel/viralsim/internal/graph"
)

// SQLiteSchemaVersion is the schema version written to exported databases.
const SQLiteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    total_users INTEGER NOT NULL,
    total_referrals INTEGER NOT NULL,
    organic_users INTEGER NOT NULL,
    k_factor REAL,
    metrics TEXT  -- JSON
);

CREATE TABLE IF NOT EXISTS nodes (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    id TEXT NOT NULL,
    referred_by TEXT,
    referral_count INTEGER NOT NULL DEFAULT 0,
    generation INTEGER NOT NULL DEFAULT 0,
    joined_at TEXT NOT NULL,
    metadata TEXT,  -- JSON
    PRIMARY KEY (run_id, id)
);
CREATE INDEX IF NOT EXISTS idx_nodes_referred_by ON nodes(run_id, referred_by);

CREATE TABLE IF NOT EXISTS edges (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    source TEXT NOT NULL,
    target TEXT NOT NULL,
    channel TEXT,
    created_at TEXT NOT NULL,
    PRIMARY KEY (run_id, target)
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(run_id, source);
`

// WriteSQLite stores g in the SQLite database at path under info.RunID.
// The file is created if needed; a database may hold several runs.
// Re-exporting a run id replaces that run.
func WriteSQLite(ctx context.Context, path string, g *graph.Graph, info Info) error {
	if info.RunID == "" {
		return fmt.Errorf("sqlite export requires a run id")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	db, err := OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, info.RunID); err != nil {
		return fmt.Errorf("failed to clear run %s: %w", info.RunID, err)
	}

	var kFactor sql.NullFloat64
	var metricsJSON sql.NullString
	if info.Metrics != nil {
		kFactor = sql.NullFloat64{Float64: info.Metrics.KFactor, Valid: true}
		raw, err := json.Marshal(info.Metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics: %w", err)
		}
		metricsJSON = sql.NullString{String: string(raw), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, total_users, total_referrals, organic_users, k_factor, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.RunID, info.CreatedAt.UTC().Format(time.RFC3339Nano),
		g.TotalUsers(), g.TotalReferrals(), g.OrganicUsers(), kFactor, metricsJSON,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (run_id, id, referred_by, referral_count, generation, joined_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer nodeStmt.Close()

	for _, n := range g.Nodes() {
		var referredBy sql.NullString
		if n.ReferredBy != "" {
			referredBy = sql.NullString{String: n.ReferredBy, Valid: true}
		}
		var meta sql.NullString
		if len(n.Metadata) > 0 {
			raw, err := json.Marshal(n.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata for %s: %w", n.ID, err)
			}
			meta = sql.NullString{String: string(raw), Valid: true}
		}
		if _, err := nodeStmt.ExecContext(ctx,
			info.RunID, n.ID, referredBy, n.ReferralCount, g.Generation(n.ID),
			n.JoinedAt.UTC().Format(time.RFC3339Nano), meta,
		); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", n.ID, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (run_id, source, target, channel, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for _, e := range g.Edges() {
		if _, err := edgeStmt.ExecContext(ctx,
			info.RunID, e.From, e.To, e.Channel, e.Timestamp.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to insert edge %s->%s: %w", e.From, e.To, err)
		}
	}

	return tx.Commit()
}

// OpenSQLite opens (creating if needed) an export database and ensures its
// schema exists.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := initSQLiteSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SQLiteSchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}
