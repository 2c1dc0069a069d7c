package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current results store schema version.
const SchemaVersion = 1

// resultsSchemaV1 is the schema of the results store. The trajectories table
// has no uniqueness constraint: duplicates are removed by a single pass at the
// end of a run instead of being checked on every insert.
const resultsSchemaV1 = `
CREATE TABLE IF NOT EXISTS trajectories (
    seed INTEGER NOT NULL,
    step_index INTEGER NOT NULL,
    reaction_id INTEGER NOT NULL,
    time REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    base_seed INTEGER NOT NULL,
    simulations INTEGER NOT NULL,
    threads INTEGER NOT NULL,
    step_cutoff INTEGER NOT NULL,
    status TEXT NOT NULL,
    trajectories INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// networkSchema is the layout of the reaction network store. Unused
// reactant and product slots hold -1.
const networkSchema = `
CREATE TABLE IF NOT EXISTS metadata (
    number_of_species INTEGER NOT NULL,
    number_of_reactions INTEGER NOT NULL,
    factor_zero REAL NOT NULL,
    factor_two REAL NOT NULL,
    factor_duplicate REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS reactions (
    reaction_id INTEGER NOT NULL PRIMARY KEY,
    number_of_reactants INTEGER NOT NULL,
    number_of_products INTEGER NOT NULL,
    reactant_1 INTEGER NOT NULL,
    reactant_2 INTEGER NOT NULL,
    product_1 INTEGER NOT NULL,
    product_2 INTEGER NOT NULL,
    rate REAL NOT NULL
);
`

// initialStateSchema holds the starting population. It lives in the network
// store or in a separate state store.
const initialStateSchema = `
CREATE TABLE IF NOT EXISTS initial_state (
    species_id INTEGER NOT NULL PRIMARY KEY,
    count INTEGER NOT NULL
);
`

// InitSchema creates the results tables when they are absent.
// Existing databases are integrity-checked first.
func InitSchema(ctx context.Context, db *sql.DB) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// schema_version doesn't exist yet
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if err := ValidateIntegrity(ctx, db); err != nil {
		return fmt.Errorf("database integrity check failed: %w", err)
	}

	if currentVersion != SchemaVersion {
		return fmt.Errorf("unsupported results schema version %d (want %d)", currentVersion, SchemaVersion)
	}

	return nil
}

// getSchemaVersion returns the current schema version from the database.
// Returns 0 and an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// createSchema creates the results schema in one transaction.
func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, resultsSchemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// ValidateIntegrity runs PRAGMA integrity_check on the database.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("failed to scan integrity_check result: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity_check failed: %s", result)
		}
	}

	return rows.Err()
}

// tableExists reports whether a table named name exists.
func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", name, err)
	}
	return count > 0, nil
}
