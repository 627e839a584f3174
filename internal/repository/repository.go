// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/pacificclimate/impacts/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRulebaseVersion records a loaded rulebase.
func (r *SQLRepository) SaveRulebaseVersion(ctx context.Context, v *domain.RulebaseVersion) error {
	if v == nil || v.ID == "" {
		return fmt.Errorf("%w: rulebase version id is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO rulebase_versions (id, source, checksum, rule_count, raw, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		v.ID, v.Source, v.Checksum, v.RuleCount, v.Raw, v.LoadedAt.UTC(),
	)
	return err
}

// LatestRulebaseVersion returns the most recently loaded rulebase.
func (r *SQLRepository) LatestRulebaseVersion(ctx context.Context) (*domain.RulebaseVersion, error) {
	query := `
		SELECT id, source, checksum, rule_count, raw, loaded_at
		FROM rulebase_versions
		ORDER BY loaded_at DESC
		LIMIT 1
	`

	var v domain.RulebaseVersion
	err := r.db.QueryRowContext(ctx, query).Scan(
		&v.ID, &v.Source, &v.Checksum, &v.RuleCount, &v.Raw, &v.LoadedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SaveActivation stores the activation for a selection, replacing any
// earlier snapshot of the same selection.
func (r *SQLRepository) SaveActivation(ctx context.Context, snap *domain.ActivationSnapshot) error {
	if snap == nil || !snap.Selection.Valid() {
		return fmt.Errorf("%w: region and climate are required", domain.ErrInvalidInput)
	}

	values, err := json.Marshal(snap.Values)
	if err != nil {
		return fmt.Errorf("failed to encode activation: %w", err)
	}

	query := `
		INSERT INTO activation_snapshots (id, region, climate, ensemble, activation, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(region, climate, ensemble) DO UPDATE SET
			id = excluded.id,
			activation = excluded.activation,
			fetched_at = excluded.fetched_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		snap.ID, snap.Selection.Region, snap.Selection.Climate, snap.Selection.Ensemble,
		string(values), snap.FetchedAt.UTC(),
	)
	return err
}

// GetActivation returns the stored snapshot for a selection.
func (r *SQLRepository) GetActivation(ctx context.Context, sel domain.Selection) (*domain.ActivationSnapshot, error) {
	query := `
		SELECT id, region, climate, ensemble, activation, fetched_at
		FROM activation_snapshots
		WHERE region = ? AND climate = ? AND ensemble = ?
	`

	var snap domain.ActivationSnapshot
	var values string

	err := r.db.QueryRowContext(ctx, r.rebind(query), sel.Region, sel.Climate, sel.Ensemble).Scan(
		&snap.ID, &snap.Selection.Region, &snap.Selection.Climate, &snap.Selection.Ensemble,
		&values, &snap.FetchedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(values), &snap.Values); err != nil {
		return nil, fmt.Errorf("failed to parse activation snapshot: %w", err)
	}
	return &snap, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
