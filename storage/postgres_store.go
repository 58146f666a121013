package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"imoveis-importer/models"
)

const propertyColumns = `id, title, price_cents, city, state, description, features,
	images, image_sources, highlighted, created_at, updated_at`

// PostgresStore persists properties to PostgreSQL, using the title as natural key.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := NewPostgresStoreFromDB(db)
	if err := ps.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return ps, nil
}

// NewPostgresStoreFromDB wraps an existing handle without touching the schema.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (ps *PostgresStore) migrate() error {
	_, err := ps.db.Exec(`
		CREATE TABLE IF NOT EXISTS properties (
			id            TEXT         PRIMARY KEY,
			title         TEXT         UNIQUE NOT NULL,
			price_cents   BIGINT       NOT NULL DEFAULT 0,
			city          TEXT         NOT NULL DEFAULT '',
			state         VARCHAR(8)   NOT NULL DEFAULT '',
			description   TEXT         NOT NULL DEFAULT '',
			features      JSONB        NOT NULL DEFAULT '{}'::jsonb,
			images        JSONB        NOT NULL DEFAULT '[]'::jsonb,
			image_sources JSONB        NOT NULL DEFAULT '{}'::jsonb,
			highlighted   BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_properties_city       ON properties(city);
		CREATE INDEX IF NOT EXISTS idx_properties_created_at ON properties(created_at);
	`)
	return err
}

// Upsert inserts p, or updates the row that already carries p.Title. Images are
// never touched here; they are set afterwards through UpdateImages.
func (ps *PostgresStore) Upsert(ctx context.Context, p *models.StoredProperty) (*UpsertResult, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, &PersistenceError{Op: "upsert", Err: errors.New("title is required")}
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return nil, &PersistenceError{Op: "upsert", Err: fmt.Errorf("encode features: %w", err)}
	}

	row := ps.db.QueryRowContext(ctx, `
		INSERT INTO properties (id, title, price_cents, city, state, description, features)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (title) DO UPDATE SET
			price_cents = EXCLUDED.price_cents,
			city        = EXCLUDED.city,
			state       = EXCLUDED.state,
			description = EXCLUDED.description,
			features    = properties.features || EXCLUDED.features,
			updated_at  = NOW()
		RETURNING `+propertyColumns+`, (xmax = 0) AS created
	`, uuid.NewString(), p.Title, p.PriceCents, p.City, p.State, p.Description, features)

	var created bool
	stored, err := scanProperty(row, &created)
	if err != nil {
		return nil, &PersistenceError{Op: "upsert", Err: err}
	}
	return &UpsertResult{Property: stored, Created: created}, nil
}

// GetAll returns stored properties in creation order.
func (ps *PostgresStore) GetAll(ctx context.Context, f Filter) ([]*models.StoredProperty, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties ORDER BY created_at, id`
	var args []any
	if f.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, f.Limit)
	}

	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "get all", Err: err}
	}
	defer rows.Close()

	var props []*models.StoredProperty
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "scan row", Err: err}
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "get all", Err: err}
	}
	return props, nil
}

// UpdateImages sets the final image list of a property.
func (ps *PostgresStore) UpdateImages(ctx context.Context, id string, images []string, sources map[string]string) error {
	if images == nil {
		images = []string{}
	}
	if sources == nil {
		sources = map[string]string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return &PersistenceError{Op: "update images", Err: err}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return &PersistenceError{Op: "update images", Err: err}
	}

	res, err := ps.db.ExecContext(ctx, `
		UPDATE properties
		SET images = $2, image_sources = $3, updated_at = NOW()
		WHERE id = $1
	`, id, imagesJSON, sourcesJSON)
	if err != nil {
		return &PersistenceError{Op: "update images", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "update images", Err: err}
	}
	if n == 0 {
		return &PersistenceError{Op: "update images", Err: fmt.Errorf("property %s not found", id)}
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner, extra ...any) (*models.StoredProperty, error) {
	p := &models.StoredProperty{}
	var features, images, sources []byte
	dest := []any{
		&p.ID, &p.Title, &p.PriceCents, &p.City, &p.State, &p.Description, &features,
		&images, &sources, &p.Highlighted, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &p.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return nil, fmt.Errorf("decode images: %w", err)
		}
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &p.ImageSources); err != nil {
			return nil, fmt.Errorf("decode image sources: %w", err)
		}
	}
	return p, nil
}
