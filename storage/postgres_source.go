package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"property-map-search/models"
	"property-map-search/utils"
)

// propertyColumns is the insert column order used by buildInsert.
var propertyColumns = []string{
	"id", "raw_price", "lat", "lng", "city", "address", "title", "image_url", "bedrooms", "bathrooms",
}

// PostgresSource serves properties from PostgreSQL and can seed the table.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource opens a connection to PostgreSQL, waits for it to accept
// connections, runs schema migrations, and returns a ready-to-use source.
func NewPostgresSource(ctx context.Context, dsn string, retry *utils.RetryConfig) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if retry == nil {
		retry = &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond}
	}
	if err := retry.Do(ctx, "postgres ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	ps := &PostgresSource{db: db}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresSource) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS properties (
			id         TEXT             PRIMARY KEY,
			raw_price  TEXT             NOT NULL DEFAULT '',
			lat        DOUBLE PRECISION,
			lng        DOUBLE PRECISION,
			city       TEXT             NOT NULL DEFAULT '',
			address    TEXT             NOT NULL DEFAULT '',
			title      TEXT             NOT NULL DEFAULT '',
			image_url  TEXT             NOT NULL DEFAULT '',
			bedrooms   INTEGER          NOT NULL DEFAULT 0,
			bathrooms  INTEGER          NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ      NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_properties_city   ON properties(city);
		CREATE INDEX IF NOT EXISTS idx_properties_latlng ON properties(lat, lng);
	`)
	return err
}

// Clear deletes all existing properties from the table.
func (ps *PostgresSource) Clear(ctx context.Context) error {
	if _, err := ps.db.ExecContext(ctx, "DELETE FROM properties"); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

// Write replaces the table contents with records, in batches.
func (ps *PostgresSource) Write(ctx context.Context, records []models.PropertyRecord) error {
	if len(records) == 0 {
		return nil
	}

	if err := ps.Clear(ctx); err != nil {
		return err
	}

	const batchSize = 50
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		query, args := buildInsert(records[i:end])
		if _, err := ps.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("postgres: insert batch at %d: %w", i, err)
		}
	}
	return nil
}

// buildInsert returns a multi-row upsert statement for batch.
func buildInsert(batch []models.PropertyRecord) (string, []interface{}) {
	n := len(propertyColumns)
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*n)

	for idx, r := range batch {
		placeholders := make([]string, n)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", idx*n+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")

		var lat, lng sql.NullFloat64
		if r.Coordinates != nil {
			lat = sql.NullFloat64{Float64: r.Coordinates.Lat, Valid: true}
			lng = sql.NullFloat64{Float64: r.Coordinates.Lng, Valid: true}
		}
		valueArgs = append(valueArgs,
			r.ID, rawPriceText(r.RawPrice), lat, lng, r.City, r.Address, r.Title, r.ImageURL, r.Bedrooms, r.Bathrooms)
	}

	query := fmt.Sprintf(`
		INSERT INTO properties (%s)
		VALUES %s
		ON CONFLICT (id) DO UPDATE SET
			raw_price = EXCLUDED.raw_price,
			lat       = EXCLUDED.lat,
			lng       = EXCLUDED.lng,
			city      = EXCLUDED.city,
			address   = EXCLUDED.address,
			title     = EXCLUDED.title,
			image_url = EXCLUDED.image_url,
			bedrooms  = EXCLUDED.bedrooms,
			bathrooms = EXCLUDED.bathrooms
	`, strings.Join(propertyColumns, ", "), strings.Join(valueStrings, ","))

	return query, valueArgs
}

// FetchAll retrieves every stored property in insertion order.
func (ps *PostgresSource) FetchAll(ctx context.Context) ([]models.PropertyRecord, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT id, raw_price, lat, lng, city, address, title, image_url, bedrooms, bathrooms
		FROM properties
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var records []models.PropertyRecord
	for rows.Next() {
		var (
			r        models.PropertyRecord
			rawPrice string
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(
			&r.ID, &rawPrice, &lat, &lng, &r.City, &r.Address,
			&r.Title, &r.ImageURL, &r.Bedrooms, &r.Bathrooms,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		r.RawPrice = rawPrice
		if lat.Valid && lng.Valid {
			r.Coordinates = &models.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (ps *PostgresSource) Close() error {
	return ps.db.Close()
}
