package storage

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poimap/internal/models"
)

// HistoryStore records location fixes and the places returned for them.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore connects to databaseURL and checks that it is reachable.
func NewHistoryStore(ctx context.Context, databaseURL string) (*HistoryStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &HistoryStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *HistoryStore) Close() {
	s.pool.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS location_fixes (
        id TEXT PRIMARY KEY,
        device_id TEXT,
        latitude DOUBLE PRECISION NOT NULL,
        longitude DOUBLE PRECISION NOT NULL,
        accuracy DOUBLE PRECISION,
        recorded_at TIMESTAMPTZ NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS nearby_places (
        id SERIAL PRIMARY KEY,
        location TEXT NOT NULL,
        rank INTEGER NOT NULL,
        name TEXT NOT NULL,
        latitude DOUBLE PRECISION NOT NULL,
        longitude DOUBLE PRECISION NOT NULL,
        icon TEXT,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE INDEX IF NOT EXISTS nearby_places_location_idx ON nearby_places (location)`,
}

// EnsureSchema creates the history tables if needed.
func (s *HistoryStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// RecordFix stores fix; a fix already recorded under the same id is ignored.
func (s *HistoryStore) RecordFix(ctx context.Context, fix models.Fix) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO location_fixes (id, device_id, latitude, longitude, accuracy, recorded_at)
         VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		fix.ID, fix.DeviceID, fix.Latitude, fix.Longitude, fix.Accuracy, fix.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record fix %s: %w", fix.ID, err)
	}
	return nil
}

// RecordPlaces stores the places answered for location in a single batch.
func (s *HistoryStore) RecordPlaces(ctx context.Context, location string, places []models.Place) error {
	if len(places) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, p := range places {
		batch.Queue(
			`INSERT INTO nearby_places (location, rank, name, latitude, longitude, icon) VALUES ($1, $2, $3, $4, $5, $6)`,
			location, i, p.Name, p.Geometry.Location.Lat, p.Geometry.Location.Lng, p.Icon,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range places {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to record places for %s: %w", location, err)
		}
	}
	log.Printf("Recorded %d places for %s", len(places), location)
	return nil
}
