package storage

import (
	"context"

	"property-map-search/models"
)

// PropertySource supplies the complete current candidate set of properties.
type PropertySource interface {
	FetchAll(ctx context.Context) ([]models.PropertyRecord, error)
}

// PropertyWriter persists raw property records (used to seed a source).
type PropertyWriter interface {
	Write(ctx context.Context, records []models.PropertyRecord) error
	Close() error
}

// SnapshotWriter exports a filtered result set.
type SnapshotWriter interface {
	WriteSnapshot(props []models.NormalizedProperty) error
	Close() error
}
