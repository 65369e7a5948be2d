package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound reports a lookup for a record that does not exist.
var ErrNotFound = errors.New("storage: record not found")

// Repository is a minimal generic data-access layer over one entity kind:
// create, get by key, get all. Nothing here updates or deletes.
type Repository[T any] struct {
	db *gorm.DB
}

// NewRepository wraps an open gorm handle.
func NewRepository[T any](db *gorm.DB) *Repository[T] {
	return &Repository[T]{db: db}
}

// Create inserts the record and returns it with its generated key.
func (r *Repository[T]) Create(ctx context.Context, record *T) (*T, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return record, nil
}

// Get fetches one record by primary key.
func (r *Repository[T]) Get(ctx context.Context, pk uuid.UUID) (*T, error) {
	var out T
	err := r.db.WithContext(ctx).First(&out, "pk = ?", pk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &out, nil
}

// GetAll fetches every record, oldest first.
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	var out []T
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("get all records: %w", err)
	}
	return out, nil
}
