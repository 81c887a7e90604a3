package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"wpsync/internal/domain"
)

// APIClient fetches a decoded JSON payload. A nil page fetches the
// resource unpaged.
type APIClient interface {
	Fetch(ctx context.Context, path string, page *int) (any, error)
}

type RecordStore interface {
	FindOrCreate(ctx context.Context, contentType, sourceID string) (*domain.Record, bool, error)
	Save(ctx context.Context, rec *domain.Record) error
	DeleteExcept(ctx context.Context, contentType string, keep []string) ([]string, error)
	DeleteOne(ctx context.Context, contentType, sourceID string) (bool, error)
	SetStatus(ctx context.Context, contentType, sourceID, status string) (bool, error)
}

type SyncStateStore interface {
	Get(ctx context.Context, contentType string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, action domain.Action, rec *domain.Record) error
}
