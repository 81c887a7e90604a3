package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"wpsync/internal/domain"
)

type SyncStateStore struct {
	db *sqlx.DB
}

func NewSyncStateStore(db *sqlx.DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

func (s *SyncStateStore) Get(ctx context.Context, contentType string) (*domain.SyncState, error) {
	var state domain.SyncState
	query := `
		SELECT id, content_type, last_synced_at, last_seen, total_synced
		FROM sync_state
		WHERE content_type = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, contentType)
	if errors.Is(err, sql.ErrNoRows) {
		// Return empty state for types never synced
		return &domain.SyncState{
			ContentType:  contentType,
			LastSyncedAt: time.Time{},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *SyncStateStore) Update(ctx context.Context, state *domain.SyncState) error {
	query := `
		INSERT INTO sync_state (content_type, last_synced_at, last_seen, total_synced)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_type) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			last_seen = EXCLUDED.last_seen,
			total_synced = EXCLUDED.total_synced`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.ContentType,
		state.LastSyncedAt,
		state.LastSeen,
		state.TotalSynced,
	)
	return err
}
