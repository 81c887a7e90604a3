package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wpsync/internal/domain"
)

type RecordStore struct {
	db *sqlx.DB
}

func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db}
}

type recordRow struct {
	ID          int64     `db:"id"`
	ContentType string    `db:"content_type"`
	SourceID    string    `db:"source_id"`
	Status      string    `db:"status"`
	Title       string    `db:"title"`
	Fields      []byte    `db:"fields"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r recordRow) toDomain() (*domain.Record, error) {
	rec := &domain.Record{
		ID:          r.ID,
		ContentType: r.ContentType,
		SourceID:    r.SourceID,
		Status:      r.Status,
		Title:       r.Title,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.Fields) > 0 {
		if err := json.Unmarshal(r.Fields, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s/%s: %w", r.ContentType, r.SourceID, err)
		}
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]any)
	}
	return rec, nil
}

const selectRecord = `
	SELECT id, content_type, source_id, status, title, fields, created_at, updated_at
	FROM records
	WHERE content_type = $1 AND source_id = $2`

// FindOrCreate returns the record keyed by (contentType, sourceID),
// inserting an empty one first when missing. The unique constraint makes
// concurrent calls converge on one row.
func (s *RecordStore) FindOrCreate(ctx context.Context, contentType, sourceID string) (*domain.Record, bool, error) {
	exec := GetExecutor(ctx, s.db)

	query := `
		INSERT INTO records (content_type, source_id)
		VALUES ($1, $2)
		ON CONFLICT (content_type, source_id) DO NOTHING
		RETURNING id`

	created := true
	var id int64
	err := exec.QueryRowxContext(ctx, query, contentType, sourceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		created = false
	} else if err != nil {
		return nil, false, err
	}

	var row recordRow
	if err := sqlx.GetContext(ctx, exec, &row, selectRecord, contentType, sourceID); err != nil {
		return nil, false, err
	}

	rec, err := row.toDomain()
	if err != nil {
		return nil, false, err
	}
	return rec, created, nil
}

// Get returns nil without error when the record does not exist.
func (s *RecordStore) Get(ctx context.Context, contentType, sourceID string) (*domain.Record, error) {
	var row recordRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, selectRecord, contentType, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *RecordStore) Save(ctx context.Context, rec *domain.Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	if rec.Fields == nil {
		fields = []byte("{}")
	}

	query := `
		UPDATE records
		SET status = $1, title = $2, fields = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`

	err = GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		rec.Status,
		rec.Title,
		fields,
		rec.ID,
	).Scan(&rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("record %d vanished before save", rec.ID)
	}
	return err
}

// DeleteExcept removes every record of contentType whose source ID is not
// in keep and returns the removed source IDs. An empty keep removes all of
// them; callers guard against that.
func (s *RecordStore) DeleteExcept(ctx context.Context, contentType string, keep []string) ([]string, error) {
	query := `
		DELETE FROM records
		WHERE content_type = $1 AND NOT (source_id = ANY($2))
		RETURNING source_id`

	var deleted []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &deleted, query, contentType, pq.Array(keep))
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *RecordStore) DeleteOne(ctx context.Context, contentType, sourceID string) (bool, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM records WHERE content_type = $1 AND source_id = $2",
		contentType, sourceID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RecordStore) SetStatus(ctx context.Context, contentType, sourceID, status string) (bool, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE records SET status = $3, updated_at = NOW() WHERE content_type = $1 AND source_id = $2",
		contentType, sourceID, status,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
