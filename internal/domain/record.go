package domain

import "time"

const (
	// StatusDraft is the status written by an unpublish.
	StatusDraft = "draft"

	// OptionsContentType and OptionsSourceID identify the single record
	// holding the site options resource.
	OptionsContentType = "options"
	OptionsSourceID    = "options"
)

// Record is the local copy of one upstream content item.
type Record struct {
	ID          int64          `db:"id" json:"id"`
	ContentType string         `db:"content_type" json:"content_type"`
	SourceID    string         `db:"source_id" json:"source_id"`
	Status      string         `db:"status" json:"status"`
	Title       string         `db:"title" json:"title"`
	Fields      map[string]any `db:"-" json:"fields"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Outcome reports how a single-record operation ended.
type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeUpdated
	OutcomeDeleted
	OutcomeUnpublished
	// OutcomeNotFound means the item is missing upstream or locally.
	// It is a normal result, not a failure.
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeUnpublished:
		return "unpublished"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Action names a change applied to a local record.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionUnpublish Action = "unpublish"
)
