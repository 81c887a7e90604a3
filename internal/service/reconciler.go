package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wpsync/internal/config"
	"wpsync/internal/domain"
	"wpsync/internal/registry"
)

// Reconciler keeps local records in line with the upstream API, one
// content type at a time. It holds no state between calls.
type Reconciler struct {
	client    APIClient
	records   RecordStore
	syncState SyncStateStore
	txManager TransactionManager
	publisher Publisher
	registry  *registry.Registry
	logger    *slog.Logger
	config    config.SyncConfig
}

func NewReconciler(
	client APIClient,
	records RecordStore,
	syncState SyncStateStore,
	txManager TransactionManager,
	publisher Publisher,
	reg *registry.Registry,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *Reconciler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = config.DefaultMaxPages
	}
	return &Reconciler{
		client:    client,
		records:   records,
		syncState: syncState,
		txManager: txManager,
		publisher: publisher,
		registry:  reg,
		logger:    logger.With("component", "reconciler"),
		config:    cfg,
	}
}

// SyncOne fetches a single item and creates or updates its record. A
// recognized error payload yields OutcomeNotFound and leaves the store alone.
func (r *Reconciler) SyncOne(ctx context.Context, contentType, id string, preview bool) (domain.Outcome, error) {
	ct, err := r.collection(contentType)
	if err != nil {
		return 0, err
	}

	path := ct.Path + "/" + id
	if preview {
		path = ct.Path + "/preview/" + id
	}

	payload, err := r.client.Fetch(ctx, path, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", path, err)
	}

	if isNotFoundPayload(payload) {
		r.logger.Info("item not found upstream", "content_type", ct.Name, "id", id, "preview", preview)
		return domain.OutcomeNotFound, nil
	}

	item, ok := asItem(payload)
	if !ok {
		return 0, fmt.Errorf("fetch %s: unexpected payload %T", path, payload)
	}

	return r.upsert(ctx, ct, id, item)
}

// SyncAll runs a full pass, paginated or not depending on the content type.
func (r *Reconciler) SyncAll(ctx context.Context, contentType string) (*domain.SyncStats, error) {
	ct, err := r.collection(contentType)
	if err != nil {
		return nil, err
	}
	if ct.Paginated {
		return r.syncPaginated(ctx, ct)
	}
	return r.syncFlat(ctx, ct)
}

// SyncAllPaginated fetches pages 0, 1, 2, ... until an empty page or the
// page cap, upserts every item and deletes the records not seen.
func (r *Reconciler) SyncAllPaginated(ctx context.Context, contentType string) (*domain.SyncStats, error) {
	ct, err := r.collection(contentType)
	if err != nil {
		return nil, err
	}
	return r.syncPaginated(ctx, ct)
}

// SyncAllFlat is SyncAllPaginated with exactly one unpaged fetch.
func (r *Reconciler) SyncAllFlat(ctx context.Context, contentType string) (*domain.SyncStats, error) {
	ct, err := r.collection(contentType)
	if err != nil {
		return nil, err
	}
	return r.syncFlat(ctx, ct)
}

// SyncOptions maps the singleton options resource onto its well-known record.
func (r *Reconciler) SyncOptions(ctx context.Context) (domain.Outcome, error) {
	ct, err := r.registry.Get(domain.OptionsContentType)
	if err != nil {
		return 0, err
	}

	payload, err := r.client.Fetch(ctx, ct.Path, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", ct.Path, err)
	}

	if isNotFoundPayload(payload) {
		r.logger.Info("options not found upstream", "path", ct.Path)
		return domain.OutcomeNotFound, nil
	}

	item, ok := asItem(payload)
	if !ok {
		return 0, fmt.Errorf("fetch %s: unexpected payload %T", ct.Path, payload)
	}

	return r.upsert(ctx, ct, domain.OptionsSourceID, item)
}

// Purge deletes the record with the given source ID. A missing record is
// logged and reported as OutcomeNotFound.
func (r *Reconciler) Purge(ctx context.Context, contentType, id string) (domain.Outcome, error) {
	ct, err := r.collection(contentType)
	if err != nil {
		return 0, err
	}

	found, err := r.records.DeleteOne(ctx, ct.Name, id)
	if err != nil {
		return 0, fmt.Errorf("delete %s/%s: %w", ct.Name, id, err)
	}
	if !found {
		r.logger.Warn("purge: record not found locally", "content_type", ct.Name, "id", id)
		return domain.OutcomeNotFound, nil
	}

	r.publish(ctx, domain.ActionDelete, &domain.Record{ContentType: ct.Name, SourceID: id})
	r.logger.Info("record purged", "content_type", ct.Name, "id", id)
	return domain.OutcomeDeleted, nil
}

// Unpublish sets the record status to draft. A missing record is logged
// and reported as OutcomeNotFound.
func (r *Reconciler) Unpublish(ctx context.Context, contentType, id string) (domain.Outcome, error) {
	ct, err := r.collection(contentType)
	if err != nil {
		return 0, err
	}

	found, err := r.records.SetStatus(ctx, ct.Name, id, domain.StatusDraft)
	if err != nil {
		return 0, fmt.Errorf("unpublish %s/%s: %w", ct.Name, id, err)
	}
	if !found {
		r.logger.Warn("unpublish: record not found locally", "content_type", ct.Name, "id", id)
		return domain.OutcomeNotFound, nil
	}

	r.publish(ctx, domain.ActionUnpublish, &domain.Record{ContentType: ct.Name, SourceID: id, Status: domain.StatusDraft})
	r.logger.Info("record unpublished", "content_type", ct.Name, "id", id)
	return domain.OutcomeUnpublished, nil
}

// SyncEverything runs a full pass for every collection type and then the
// options. A failing type does not stop the others.
func (r *Reconciler) SyncEverything(ctx context.Context) ([]*domain.SyncStats, error) {
	var (
		all  []*domain.SyncStats
		errs []error
	)

	for _, ct := range r.registry.Collections() {
		stats, err := r.SyncAll(ctx, ct.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", ct.Name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		all = append(all, stats)
	}

	if _, err := r.registry.Get(domain.OptionsContentType); err == nil && ctx.Err() == nil {
		if _, err := r.SyncOptions(ctx); err != nil {
			errs = append(errs, fmt.Errorf("sync options: %w", err))
		}
	}

	return all, errors.Join(errs...)
}

func (r *Reconciler) collection(name string) (*registry.ContentType, error) {
	ct, err := r.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if ct.Singleton {
		return nil, fmt.Errorf("content type %q is a singleton", name)
	}
	return ct, nil
}

func (r *Reconciler) syncPaginated(ctx context.Context, ct *registry.ContentType) (*domain.SyncStats, error) {
	start := time.Now()
	stats := &domain.SyncStats{ContentType: ct.Name}
	seen := make(map[string]struct{})

	r.logger.Info("starting paginated sync", "content_type", ct.Name, "max_pages", r.config.MaxPages)

	for page := 0; ; page++ {
		if page >= r.config.MaxPages {
			stats.Truncated = true
			break
		}

		p := page
		payload, err := r.client.Fetch(ctx, ct.Path, &p)
		if err != nil {
			return stats, fmt.Errorf("fetch %s page %d: %w", ct.Path, page, err)
		}
		stats.Pages++

		items, err := asCollection(payload)
		if err != nil {
			return stats, fmt.Errorf("fetch %s page %d: %w", ct.Path, page, err)
		}

		r.logger.Debug("fetched page", "content_type", ct.Name, "page", page, "items", len(items))

		if len(items) == 0 {
			break
		}
		r.upsertAll(ctx, ct, items, seen, stats)
	}

	return r.finish(ctx, ct, seen, stats, start)
}

func (r *Reconciler) syncFlat(ctx context.Context, ct *registry.ContentType) (*domain.SyncStats, error) {
	start := time.Now()
	stats := &domain.SyncStats{ContentType: ct.Name}
	seen := make(map[string]struct{})

	r.logger.Info("starting flat sync", "content_type", ct.Name)

	payload, err := r.client.Fetch(ctx, ct.Path, nil)
	if err != nil {
		return stats, fmt.Errorf("fetch %s: %w", ct.Path, err)
	}
	stats.Pages++

	items, err := asCollection(payload)
	if err != nil {
		return stats, fmt.Errorf("fetch %s: %w", ct.Path, err)
	}
	r.upsertAll(ctx, ct, items, seen, stats)

	return r.finish(ctx, ct, seen, stats, start)
}

func (r *Reconciler) upsertAll(ctx context.Context, ct *registry.ContentType, items []any, seen map[string]struct{}, stats *domain.SyncStats) {
	for _, raw := range items {
		stats.Fetched++

		item, ok := raw.(map[string]any)
		if !ok {
			stats.Errors++
			r.logger.Warn("skipping non-object item", "content_type", ct.Name, "type", fmt.Sprintf("%T", raw))
			continue
		}

		id, ok := sourceID(item)
		if !ok {
			stats.Errors++
			r.logger.Warn("skipping item without id", "content_type", ct.Name)
			continue
		}
		// Seen even if the write below fails: the item exists upstream.
		seen[id] = struct{}{}

		outcome, err := r.upsert(ctx, ct, id, item)
		if err != nil {
			stats.Errors++
			r.logger.Error("failed to save item", "content_type", ct.Name, "id", id, "error", err)
			continue
		}
		if outcome == domain.OutcomeCreated {
			stats.Created++
		} else {
			stats.Updated++
		}
	}
}

// finish deletes unseen records and records the pass in the sync state.
func (r *Reconciler) finish(ctx context.Context, ct *registry.ContentType, seen map[string]struct{}, stats *domain.SyncStats, start time.Time) (*domain.SyncStats, error) {
	if stats.Truncated {
		r.logger.Warn("page cap reached, collection may be incomplete",
			"content_type", ct.Name,
			"max_pages", r.config.MaxPages,
			"skip_delete", r.config.SkipDeleteOnTruncation,
		)
	}

	switch {
	case len(seen) == 0:
		r.logger.Warn("no items fetched, skipping deletion", "content_type", ct.Name)
	case stats.Truncated && r.config.SkipDeleteOnTruncation:
		r.logger.Warn("truncated pass, skipping deletion", "content_type", ct.Name)
	default:
		keep := make([]string, 0, len(seen))
		for id := range seen {
			keep = append(keep, id)
		}

		deleted, err := r.records.DeleteExcept(ctx, ct.Name, keep)
		if err != nil {
			return stats, fmt.Errorf("delete stale %s records: %w", ct.Name, err)
		}
		stats.Deleted = len(deleted)

		for _, id := range deleted {
			r.publish(ctx, domain.ActionDelete, &domain.Record{ContentType: ct.Name, SourceID: id})
		}
	}

	if err := r.updateSyncState(ctx, ct.Name, len(seen), stats); err != nil {
		return stats, fmt.Errorf("update sync state: %w", err)
	}

	stats.Duration = time.Since(start)

	r.logger.Info("sync completed",
		"content_type", ct.Name,
		"pages", stats.Pages,
		"fetched", stats.Fetched,
		"created", stats.Created,
		"updated", stats.Updated,
		"deleted", stats.Deleted,
		"errors", stats.Errors,
		"truncated", stats.Truncated,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (r *Reconciler) upsert(ctx context.Context, ct *registry.ContentType, id string, item map[string]any) (domain.Outcome, error) {
	var (
		rec     *domain.Record
		created bool
	)

	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		rec, created, err = r.records.FindOrCreate(txCtx, ct.Name, id)
		if err != nil {
			return fmt.Errorf("find or create: %w", err)
		}

		ct.Fields.Apply(rec, item)

		if err := r.records.Save(txCtx, rec); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert %s/%s: %w", ct.Name, id, err)
	}

	if created {
		r.publish(ctx, domain.ActionCreate, rec)
		return domain.OutcomeCreated, nil
	}
	r.publish(ctx, domain.ActionUpdate, rec)
	return domain.OutcomeUpdated, nil
}

func (r *Reconciler) publish(ctx context.Context, action domain.Action, rec *domain.Record) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, action, rec); err != nil {
		r.logger.Error("failed to publish change",
			"action", action,
			"content_type", rec.ContentType,
			"id", rec.SourceID,
			"error", err,
		)
	}
}

func (r *Reconciler) updateSyncState(ctx context.Context, contentType string, seen int, stats *domain.SyncStats) error {
	state, err := r.syncState.Get(ctx, contentType)
	if err != nil {
		return err
	}

	state.ContentType = contentType
	state.LastSyncedAt = time.Now()
	state.LastSeen = int64(seen)
	state.TotalSynced += int64(stats.Created + stats.Updated)

	return r.syncState.Update(ctx, state)
}

// asCollection accepts an array payload. A recognized not-found payload
// counts as an empty collection.
func asCollection(payload any) ([]any, error) {
	if isNotFoundPayload(payload) {
		return nil, nil
	}
	items, ok := payload.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array payload, got %T", payload)
	}
	return items, nil
}
