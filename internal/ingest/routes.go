package ingest

import (
	"context"

	"github.com/rs/zerolog"

	"colorum/internal/metrics"
	"colorum/internal/model"
	"colorum/internal/store"
)

// RouteReconciler keeps the local route registry in sync with the
// authoritative route list.
type RouteReconciler struct {
	store  store.Store
	logger zerolog.Logger
}

func NewRouteReconciler(s store.Store, logger zerolog.Logger) *RouteReconciler {
	return &RouteReconciler{store: s, logger: logger.With().Str("component", "reconcile").Logger()}
}

// Apply diffs the authoritative set against persisted routes: unknown ids
// become bare route records, ids no longer named are deleted. Input order
// and duplicates do not affect the final set. Deleting a route does not
// delete its GPX file; the orphan is logged, not cleaned up.
func (r *RouteReconciler) Apply(ctx context.Context, refs []model.RouteRef) (created []string, deleted []model.Route, err error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.RouteID)
	}
	created, deleted, err = r.store.ReconcileRoutes(ctx, ids)
	if err != nil {
		r.logger.Error().Err(err).Msg("route reconciliation failed")
		return nil, nil, err
	}
	metrics.RouteChanges.WithLabelValues("created").Add(float64(len(created)))
	metrics.RouteChanges.WithLabelValues("deleted").Add(float64(len(deleted)))
	for _, rt := range deleted {
		if rt.GPXFilename != "" {
			r.logger.Warn().Str("route", rt.ID).Str("file", rt.GPXFilename).Msg("route deleted, GPX file orphaned")
		}
	}
	if len(created) > 0 || len(deleted) > 0 {
		r.logger.Info().Int("created", len(created)).Int("deleted", len(deleted)).Msg("route registry reconciled")
	}
	return created, deleted, nil
}
