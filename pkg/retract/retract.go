// Package retract turns deletion notices into tombstone entries.
package retract

import (
	"context"
	"errors"

	"chatkat/pkg/ingest"
	"chatkat/pkg/metrics"
	"chatkat/pkg/platform"
	"chatkat/pkg/state/logger"
	"chatkat/pkg/store"
)

type Outcome string

const (
	Retracted Outcome = "retracted"
	NotFound  Outcome = "not_found"
	Failed    Outcome = "failed"
)

type Handler struct {
	coord *ingest.Coordinator
	store store.Store
}

func New(c *ingest.Coordinator, s store.Store) *Handler {
	return &Handler{coord: c, store: s}
}

// Retract recovers the author of the deleted message and submits the same
// identity with Valid = 0 to the live batch. Deletions of messages never
// recorded are dropped.
func (h *Handler) Retract(ctx context.Context, d platform.DeleteEvent) Outcome {
	out := h.retract(ctx, d)
	metrics.Retractions.WithLabelValues(string(out)).Inc()
	return out
}

func (h *Handler) retract(ctx context.Context, d platform.DeleteEvent) Outcome {
	ts, err := d.Timestamp()
	if err != nil {
		logger.Warn("retraction_bad_notice", "community", d.CommunityID, "room", d.RoomID, "error", err)
		return Failed
	}
	e, ok := h.coord.Pending(d.CommunityID, d.RoomID, ts)
	if !ok {
		e, err = h.store.Lookup(ctx, d.CommunityID, d.RoomID, ts)
		if errors.Is(err, store.ErrNotFound) {
			logger.Debug("retraction_dropped_unknown_message", "community", d.CommunityID, "room", d.RoomID, "ts", ts)
			return NotFound
		}
		if err != nil {
			logger.Error("retraction_lookup_failed", "community", d.CommunityID, "room", d.RoomID, "ts", ts, "error", err)
			return Failed
		}
	}
	e.Valid = 0
	h.coord.Submit(ingest.Live, e)
	logger.Debug("retraction_submitted", "community", e.CommunityID, "room", e.RoomID, "author", e.AuthorID, "ts", e.TS)
	return Retracted
}
