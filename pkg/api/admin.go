package api

import (
	"github.com/valyala/fasthttp"

	"chatkat/pkg/api/router"
	"chatkat/pkg/backfill"
	"chatkat/pkg/state/logger"
)

func (h *Handlers) Health(ctx *fasthttp.RequestCtx) {
	body := map[string]interface{}{"status": "ok", "version": h.deps.Version}
	if h.deps.State != nil {
		body["state"] = h.deps.State()
	}
	router.WriteJSONOk(ctx, body)
}

// Stats reports pending writes, queue depth and backfill progress.
func (h *Handlers) Stats(ctx *fasthttp.RequestCtx) {
	rooms := h.deps.Rooms.Snapshot()
	counts := map[string]int{}
	for _, r := range rooms {
		counts[r.State.String()]++
	}
	_ = router.WriteJSON(ctx, map[string]interface{}{
		"ingest":      h.deps.Ingest.Stats(),
		"queue_depth": h.deps.Queue.QueueLen(),
		"rooms":       counts,
		"room_states": roomsOrEmpty(rooms),
	})
}

// Flush writes every pending entry now.
func (h *Handlers) Flush(ctx *fasthttp.RequestCtx) {
	if err := h.deps.Ingest.Flush(ctx); err != nil {
		logger.Error("admin_flush_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "flush failed")
		return
	}
	logger.Info("admin_flush")
	router.WriteJSONOk(ctx, map[string]interface{}{"flushed": true})
}

func roomsOrEmpty(rs []backfill.RoomStatus) []backfill.RoomStatus {
	if rs == nil {
		return []backfill.RoomStatus{}
	}
	return rs
}
