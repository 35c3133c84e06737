package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"chatkat/pkg/api/router"
	"chatkat/pkg/dispatch"
	"chatkat/pkg/platform"
	"chatkat/pkg/state/logger"
)

// enqueueTimeout bounds how long intake waits on a full queue.
const enqueueTimeout = 2 * time.Second

// PostEvent queues one platform event for the dispatcher.
func (h *Handlers) PostEvent(ctx *fasthttp.RequestCtx) {
	var ev platform.Event
	if err := json.Unmarshal(ctx.PostBody(), &ev); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid json")
		return
	}

	qctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	err := h.deps.Queue.Enqueue(qctx, ev)
	switch {
	case err == nil:
		router.WriteJSONStatus(ctx, fasthttp.StatusAccepted, map[string]interface{}{"queued": true, "depth": h.deps.Queue.QueueLen()})
	case errors.Is(err, platform.ErrMalformedEvent):
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrStopped):
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("event_queue_full", "kind", string(ev.Kind), "depth", h.deps.Queue.QueueLen())
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "queue full")
	default:
		logger.Error("event_enqueue_failed", "kind", string(ev.Kind), "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "enqueue failed")
	}
}
