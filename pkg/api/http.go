// Package api exposes event intake, direct queries and admin endpoints over
// fasthttp.
package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"chatkat/pkg/api/router"
	"chatkat/pkg/backfill"
	"chatkat/pkg/command"
	"chatkat/pkg/ingest"
	"chatkat/pkg/models"
	"chatkat/pkg/platform"
	"chatkat/pkg/ranking"
)

// Queue accepts platform events for asynchronous handling.
type Queue interface {
	Enqueue(ctx context.Context, ev platform.Event) error
	QueueLen() int
}

// Ranker answers ranking requests.
type Ranker interface {
	Rank(ctx context.Context, spec models.QuerySpec) ([]ranking.Ranked, error)
}

// Ingest is the write side the admin routes inspect and flush.
type Ingest interface {
	Flush(ctx context.Context) error
	Stats() ingest.Stats
}

// Rooms reports backfill progress.
type Rooms interface {
	Snapshot() []backfill.RoomStatus
}

type Deps struct {
	Queue   Queue
	Ranker  Ranker
	Parser  *command.Parser
	Ingest  Ingest
	Rooms   Rooms
	Version string
	// State reports the daemon lifecycle phase; optional.
	State func() string
}

// Handlers holds the route handlers and their dependencies.
type Handlers struct {
	deps Deps
}

func NewHandlers(deps Deps) *Handlers {
	if deps.Parser == nil {
		deps.Parser = command.NewParser(command.DefaultTrigger)
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handlers{deps: deps}
}

// wrapHTTPHandler adapts a net/http handler to fasthttp.
func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

// RegisterRoutes wires all API routes onto the provided router.
func (h *Handlers) RegisterRoutes(r *router.Router) {
	// bridge intake
	r.POST("/v1/events", h.PostEvent)
	r.POST("/v1/query", h.PostQuery)

	// admin
	r.GET("/admin/health", h.Health)
	r.GET("/admin/stats", h.Stats)
	r.POST("/admin/flush", h.Flush)
	r.GET("/admin/debug/prometheus", wrapHTTPHandler(promhttp.Handler()))

	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	})
}

// Handler returns the routed handler wrapped with the auth middleware.
func (h *Handlers) Handler(adminToken string) fasthttp.RequestHandler {
	r := router.New()
	h.RegisterRoutes(r)
	return RequireToken(adminToken)(r.Handler)
}
