package app

import (
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"

	"chatkat/pkg/api"
)

// startHTTP binds the listener and serves in a goroutine, returning a channel
// that delivers the serve error.
func (a *App) startHTTP() (<-chan error, error) {
	h := api.NewHandlers(api.Deps{
		Queue:   a.dispatcher,
		Ranker:  a.engine,
		Parser:  a.parser,
		Ingest:  a.coord,
		Rooms:   a.tracker,
		Version: a.version,
		State:   a.State,
	})

	const (
		readBufferSize       = 64 * 1024
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	a.srvFast = &fasthttp.Server{
		Handler:              h.Handler(a.cfg.Server.AdminToken),
		Name:                 "chatkat",
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   int(a.cfg.Server.MaxBodySize.Int64()),
		ReadTimeout:          a.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:         a.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	if a.ln == nil {
		ln, err := net.Listen("tcp", a.cfg.Addr())
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", a.cfg.Addr(), err)
		}
		a.ln = ln
	}
	ln := a.ln

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srvFast.Serve(ln)
	}()
	return errCh, nil
}
