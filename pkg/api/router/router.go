// Package router is a small fasthttp router with {param} path segments.
package router

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// Router dispatches by method and matches parameterised paths like
// /v1/rooms/{room}. Routes are tried in registration order.
type Router struct {
	routes   map[string][]route
	notFound fasthttp.RequestHandler
}

type route struct {
	pattern []string // "{name}" entries are parameters
	handler fasthttp.RequestHandler
}

func New() *Router {
	return &Router{routes: make(map[string][]route)}
}

func (r *Router) GET(path string, h fasthttp.RequestHandler)  { r.add(fasthttp.MethodGet, path, h) }
func (r *Router) POST(path string, h fasthttp.RequestHandler) { r.add(fasthttp.MethodPost, path, h) }

// NotFound registers a handler for unmatched routes.
func (r *Router) NotFound(h fasthttp.RequestHandler) { r.notFound = h }

func (r *Router) add(method, path string, h fasthttp.RequestHandler) {
	r.routes[method] = append(r.routes[method], route{pattern: split(path), handler: h})
}

// Handler satisfies the fasthttp.Server handler interface.
func (r *Router) Handler(ctx *fasthttp.RequestCtx) {
	parts := split(string(ctx.Path()))
	for _, rt := range r.routes[string(ctx.Method())] {
		if params, ok := rt.bind(parts); ok {
			for k, v := range params {
				ctx.SetUserValue(k, v)
			}
			rt.handler(ctx)
			return
		}
	}
	for method, list := range r.routes {
		if method == string(ctx.Method()) {
			continue
		}
		for _, rt := range list {
			if _, ok := rt.bind(parts); ok {
				WriteJSONError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
				return
			}
		}
	}
	if r.notFound != nil {
		r.notFound(ctx)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNotFound)
}

// split turns "/a/b/" into ["a", "b", ""]; the root path is no segments.
func split(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func paramName(seg string) (string, bool) {
	if len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

// bind matches parts against the pattern; parameters never match empty segments.
func (rt route) bind(parts []string) (map[string]string, bool) {
	if len(parts) != len(rt.pattern) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range rt.pattern {
		name, isParam := paramName(seg)
		switch {
		case !isParam && seg != parts[i]:
			return nil, false
		case isParam && parts[i] == "":
			return nil, false
		case isParam:
			if params == nil {
				params = make(map[string]string, 1)
			}
			params[name] = parts[i]
		}
	}
	return params, true
}

// Param returns the path parameter name, or "".
func Param(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}
