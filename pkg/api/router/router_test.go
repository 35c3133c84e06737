package router

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func request(method, path string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	return ctx
}

func TestRouterMatchesParams(t *testing.T) {
	r := New()
	var got string
	r.GET("/v1/rooms/{room}/stats", func(ctx *fasthttp.RequestCtx) { got = Param(ctx, "room") })

	ctx := request("GET", "/v1/rooms/r42/stats")
	r.Handler(ctx)
	assert.Equal(t, "r42", got)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}

func TestRouterRoot(t *testing.T) {
	r := New()
	hit := false
	r.GET("/", func(*fasthttp.RequestCtx) { hit = true })
	r.Handler(request("GET", "/"))
	assert.True(t, hit)
}

func TestRouterNotFoundAndMethod(t *testing.T) {
	r := New()
	r.POST("/v1/events", func(*fasthttp.RequestCtx) {})
	r.NotFound(func(ctx *fasthttp.RequestCtx) { WriteJSONError(ctx, fasthttp.StatusNotFound, "not found") })

	ctx := request("GET", "/v1/events")
	r.Handler(ctx)
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())

	ctx = request("GET", "/v1/nothing")
	r.Handler(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	var body map[string]string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, "not found", body["error"])
}

func TestRouterEmptyParamDoesNotMatch(t *testing.T) {
	r := New()
	r.GET("/rooms/{room}", func(*fasthttp.RequestCtx) { t.Fatal("matched empty segment") })
	ctx := request("GET", "/rooms/")
	r.Handler(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}
