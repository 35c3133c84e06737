package router

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

type errorBody struct {
	Error string `json:"error"`
}

// WriteJSON encodes data as the response body.
func WriteJSON(ctx *fasthttp.RequestCtx, data interface{}) error {
	ctx.SetContentType("application/json")
	return json.NewEncoder(ctx).Encode(data)
}

// WriteJSONStatus sets status and encodes data.
func WriteJSONStatus(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	ctx.SetStatusCode(status)
	_ = WriteJSON(ctx, data)
}

// WriteJSONError writes {"error": message} with status.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	WriteJSONStatus(ctx, status, errorBody{Error: message})
}

// WriteJSONOk writes a 200 response from a loose map.
func WriteJSONOk(ctx *fasthttp.RequestCtx, data map[string]interface{}) {
	WriteJSONStatus(ctx, fasthttp.StatusOK, data)
}
