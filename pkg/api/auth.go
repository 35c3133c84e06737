package api

import (
	"crypto/subtle"
	"strings"

	"github.com/valyala/fasthttp"

	"chatkat/pkg/api/router"
	"chatkat/pkg/state/logger"
)

// publicPaths skip the token check.
var publicPaths = map[string]bool{
	"/admin/health": true,
}

// RequireToken rejects requests without the bearer token. An empty token
// disables the check.
func RequireToken(token string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			logger.Debug("http_request", "method", string(ctx.Method()), "path", string(ctx.Path()), "remote", ctx.RemoteAddr().String())
			if token == "" || publicPaths[string(ctx.Path())] {
				next(ctx)
				return
			}
			key := extractToken(ctx)
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(token)) != 1 {
				router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
				logger.Warn("request_unauthorized", "path", string(ctx.Path()), "remote", ctx.RemoteAddr().String())
				return
			}
			next(ctx)
		}
	}
}

// extractToken reads "Authorization: Bearer <token>" or X-API-Key.
func extractToken(ctx *fasthttp.RequestCtx) string {
	if auth := string(ctx.Request.Header.Peek("Authorization")); auth != "" {
		parts := strings.Fields(auth)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return strings.TrimSpace(string(ctx.Request.Header.Peek("X-API-Key")))
}
