package api

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	"chatkat/pkg/api/router"
	"chatkat/pkg/command"
	"chatkat/pkg/models"
	"chatkat/pkg/ranking"
	"chatkat/pkg/store/keys"
)

type QueryRequest struct {
	CommunityID string `json:"community_id"`
	RoomID      string `json:"room_id"`
	Text        string `json:"text"`
	// Authority is "owner" or "member".
	Authority string `json:"authority"`
}

type QueryResponse struct {
	Ready  bool             `json:"ready"`
	Scope  string           `json:"scope,omitempty"`
	Since  int64            `json:"since,omitempty"`
	Rows   []ranking.Ranked `json:"rows"`
	Report string           `json:"report"`
}

// PostQuery answers a ranking request without going through the platform.
func (h *Handlers) PostQuery(ctx *fasthttp.RequestCtx) {
	var req QueryRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid json")
		return
	}
	if err := keys.ValidateID("community", req.CommunityID); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	if err := keys.ValidateID("room", req.RoomID); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	spec := h.deps.Parser.Parse(req.Text, models.ParseAuthority(req.Authority))
	spec.CommunityID, spec.RoomID = req.CommunityID, req.RoomID
	if spec.HelpOnly {
		router.WriteJSONStatus(ctx, fasthttp.StatusOK, QueryResponse{Ready: true, Rows: []ranking.Ranked{}, Report: command.HelpText})
		return
	}

	rows, err := h.deps.Ranker.Rank(ctx, spec)
	switch {
	case errors.Is(err, ranking.ErrNotReady):
		router.WriteJSONStatus(ctx, fasthttp.StatusOK, QueryResponse{Rows: []ranking.Ranked{}, Report: ranking.NotReadyText})
		return
	case err != nil:
		router.WriteJSONStatus(ctx, fasthttp.StatusServiceUnavailable, QueryResponse{Rows: []ranking.Ranked{}, Report: ranking.NotReadyText})
		return
	}
	if rows == nil {
		rows = []ranking.Ranked{}
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, QueryResponse{
		Ready:  true,
		Scope:  spec.Scope.String(),
		Since:  spec.Since.UnixMilli(),
		Rows:   rows,
		Report: ranking.Render(rows),
	})
}
