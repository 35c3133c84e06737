// Package ranking answers ranking requests from the ledger.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chatkat/pkg/command"
	"chatkat/pkg/metrics"
	"chatkat/pkg/models"
	"chatkat/pkg/platform"
	"chatkat/pkg/state/logger"
	"chatkat/pkg/store"
)

// NotReadyText is answered while history is still being imported, or when
// the ledger cannot be read.
const NotReadyText = "Still catching up on this channel's history. Check back in a few."

type Readiness interface {
	IsReady(communityID, roomID string) bool
	IsCommunityReady(communityID string) bool
}

type Flusher interface {
	Flush(ctx context.Context) error
}

type Engine struct {
	ready        Readiness
	flusher      Flusher
	store        store.Store
	dir          platform.Directory
	labelWorkers int
}

func New(r Readiness, f Flusher, s store.Store, d platform.Directory, labelWorkers int) *Engine {
	if labelWorkers <= 0 {
		labelWorkers = 8
	}
	return &Engine{ready: r, flusher: f, store: s, dir: d, labelWorkers: labelWorkers}
}

// Ranked is one line of a report.
type Ranked struct {
	Rank  int    `json:"rank"`
	Label string `json:"label"`
	models.AuthorCount
}

// Answer renders the report text for spec.
func (e *Engine) Answer(ctx context.Context, spec models.QuerySpec) string {
	if spec.HelpOnly {
		metrics.Queries.WithLabelValues("help").Inc()
		return command.HelpText
	}
	rows, err := e.Rank(ctx, spec)
	if err != nil {
		return NotReadyText
	}
	return Render(rows)
}

var ErrNotReady = errors.New("history import not complete")

// Rank checks readiness, flushes pending writes and returns the ranked,
// labelled groups.
func (e *Engine) Rank(ctx context.Context, spec models.QuerySpec) ([]Ranked, error) {
	started := time.Now()
	defer func() { metrics.QueryDuration.Observe(time.Since(started).Seconds()) }()

	if !e.isReady(spec) {
		metrics.Queries.WithLabelValues("not_ready").Inc()
		logger.Debug("query_not_ready", "community", spec.CommunityID, "room", spec.RoomID, "scope", spec.Scope.String())
		return nil, ErrNotReady
	}
	if err := e.flusher.Flush(ctx); err != nil {
		metrics.Queries.WithLabelValues("flush_failed").Inc()
		logger.Warn("query_flush_failed", "community", spec.CommunityID, "room", spec.RoomID, "error", err)
		return nil, err
	}
	q := models.AggregateQuery{CommunityID: spec.CommunityID, SinceMs: spec.Since.UnixMilli()}
	if spec.Scope == models.ScopeRoom {
		q.RoomID = spec.RoomID
	}
	groups, err := e.store.Aggregate(ctx, q)
	if err != nil {
		metrics.Queries.WithLabelValues("aggregate_failed").Inc()
		logger.Error("query_aggregate_failed", "community", spec.CommunityID, "room", q.RoomID, "error", err)
		return nil, err
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Count > groups[j].Count })

	rows := make([]Ranked, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.labelWorkers)
	for i, grp := range groups {
		i, grp := i, grp
		rows[i] =Ranked{Rank: i + 1, AuthorCount: grp}
		g.Go(func() error {
			rows[i].Label = e.label(gctx, spec, grp.AuthorID)
			return nil
		})
	}
	_ = g.Wait()

	metrics.Queries.WithLabelValues(metrics.ResultOK).Inc()
	logger.Info("query_answered", "community", spec.CommunityID, "room", q.RoomID, "scope", spec.Scope.String(), "since", q.SinceMs, "groups", len(rows))
	return rows, nil
}

func (e *Engine) isReady(spec models.QuerySpec) bool {
	if !e.ready.IsReady(spec.CommunityID, spec.RoomID) {
		return false
	}
	if spec.Scope == models.ScopeCommunity {
		return e.ready.IsCommunityReady(spec.CommunityID)
	}
	return true
}

// label prefers a mention when revealing, then the community display name,
// then the global username, then the raw id.
func (e *Engine) label(ctx context.Context, spec models.QuerySpec, authorID string) string {
	if spec.RevealIdentities {
		return e.dir.Mention(authorID)
	}
	name, err := e.dir.DisplayName(ctx, spec.CommunityID, authorID)
	if err == nil && name != "" {
		return name
	}
	if err != nil && !errors.Is(err, platform.ErrNotMember) {
		logger.Debug("display_name_failed", "author", authorID, "error", err)
	}
	name, err = e.dir.Username(ctx, authorID)
	if err == nil && name != "" {
		return name
	}
	if err != nil {
		logger.Debug("username_failed", "author", authorID, "error", err)
	}
	return authorID
}

// Render formats rows one per line; no rows renders as "".
func Render(rows []Ranked) string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = fmt.Sprintf("%d. %s sent **%d** messages.", r.Rank, r.Label, r.Count)
	}
	return strings.Join(lines, "\n")
}
