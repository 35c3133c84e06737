package ctl

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"chatkat/pkg/models"
	"chatkat/pkg/store"
)

func newEntriesCmd(o *options) *cobra.Command {
	var (
		community, room string
		since           time.Duration
		limit           int
	)

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List raw ledger entries oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := models.AggregateQuery{CommunityID: community, RoomID: room}
			if since > 0 {
				q.SinceMs = time.Now().Add(-since).UnixMilli()
			}
			return o.withStore(func(ctx context.Context, s store.Store) error {
				entries, err := s.Entries(ctx, q, limit)
				if err != nil {
					return err
				}
				if o.format == "json" {
					if entries == nil {
						entries = []models.Entry{}
					}
					return writeJSON(out(cmd), entries)
				}
				t := newTable(out(cmd), table.Row{"Room", "Author", "Time", "TS", "Valid"})
				for _, e := range entries {
					t.AppendRow(table.Row{e.RoomID, e.AuthorID, e.Time().Format(time.RFC3339), e.TS, e.Valid == 1})
				}
				t.AppendFooter(table.Row{"", "", "", "entries", fmt.Sprint(len(entries))})
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&community, "community", "", "community id")
	cmd.Flags().StringVar(&room, "room", "", "room id (default: whole community)")
	cmd.Flags().DurationVar(&since, "since", 0, "only entries newer than this, e.g. 168h")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries; 0 for all")
	_ = cmd.MarkFlagRequired("community")
	return cmd
}
