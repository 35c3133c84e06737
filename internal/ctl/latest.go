package ctl

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"chatkat/pkg/store"
)

type latestOutput struct {
	CommunityID string `json:"community_id"`
	Found       bool   `json:"found"`
	TS          int64  `json:"ts,omitempty"`
	Time        string `json:"time,omitempty"`
}

func newLatestCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "latest <community>...",
		Short: "Show the newest recorded point of each community",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStore(func(ctx context.Context, s store.Store) error {
				res := make([]latestOutput, 0, len(args))
				for _, c := range args {
					ts, ok, err := s.Latest(ctx, c)
					if err != nil {
						return err
					}
					row := latestOutput{CommunityID: c, Found: ok}
					if ok {
						row.TS = ts
						row.Time = time.UnixMilli(ts).UTC().Format(time.RFC3339)
					}
					res = append(res, row)
				}
				if o.format == "json" {
					return writeJSON(out(cmd), res)
				}
				t := newTable(out(cmd), table.Row{"Community", "Latest", "Age"})
				for _, r := range res {
					if !r.Found {
						t.AppendRow(table.Row{r.CommunityID, "-", "-"})
						continue
					}
					t.AppendRow(table.Row{r.CommunityID, r.Time, humanize.Time(time.UnixMilli(r.TS))})
				}
				t.Render()
				return nil
			})
		},
	}
}
