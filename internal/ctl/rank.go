package ctl

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"chatkat/pkg/command"
	"chatkat/pkg/models"
	"chatkat/pkg/platform"
	"chatkat/pkg/ranking"
	"chatkat/pkg/store"
)

// offline answers as if every room were imported and nothing were pending.
type offline struct{}

func (offline) IsReady(string, string) bool  { return true }
func (offline) IsCommunityReady(string) bool { return true }
func (offline) Flush(context.Context) error  { return nil }

// names labels authors from the config file, falling back to the raw id.
type names map[string]string

func (n names) Mention(authorID string) string { return platform.Mention(authorID) }

func (n names) DisplayName(_ context.Context, _, authorID string) (string, error) {
	if v, ok := n[authorID]; ok {
		return v, nil
	}
	return "", platform.ErrNotMember
}

func (n names) Username(context.Context, string) (string, error) { return "", nil }

func newRankCmd(o *options) *cobra.Command {
	var community, room, flags string

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank authors by message count",
		Long: `rank runs the same query as the chat command. --flags takes the
command flags, e.g. "-week -guild".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec := command.NewParser("").Parse(flags, models.AuthorityOwner)
			spec.CommunityID, spec.RoomID = community, room
			if spec.Scope == models.ScopeRoom && room == "" {
				return fmt.Errorf("--room is required unless --flags contains -guild")
			}
			return o.withStore(func(ctx context.Context, s store.Store) error {
				eng := ranking.New(offline{}, offline{}, s, names(o.cfg.Names), 4)
				rows, err := eng.Rank(ctx, spec)
				if err != nil {
					return err
				}
				if o.format == "json" {
					if rows == nil {
						rows = []ranking.Ranked{}
					}
					return writeJSON(out(cmd), rows)
				}
				t := newTable(out(cmd), table.Row{"#", "Author", "Messages"})
				var total int64
				for _, r := range rows {
					t.AppendRow(table.Row{r.Rank, r.Label, humanize.Comma(r.Count)})
					total += r.Count
				}
				t.AppendFooter(table.Row{"", fmt.Sprintf("%s (%s)", spec.Scope, sinceLabel(spec)), humanize.Comma(total)})
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&community, "community", "", "community id")
	cmd.Flags().StringVar(&room, "room", "", "room id")
	cmd.Flags().StringVar(&flags, "flags", "", `command flags, e.g. "-week -guild"`)
	_ = cmd.MarkFlagRequired("community")
	return cmd
}

func sinceLabel(spec models.QuerySpec) string {
	if spec.Since.Equal(models.Epoch) {
		return "all time"
	}
	return "since " + humanize.Time(spec.Since)
}
