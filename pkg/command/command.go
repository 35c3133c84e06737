// Package command recognizes ranking requests and parses their flags.
package command

import (
	"strings"
	"time"

	"chatkat/pkg/models"
)

const DefaultTrigger = "&kat"

// HelpText answers "help" requests.
const HelpText = "**Kat counts messages.**\n" +
	"Usage: `&kat [flags]`\n" +
	"`-day` `-week` `-month` `-year`: only count messages since then (last one wins)\n" +
	"`-guild` or `-server`: rank the whole server instead of this channel\n" +
	"`-tags`: mention members instead of showing names (server owner only)\n" +
	"`-help`: show this message"

// Parser turns command text into a QuerySpec. Parsing never fails:
// unknown tokens are ignored.
type Parser struct {
	Trigger string
	Now     func() time.Time
}

func NewParser(trigger string) *Parser {
	if trigger == "" {
		trigger = DefaultTrigger
	}
	return &Parser{Trigger: strings.ToLower(trigger), Now: time.Now}
}

// IsCommand reports whether text starts with the trigger, ignoring case.
// The trigger may be followed directly by a flag, as in "&kat-week".
func (p *Parser) IsCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	_, ok := p.cutTrigger(strings.ToLower(fields[0]))
	return ok
}

// cutTrigger strips the trigger from a lowercased token and returns what
// follows it.
func (p *Parser) cutTrigger(tok string) (string, bool) {
	rest, ok := strings.CutPrefix(tok, p.Trigger)
	if !ok || (rest != "" && rest[0] != '-') {
		return "", false
	}
	return rest, true
}

// Parse reads the flags of raw. Time windows are computed against the
// parser's clock now; when several are given the last one wins.
func (p *Parser) Parse(raw string, authority models.Authority) models.QuerySpec {
	spec := models.QuerySpec{Scope: models.ScopeRoom, Since: models.Epoch}
	now := p.Now()

	tokens := strings.Fields(strings.ToLower(raw))
	if len(tokens) > 0 {
		if rest, ok := p.cutTrigger(tokens[0]); ok {
			tokens[0] = rest
		}
	}
	for _, tok := range tokens {
		switch strings.TrimPrefix(tok, "-") {
		case "day":
			spec.Since = now.AddDate(0, 0, -1)
		case "week":
			spec.Since = now.AddDate(0, 0, -7)
		case "month":
			spec.Since = now.AddDate(0, -1, 0)
		case "year":
			spec.Since = now.AddDate(-1, 0, 0)
		case "guild", "server":
			spec.Scope = models.ScopeCommunity
		case "tag", "tags":
			if authority == models.AuthorityOwner {
				spec.RevealIdentities = true
			}
		case "help":
			spec.HelpOnly = true
		}
	}
	return spec
}
