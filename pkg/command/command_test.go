package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chatkat/pkg/models"
)

var fixedNow = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

func newTestParser() *Parser {
	p := NewParser("")
	p.Now = func() time.Time { return fixedNow }
	return p
}

func TestIsCommand(t *testing.T) {
	p := newTestParser()
	assert.True(t, p.IsCommand("&kat"))
	assert.True(t, p.IsCommand("&Kat -week"))
	assert.True(t, p.IsCommand("  &KAT"))
	assert.False(t, p.IsCommand("hello &kat"))
	assert.False(t, p.IsCommand("&katz"))
	assert.True(t, p.IsCommand("&Kat-week"))
	assert.False(t, p.IsCommand(""))
}

func TestDefaults(t *testing.T) {
	spec := newTestParser().Parse("&kat", models.AuthorityMember)
	assert.Equal(t, models.ScopeRoom, spec.Scope)
	assert.Equal(t, models.Epoch, spec.Since)
	assert.False(t, spec.RevealIdentities)
	assert.False(t, spec.HelpOnly)
}

func TestTimeWindows(t *testing.T) {
	p := newTestParser()
	cases := map[string]time.Time{
		"&kat -day":   fixedNow.AddDate(0, 0, -1),
		"&kat week":   fixedNow.Add(-7 * 24 * time.Hour),
		"&kat -MONTH": time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC), // Feb 31 normalizes
		"&kat year":   time.Date(2023, 3, 31, 12, 0, 0, 0, time.UTC),
		"&Kat-day":    fixedNow.AddDate(0, 0, -1),
	}
	for raw, want := range cases {
		assert.Equal(t, want, p.Parse(raw, models.AuthorityMember).Since, raw)
	}
}

func TestLastTimeFlagWins(t *testing.T) {
	p := newTestParser()
	assert.Equal(t, fixedNow.AddDate(0, -1, 0), p.Parse("&kat -week -month", models.AuthorityMember).Since)
	assert.Equal(t, fixedNow.AddDate(0, 0, -7), p.Parse("&kat -month -week", models.AuthorityMember).Since)
}

func TestScopeAndHelp(t *testing.T) {
	p := newTestParser()
	assert.Equal(t, models.ScopeCommunity, p.Parse("&kat -guild", models.AuthorityMember).Scope)
	assert.Equal(t, models.ScopeCommunity, p.Parse("&kat server", models.AuthorityMember).Scope)
	assert.True(t, p.Parse("&kat -week -help", models.AuthorityMember).HelpOnly)
}

func TestTagsRequireOwner(t *testing.T) {
	p := newTestParser()
	assert.False(t, p.Parse("&kat -tags", models.AuthorityMember).RevealIdentities)
	assert.True(t, p.Parse("&kat -tags", models.AuthorityOwner).RevealIdentities)
	assert.True(t, p.Parse("&kat tag", models.AuthorityOwner).RevealIdentities)
}

func TestUnknownTokensIgnored(t *testing.T) {
	spec := newTestParser().Parse("&kat --week banana -- -fortnight", models.AuthorityMember)
	assert.Equal(t, models.Epoch, spec.Since)
	assert.Equal(t, models.ScopeRoom, spec.Scope)
}

func TestCustomTrigger(t *testing.T) {
	p := NewParser("!Rank")
	assert.True(t, p.IsCommand("!rank -day"))
	assert.False(t, p.IsCommand("&kat"))
}
