package automation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"whatsapp-autoreply/internal/models"
)

type fakeRules struct {
	rules []models.AutoReplyRule
	err   error
}

func (f *fakeRules) ActiveRules(context.Context, string) ([]models.AutoReplyRule, error) {
	out := make([]models.AutoReplyRule, len(f.rules))
	copy(out, f.rules)
	return out, f.err
}

func rule(id uint, trigger, matchType string, priority int) models.AutoReplyRule {
	return models.AutoReplyRule{
		ID:        id,
		DeviceID:  "dev1",
		Name:      trigger,
		Trigger:   trigger,
		MatchType: matchType,
		Response:  "reply " + trigger,
		Priority:  priority,
		IsActive:  true,
	}
}

func TestMatchRule_Types(t *testing.T) {
	e := NewEngine(&fakeRules{})

	cases := []struct {
		name      string
		trigger   string
		matchType string
		text      string
		want      bool
	}{
		{"exact ignores case and padding", " Hello ", models.MatchExact, "hello  ", true},
		{"exact needs whole text", "hello", models.MatchExact, "hello there", false},
		{"contains", "Menu", models.MatchContains, "show me the MENU please", true},
		{"contains miss", "menu", models.MatchContains, "show me the price", false},
		{"startsWith", "Hi", models.MatchStartsWith, "hi there", true},
		{"startsWith miss", "there", models.MatchStartsWith, "hi there", false},
		{"regex case insensitive", `^order\s+#?\d+$`, models.MatchRegex, "ORDER #123", true},
		{"regex miss", `^order\s+\d+$`, models.MatchRegex, "my order 123", false},
		{"invalid regex is no match", `(unclosed`, models.MatchRegex, "(unclosed", false},
		{"unknown type", "hello", "fuzzy", "hello", false},
		{"empty trigger", "", models.MatchContains, "anything", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := rule(1, tc.trigger, tc.matchType, 0)
			require.Equal(t, tc.want, e.MatchRule(&r, strings.ToLower(tc.text), tc.text))
		})
	}
}

func TestMatchRule_RegexSeesOriginalText(t *testing.T) {
	e := NewEngine(&fakeRules{})
	r := rule(1, `[A-Z]{3}-\d+`, models.MatchRegex, 0)
	// (?i) applies, so lowercase original text still matches
	require.True(t, e.MatchRule(&r, "ref abc-12", "ref abc-12"))
	require.True(t, e.MatchRule(&r, "ref abc-12", "ref ABC-12"))
}

func TestMatchRules_PriorityAndStableOrder(t *testing.T) {
	rules := &fakeRules{rules: []models.AutoReplyRule{
		rule(1, "price", models.MatchContains, 1),
		rule(2, "menu", models.MatchContains, 10),
		rule(3, "the", models.MatchContains, 10),
		rule(4, "show", models.MatchStartsWith, 5),
	}}
	e := NewEngine(rules)

	for i := 0; i < 5; i++ {
		got := e.MatchRules(context.Background(), "dev1", "show me the menu and price", "a")
		require.NotNil(t, got)
		require.Equal(t, uint(2), got.ID)
	}

	got := e.MatchRules(context.Background(), "dev1", "show prices", "a")
	require.Equal(t, uint(4), got.ID)

	require.Nil(t, e.MatchRules(context.Background(), "dev1", "nothing relevant", "a"))
}

func TestMatchRules_SkipsInactive(t *testing.T) {
	inactive := rule(1, "menu", models.MatchContains, 100)
	inactive.IsActive = false
	e := NewEngine(&fakeRules{rules: []models.AutoReplyRule{inactive, rule(2, "menu", models.MatchContains, 1)}})

	got := e.MatchRules(context.Background(), "dev1", "menu", "a")
	require.Equal(t, uint(2), got.ID)
}

func TestMatchRules_LookupError(t *testing.T) {
	e := NewEngine(&fakeRules{err: errors.New("db down")})
	require.Nil(t, e.MatchRules(context.Background(), "dev1", "menu", "a"))
}

func TestMatchRules_CooldownPerSender(t *testing.T) {
	menu := rule(1, "menu", models.MatchContains, 10)
	menu.CooldownSeconds = 60
	fallback := rule(2, "menu", models.MatchContains, 1)
	e := NewEngine(&fakeRules{rules: []models.AutoReplyRule{menu, fallback}})

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	e.Cooldowns.now = func() time.Time { return now }

	got := e.MatchRules(context.Background(), "dev1", "menu", "a")
	require.Equal(t, uint(1), got.ID)
	e.RecordCooldown("dev1", "a", got)

	// lower priority rule fills in while the first cools down
	got = e.MatchRules(context.Background(), "dev1", "menu", "a")
	require.Equal(t, uint(2), got.ID)

	// other senders are unaffected
	got = e.MatchRules(context.Background(), "dev1", "menu", "b")
	require.Equal(t, uint(1), got.ID)

	now = now.Add(59 * time.Second)
	require.Equal(t, uint(2), e.MatchRules(context.Background(), "dev1", "menu", "a").ID)
	now = now.Add(time.Second)
	require.Equal(t, uint(1), e.MatchRules(context.Background(), "dev1", "menu", "a").ID)
}

func TestCooldownSweep(t *testing.T) {
	c := NewCooldownTracker()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Record("dev1", "a", 1, 60)
	c.Record("dev1", "a", 2, 2*3600)
	c.Record("dev1", "a", 3, 0)
	require.Equal(t, 2, c.Len())

	now = now.Add(time.Hour)
	require.Equal(t, 1, c.Sweep())
	require.True(t, c.OnCooldown("dev1", "a", 2, 2*3600))

	now = now.Add(time.Hour)
	require.Equal(t, 1, c.Sweep())
	require.Equal(t, 0, c.Len())
}
