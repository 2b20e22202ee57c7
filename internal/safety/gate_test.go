package safety

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGate(maxReplies int, window time.Duration) (*Gate, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	g := New(maxReplies, window, []string{"bot@s.whatsapp.net"})
	g.now = clock.now
	return g, clock
}

func TestShouldProcess_CheckOrder(t *testing.T) {
	g, _ := newTestGate(5, time.Minute)

	cases := []struct {
		name   string
		sender string
		fromMe bool
		opts   Options
		want   string
	}{
		{"own message wins over everything", "status@broadcast", true, Options{}, ReasonOwnMessage},
		{"status broadcast", "status@broadcast", false, Options{}, ReasonIgnorePattern},
		{"broadcast list", "1234@broadcast", false, Options{}, ReasonIgnorePattern},
		{"newsletter", "987@newsletter", false, Options{}, ReasonIgnorePattern},
		{"group ignored when configured", "123-456@g.us", false, Options{IgnoreGroups: true}, ReasonIgnorePattern},
		{"known bot", "bot@s.whatsapp.net", false, Options{}, ReasonKnownBot},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := g.ShouldProcess("dev1", tc.sender, fmt.Sprintf("m%d", i), tc.fromMe, tc.opts)
			require.False(t, d.Allowed)
			require.Equal(t, tc.want, d.Reason)
		})
	}

	d := g.ShouldProcess("dev1", "123-456@g.us", "group-msg", false, Options{})
	require.True(t, d.Allowed)
}

func TestShouldProcess_DuplicateOnlyAfterAccept(t *testing.T) {
	g, clock := newTestGate(1, 10*time.Second)

	require.True(t, g.ShouldProcess("dev1", "a@s.whatsapp.net", "m1", false, Options{}).Allowed)
	require.Equal(t, ReasonDuplicate, g.ShouldProcess("dev1", "a@s.whatsapp.net", "m1", false, Options{}).Reason)

	// same id on another device is a different message
	require.True(t, g.ShouldProcess("dev2", "a@s.whatsapp.net", "m1", false, Options{}).Allowed)

	// a rate limited message is not remembered
	g.RecordAutoReply("dev1", "a@s.whatsapp.net")
	require.Equal(t, ReasonRateLimited, g.ShouldProcess("dev1", "a@s.whatsapp.net", "m2", false, Options{}).Reason)
	clock.advance(10 * time.Second)
	require.True(t, g.ShouldProcess("dev1", "a@s.whatsapp.net", "m2", false, Options{}).Allowed)

	clock.advance(DedupTTL)
	require.True(t, g.ShouldProcess("dev1", "a@s.whatsapp.net", "m1", false, Options{}).Allowed)
}

func TestShouldProcess_RateBudgetSlides(t *testing.T) {
	g, clock := newTestGate(5, time.Minute)
	sender := "b@s.whatsapp.net"

	for i := 0; i < 5; i++ {
		d := g.ShouldProcess("dev1", sender, fmt.Sprintf("m%d", i), false, Options{})
		require.True(t, d.Allowed)
		g.RecordAutoReply("dev1", sender)
		clock.advance(5 * time.Second)
	}
	require.Equal(t, ReasonRateLimited, g.ShouldProcess("dev1", sender, "m5", false, Options{}).Reason)

	// another sender has its own budget
	require.True(t, g.ShouldProcess("dev1", "c@s.whatsapp.net", "m6", false, Options{}).Allowed)

	// first reply was at t0, now is t0+25s; it leaves the window at t0+60s
	clock.advance(34 * time.Second)
	require.Equal(t, ReasonRateLimited, g.ShouldProcess("dev1", sender, "m7", false, Options{}).Reason)
	clock.advance(time.Second)
	require.True(t, g.ShouldProcess("dev1", sender, "m8", false, Options{}).Allowed)
}

func TestShouldProcess_PanicFailsClosed(t *testing.T) {
	g, _ := newTestGate(5, time.Minute)
	g.now = func() time.Time { panic("clock exploded") }

	d := g.ShouldProcess("dev1", "a@s.whatsapp.net", "m1", false, Options{})
	require.Equal(t, Decision{Allowed: false, Reason: ReasonError}, d)

	// lock must have been released
	g.now = time.Now
	require.True(t, g.ShouldProcess("dev1", "a@s.whatsapp.net", "m1", false, Options{}).Allowed)
}

func TestSetRateLimit_Clamps(t *testing.T) {
	g, _ := newTestGate(5, time.Minute)

	n, w := g.SetRateLimit(0, time.Second)
	require.Equal(t, MinRateLimitMax, n)
	require.Equal(t, MinRateLimitWindow, w)

	n, w = g.SetRateLimit(20, 2*time.Minute)
	require.Equal(t, 20, n)
	require.Equal(t, 2*time.Minute, w)
	require.Equal(t, 20, g.Stats().RateLimitMax)
}

func TestSweep(t *testing.T) {
	g, clock := newTestGate(5, time.Minute)

	require.True(t, g.ShouldProcess("dev1", "a@s.whatsapp.net", "m1", false, Options{}).Allowed)
	g.RecordAutoReply("dev1", "a@s.whatsapp.net")
	clock.advance(2 * time.Minute)
	require.True(t, g.ShouldProcess("dev1", "b@s.whatsapp.net", "m2", false, Options{}).Allowed)
	g.RecordAutoReply("dev1", "b@s.whatsapp.net")

	messages, senders := g.Sweep()
	require.Equal(t, 0, messages)
	require.Equal(t, 1, senders)

	clock.advance(5 * time.Minute)
	messages, senders = g.Sweep()
	require.Equal(t, 2, messages)
	require.Equal(t, 1, senders)

	st := g.Stats()
	require.Equal(t, 0, st.TrackedMessages)
	require.Equal(t, 0, st.TrackedSenders)
}

func TestKnownBotManagement(t *testing.T) {
	g, _ := newTestGate(5, time.Minute)

	g.MarkKnownBot("x@s.whatsapp.net")
	require.Equal(t, ReasonKnownBot, g.ShouldProcess("dev1", "x@s.whatsapp.net", "m1", false, Options{}).Reason)
	require.Len(t, g.KnownBots(), 2)

	g.UnmarkKnownBot("x@s.whatsapp.net")
	require.True(t, g.ShouldProcess("dev1", "x@s.whatsapp.net", "m1", false, Options{}).Allowed)
}
