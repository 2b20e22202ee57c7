package safety

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Rejection reasons reported by ShouldProcess.
const (
	ReasonOwnMessage    = "own_message"
	ReasonIgnorePattern = "ignore_pattern"
	ReasonKnownBot      = "known_bot"
	ReasonDuplicate     = "duplicate"
	ReasonRateLimited   = "rate_limited"
	ReasonError         = "error"
)

const (
	DedupTTL = 5 * time.Minute

	DefaultRateLimitMax    = 5
	DefaultRateLimitWindow = 60 * time.Second
	MinRateLimitMax        = 1
	MinRateLimitWindow     = 10 * time.Second

	maxTrackedMessages = 10000
)

type Options struct {
	IgnoreGroups bool
}

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type Stats struct {
	TrackedMessages int           `json:"tracked_messages"`
	TrackedSenders  int           `json:"tracked_senders"`
	KnownBots       int           `json:"known_bots"`
	RateLimitMax    int           `json:"rate_limit_max"`
	RateLimitWindow time.Duration `json:"rate_limit_window"`
}

// Gate filters inbound messages before any automation runs: loop prevention,
// ignore patterns, known bots, duplicate delivery and per-sender reply budget.
type Gate struct {
	mu        sync.Mutex
	seen      map[string]time.Time   // device:messageID -> accepted at
	replies   map[string][]time.Time // device:sender -> reply timestamps
	knownBots map[string]struct{}
	max       int
	window    time.Duration
	now       func() time.Time
}

// New builds a Gate. Out-of-range limits are clamped to the minimums.
func New(maxReplies int, window time.Duration, knownBots []string) *Gate {
	g := &Gate{
		seen:      make(map[string]time.Time),
		replies:   make(map[string][]time.Time),
		knownBots: make(map[string]struct{}),
		now:       time.Now,
	}
	g.max, g.window = clampLimit(maxReplies, window)
	for _, jid := range knownBots {
		if jid = strings.TrimSpace(jid); jid != "" {
			g.knownBots[jid] = struct{}{}
		}
	}
	return g
}

func clampLimit(maxReplies int, window time.Duration) (int, time.Duration) {
	if maxReplies < MinRateLimitMax {
		maxReplies = MinRateLimitMax
	}
	if window < MinRateLimitWindow {
		window = MinRateLimitWindow
	}
	return maxReplies, window
}

// ShouldProcess runs the checks in order and stops at the first rejection.
// The message id is remembered only when the message is accepted.
func (g *Gate) ShouldProcess(deviceID, senderJID, messageID string, fromMe bool, opts Options) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("safety gate panic",
				zap.String("device_id", deviceID),
				zap.String("sender", senderJID),
				zap.Any("panic", r))
			d = Decision{Allowed: false, Reason: ReasonError}
		}
	}()

	if fromMe {
		return Decision{Reason: ReasonOwnMessage}
	}
	if isIgnored(senderJID, opts) {
		return Decision{Reason: ReasonIgnorePattern}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.knownBots[senderJID]; ok {
		return Decision{Reason: ReasonKnownBot}
	}

	now := g.now()
	dedupKey := deviceID + ":" + messageID
	if messageID != "" {
		if at, ok := g.seen[dedupKey]; ok && now.Sub(at) < DedupTTL {
			return Decision{Reason: ReasonDuplicate}
		}
	}

	if len(g.recentLocked(deviceID+":"+senderJID, now)) >= g.max {
		return Decision{Reason: ReasonRateLimited}
	}

	if messageID != "" {
		if len(g.seen) >= maxTrackedMessages {
			g.pruneSeenLocked(now)
		}
		g.seen[dedupKey] = now
	}
	return Decision{Allowed: true}
}

func isIgnored(senderJID string, opts Options) bool {
	switch {
	case senderJID == "":
		return true
	case senderJID == "status@broadcast", strings.HasSuffix(senderJID, "@broadcast"):
		return true
	case strings.HasSuffix(senderJID, "@newsletter"):
		return true
	case opts.IgnoreGroups && strings.HasSuffix(senderJID, "@g.us"):
		return true
	}
	return false
}

// recentLocked trims timestamps that left the window and returns the rest.
func (g *Gate) recentLocked(key string, now time.Time) []time.Time {
	stamps := g.replies[key]
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) >= g.window {
		i++
	}
	if i == len(stamps) {
		delete(g.replies, key)
		return nil
	}
	if i > 0 {
		stamps = stamps[i:]
		g.replies[key] = stamps
	}
	return stamps
}

// pruneSeenLocked drops expired ids and, if the map is still full, the oldest one.
func (g *Gate) pruneSeenLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, at := range g.seen {
		if now.Sub(at) >= DedupTTL {
			delete(g.seen, k)
			continue
		}
		if oldestKey == "" || at.Before(oldest) {
			oldestKey, oldest = k, at
		}
	}
	if len(g.seen) >= maxTrackedMessages && oldestKey != "" {
		delete(g.seen, oldestKey)
	}
}

// RecordAutoReply counts one outbound reply against the sender's budget.
func (g *Gate) RecordAutoReply(deviceID, senderJID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := deviceID + ":" + senderJID
	g.replies[key] = append(g.replies[key], g.now())
}

// Sweep purges expired dedup entries and senders with an empty window.
func (g *Gate) Sweep() (messages, senders int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, at := range g.seen {
		if now.Sub(at) >= DedupTTL {
			delete(g.seen, k)
			messages++
		}
	}
	for k := range g.replies {
		if g.recentLocked(k, now) == nil {
			senders++
		}
	}
	return messages, senders
}

func (g *Gate) MarkKnownBot(jid string) {
	g.mu.Lock()
	g.knownBots[jid] = struct{}{}
	g.mu.Unlock()
}

func (g *Gate) UnmarkKnownBot(jid string) {
	g.mu.Lock()
	delete(g.knownBots, jid)
	g.mu.Unlock()
}

func (g *Gate) KnownBots() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.knownBots))
	for jid := range g.knownBots {
		out = append(out, jid)
	}
	return out
}

// SetRateLimit changes the reply budget at runtime and returns the applied values.
func (g *Gate) SetRateLimit(maxReplies int, window time.Duration) (int, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.max, g.window = clampLimit(maxReplies, window)
	return g.max, g.window
}

func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		TrackedMessages: len(g.seen),
		TrackedSenders:  len(g.replies),
		KnownBots:       len(g.knownBots),
		RateLimitMax:    g.max,
		RateLimitWindow: g.window,
	}
}
