package automation

import (
	"fmt"
	"sync"
	"time"
)

// idleCooldownTTL is how long a cooldown entry is kept after it was last recorded.
const idleCooldownTTL = time.Hour

type cooldownEntry struct {
	at       time.Time
	cooldown time.Duration
}

// CooldownTracker remembers when each rule last fired for each sender.
type CooldownTracker struct {
	mu      sync.Mutex
	entries map[string]cooldownEntry
	now     func() time.Time
}

func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{entries: make(map[string]cooldownEntry), now: time.Now}
}

func cooldownKey(deviceID, senderJID string, ruleID uint) string {
	return fmt.Sprintf("%s:%s:%d", deviceID, senderJID, ruleID)
}

func (c *CooldownTracker) OnCooldown(deviceID, senderJID string, ruleID uint, cooldownSeconds int) bool {
	if cooldownSeconds <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[cooldownKey(deviceID, senderJID, ruleID)]
	if !ok {
		return false
	}
	return c.now().Sub(entry.at) < time.Duration(cooldownSeconds)*time.Second
}

func (c *CooldownTracker) Record(deviceID, senderJID string, ruleID uint, cooldownSeconds int) {
	if cooldownSeconds <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[cooldownKey(deviceID, senderJID, ruleID)] = cooldownEntry{
		at:       c.now(),
		cooldown: time.Duration(cooldownSeconds) * time.Second,
	}
	c.mu.Unlock()
}

// Sweep drops entries idle for an hour, or for their own cooldown when longer.
func (c *CooldownTracker) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, entry := range c.entries {
		ttl := idleCooldownTTL
		if entry.cooldown > ttl {
			ttl = entry.cooldown
		}
		if now.Sub(entry.at) >= ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *CooldownTracker) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
