package automation

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"whatsapp-autoreply/internal/models"
)

const maxCachedPatterns = 1000

// RuleLookup returns the active rules of a device.
type RuleLookup interface {
	ActiveRules(ctx context.Context, deviceID string) ([]models.AutoReplyRule, error)
}

// Engine picks the auto-reply rule for an incoming message.
type Engine struct {
	Rules     RuleLookup
	Cooldowns *CooldownTracker

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp // nil value caches a compile failure
}

func NewEngine(rules RuleLookup) *Engine {
	return &Engine{
		Rules:     rules,
		Cooldowns: NewCooldownTracker(),
		patterns:  make(map[string]*regexp.Regexp),
	}
}

// MatchRules returns the highest priority active rule that matches text and is
// not cooling down for this sender, or nil.
func (e *Engine) MatchRules(ctx context.Context, deviceID, text, senderJID string) *models.AutoReplyRule {
	rules, err := e.Rules.ActiveRules(ctx, deviceID)
	if err != nil {
		zap.L().Warn("error fetching auto-reply rules", zap.String("device_id", deviceID), zap.Error(err))
		return nil
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	lowerText := strings.ToLower(text)
	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive {
			continue
		}
		if e.Cooldowns.OnCooldown(deviceID, senderJID, rule.ID, rule.CooldownSeconds) {
			continue
		}
		if e.MatchRule(rule, lowerText, text) {
			zap.L().Debug("rule matched",
				zap.String("device_id", deviceID),
				zap.String("sender", senderJID),
				zap.Uint("rule_id", rule.ID),
				zap.String("rule", rule.Name))
			return rule
		}
	}
	return nil
}

// MatchRule checks one rule against the message. Regex rules are tested
// against the original text; everything else against the lowercased text.
func (e *Engine) MatchRule(rule *models.AutoReplyRule, lowerText, originalText string) bool {
	if rule == nil || rule.Trigger == "" {
		return false
	}
	trigger := strings.ToLower(rule.Trigger)

	switch rule.MatchType {
	case models.MatchExact:
		return strings.TrimSpace(lowerText) == strings.TrimSpace(trigger)
	case models.MatchContains:
		return strings.Contains(lowerText, trigger)
	case models.MatchStartsWith:
		return strings.HasPrefix(lowerText, trigger)
	case models.MatchRegex:
		re := e.compile(rule.Trigger)
		if re == nil {
			return false
		}
		return re.MatchString(originalText)
	default:
		return false
	}
}

func (e *Engine) compile(pattern string) *regexp.Regexp {
	e.mu.Lock()
	defer e.mu.Unlock()

	if re, ok := e.patterns[pattern]; ok {
		return re
	}
	if len(e.patterns) >= maxCachedPatterns {
		e.patterns = make(map[string]*regexp.Regexp)
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		zap.L().Warn("regex error", zap.String("pattern", pattern), zap.Error(err))
		re = nil
	}
	e.patterns[pattern] = re
	return re
}

// RecordCooldown starts the rule's cooldown for this sender.
func (e *Engine) RecordCooldown(deviceID, senderJID string, rule *models.AutoReplyRule) {
	if rule == nil {
		return
	}
	e.Cooldowns.Record(deviceID, senderJID, rule.ID, rule.CooldownSeconds)
}

func (e *Engine) Sweep() int {
	return e.Cooldowns.Sweep()
}
