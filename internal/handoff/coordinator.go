package handoff

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"whatsapp-autoreply/internal/conversation"
	"whatsapp-autoreply/internal/models"
)

const (
	DefaultHandoffMessage = "Connecting you with a human agent. Please wait..."
	DefaultResumeMessage  = "The bot is back! How can I help you?"

	ResumedByUser  = "user"
	ResumedByAdmin = "admin"

	ReasonKeyword = "keyword"
	ReasonAdmin   = "admin"
)

// Event types published to operator consoles.
const (
	EventInitiated = "handoff_initiated"
	EventResumed   = "handoff_resumed"
)

type ConfigLookup interface {
	FindByDevice(ctx context.Context, deviceID string) (*models.DeviceBotConfig, error)
}

type AuditLog interface {
	Append(ctx context.Context, entry *models.BotActionLog) error
}

// Notifier receives handoff transitions, e.g. to push them to a live console.
type Notifier interface {
	NotifyHandoff(evt Event)
}

type Event struct {
	Type      string    `json:"type"`
	DeviceID  string    `json:"device_id"`
	SenderJID string    `json:"sender_jid"`
	Reason    string    `json:"reason,omitempty"`
	ResumedBy string    `json:"resumed_by,omitempty"`
	At        time.Time `json:"at"`
}

type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Coordinator moves conversations between bot and human handling.
type Coordinator struct {
	conversations *conversation.Store
	configs       ConfigLookup
	audit         AuditLog
	notifier      Notifier
	now           func() time.Time
}

func NewCoordinator(conversations *conversation.Store, configs ConfigLookup, audit AuditLog, notifier Notifier) *Coordinator {
	return &Coordinator{
		conversations: conversations,
		configs:       configs,
		audit:         audit,
		notifier:      notifier,
		now:           time.Now,
	}
}

func (c *Coordinator) config(ctx context.Context, deviceID string) *models.DeviceBotConfig {
	cfg, err := c.configs.FindByDevice(ctx, deviceID)
	if err != nil {
		zap.L().Warn("handoff config lookup failed", zap.String("device_id", deviceID), zap.Error(err))
		return nil
	}
	return cfg
}

// DetectEscalation reports whether text contains one of the device's handoff keywords.
func (c *Coordinator) DetectEscalation(ctx context.Context, deviceID, text string) bool {
	cfg := c.config(ctx, deviceID)
	if cfg == nil {
		return false
	}
	return containsKeyword(cfg.HandoffKeywords, text)
}

// DetectResumeIntent reports whether text contains one of the device's resume keywords.
func (c *Coordinator) DetectResumeIntent(ctx context.Context, deviceID, text string) bool {
	cfg := c.config(ctx, deviceID)
	if cfg == nil {
		return false
	}
	return containsKeyword(cfg.ResumeKeywords, text)
}

func containsKeyword(keywords []string, text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// InitiateHandoff puts the conversation in HANDOFF and returns the message to
// send to the customer. Calling it again while in HANDOFF rewrites the same state.
func (c *Coordinator) InitiateHandoff(ctx context.Context, deviceID, senderJID, reason string) Result {
	if reason == "" {
		reason = ReasonKeyword
	}

	var convCtx map[string]interface{}
	if prev := c.conversations.Get(ctx, deviceID, senderJID); prev != nil {
		convCtx = prev.Context
	}
	if !c.conversations.Set(ctx, deviceID, senderJID, conversation.StateHandoff, convCtx, reason) {
		return Result{Success: false}
	}

	msg := DefaultHandoffMessage
	if cfg := c.config(ctx, deviceID); cfg != nil && strings.TrimSpace(cfg.HandoffMessage) != "" {
		msg = cfg.HandoffMessage
	}

	c.record(ctx, &models.BotActionLog{
		DeviceID:        deviceID,
		SenderJID:       senderJID,
		ActionType:      models.ActionHandoffInitiated,
		ResponseMessage: &msg,
		Detail:          "reason:" + reason,
	})
	c.notify(Event{Type: EventInitiated, DeviceID: deviceID, SenderJID: senderJID, Reason: reason})

	zap.L().Info("handoff initiated",
		zap.String("device_id", deviceID), zap.String("sender", senderJID), zap.String("reason", reason))
	return Result{Success: true, Message: msg}
}

// ResumeBot returns the conversation to IDLE. resumedBy is "user" or "admin".
func (c *Coordinator) ResumeBot(ctx context.Context, deviceID, senderJID, resumedBy string) Result {
	if resumedBy != ResumedByAdmin {
		resumedBy = ResumedByUser
	}

	var convCtx map[string]interface{}
	if prev := c.conversations.Get(ctx, deviceID, senderJID); prev != nil {
		convCtx = prev.Context
	}
	if !c.conversations.Set(ctx, deviceID, senderJID, conversation.StateIdle, convCtx, "") {
		return Result{Success: false}
	}

	msg := DefaultResumeMessage
	if cfg := c.config(ctx, deviceID); cfg != nil && strings.TrimSpace(cfg.ResumeMessage) != "" {
		msg = cfg.ResumeMessage
	}

	c.record(ctx, &models.BotActionLog{
		DeviceID:        deviceID,
		SenderJID:       senderJID,
		ActionType:      models.ActionHandoffResumed,
		ResponseMessage: &msg,
		Detail:          "resumed_by:" + resumedBy,
	})
	c.notify(Event{Type: EventResumed, DeviceID: deviceID, SenderJID: senderJID, ResumedBy: resumedBy})

	zap.L().Info("bot resumed",
		zap.String("device_id", deviceID), zap.String("sender", senderJID), zap.String("resumed_by", resumedBy))
	return Result{Success: true, Message: msg}
}

func (c *Coordinator) GetActiveHandoffs(ctx context.Context, deviceID string) []*conversation.Conversation {
	return c.conversations.ListHandoffs(ctx, deviceID)
}

func (c *Coordinator) GetHandoffCount(ctx context.Context, deviceID string) int {
	return len(c.conversations.ListHandoffs(ctx, deviceID))
}

func (c *Coordinator) record(ctx context.Context, entry *models.BotActionLog) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Append(ctx, entry); err != nil {
		zap.L().Warn("failed to write handoff audit row",
			zap.String("device_id", entry.DeviceID), zap.String("action", entry.ActionType), zap.Error(err))
	}
}

func (c *Coordinator) notify(evt Event) {
	if c.notifier == nil {
		return
	}
	evt.At = c.now().UTC()
	c.notifier.NotifyHandoff(evt)
}
