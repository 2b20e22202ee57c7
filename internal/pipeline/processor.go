package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"whatsapp-autoreply/internal/automation"
	"whatsapp-autoreply/internal/businesshours"
	"whatsapp-autoreply/internal/conversation"
	"whatsapp-autoreply/internal/handoff"
	"whatsapp-autoreply/internal/models"
	"whatsapp-autoreply/internal/safety"
)

// Result actions besides the safety rejection reasons.
const (
	ActionResumedByUser    = "resumed_by_user"
	ActionInHandoff        = "in_handoff"
	ActionHandoffInitiated = "handoff_initiated"
	ActionOffHoursReply    = "off_hours_reply"
	ActionRuleMatched      = "rule_matched"
	ActionNoMatch          = "no_match"
)

const defaultLookupTimeout = 3 * time.Second

// SendFunc transmits one reply to the sender. It is supplied by the transport.
type SendFunc func(ctx context.Context, to, text string) error

type Inbound struct {
	DeviceID  string `json:"deviceId"`
	SenderJID string `json:"senderJid"`
	Text      string `json:"text"`
	MessageID string `json:"messageId"`
	FromMe    bool   `json:"fromMe"`
}

// Result is the outcome of one message. Processed is true only when a reply was sent.
type Result struct {
	Processed bool   `json:"processed"`
	Action    string `json:"action,omitempty"`
}

type ConfigLookup interface {
	FindByDevice(ctx context.Context, deviceID string) (*models.DeviceBotConfig, error)
}

type AuditLog interface {
	Append(ctx context.Context, entry *models.BotActionLog) error
}

// Processor decides the fate of each inbound message.
type Processor struct {
	Configs       ConfigLookup
	Gate          *safety.Gate
	Conversations *conversation.Store
	Hours         *businesshours.Evaluator
	Handoff       *handoff.Coordinator
	Rules         *automation.Engine
	Audit         AuditLog
	LookupTimeout time.Duration
}

func (p *Processor) lookupCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := p.LookupTimeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// ProcessIncoming runs the decision steps in order and stops at the first
// outcome. It never returns an error; failures end as an unprocessed result.
func (p *Processor) ProcessIncoming(ctx context.Context, in Inbound, send SendFunc) (res Result) {
	log := zap.L().With(
		zap.String("device_id", in.DeviceID),
		zap.String("sender", in.SenderJID),
		zap.String("message_id", in.MessageID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing message", zap.Any("panic", r))
			res = Result{}
		}
	}()

	// 1. device config
	lctx, cancel := p.lookupCtx(ctx)
	cfg, err := p.Configs.FindByDevice(lctx, in.DeviceID)
	cancel()
	if err != nil {
		log.Warn("device config lookup failed", zap.Error(err))
		return Result{}
	}
	if cfg == nil || !cfg.BotEnabled {
		return Result{}
	}

	// 2. safety gate
	decision := p.Gate.ShouldProcess(in.DeviceID, in.SenderJID, in.MessageID, in.FromMe, safety.Options{IgnoreGroups: cfg.IgnoreGroups})
	if !decision.Allowed {
		if decision.Reason == safety.ReasonRateLimited {
			p.audit(ctx, in, models.ActionRateLimited, nil, "")
		}
		log.Debug("message rejected by safety gate", zap.String("reason", decision.Reason))
		return Result{Processed: false, Action: decision.Reason}
	}

	// 3. conversation state
	lctx, cancel = p.lookupCtx(ctx)
	conv := p.Conversations.Get(lctx, in.DeviceID, in.SenderJID)
	cancel()

	// 4. human handling in progress
	if conv != nil && conv.State == conversation.StateHandoff {
		lctx, cancel = p.lookupCtx(ctx)
		resume := p.Handoff.DetectResumeIntent(lctx, in.DeviceID, in.Text)
		cancel()
		if !resume {
			return Result{Processed: false, Action: ActionInHandoff}
		}

		lctx, cancel = p.lookupCtx(ctx)
		hr := p.Handoff.ResumeBot(lctx, in.DeviceID, in.SenderJID, handoff.ResumedByUser)
		cancel()
		if !hr.Success {
			log.Warn("resume transition failed")
			return Result{}
		}
		if !p.reply(ctx, log, in, hr.Message, send) {
			p.restore(ctx, log, in, conv)
			return Result{}
		}
		return Result{Processed: true, Action: ActionResumedByUser}
	}

	// 5. escalation
	lctx, cancel = p.lookupCtx(ctx)
	escalate := p.Handoff.DetectEscalation(lctx, in.DeviceID, in.Text)
	cancel()
	if escalate {
		lctx, cancel = p.lookupCtx(ctx)
		hr := p.Handoff.InitiateHandoff(lctx, in.DeviceID, in.SenderJID, handoff.ReasonKeyword)
		cancel()
		if !hr.Success {
			log.Warn("handoff transition failed")
			return Result{}
		}
		if !p.reply(ctx, log, in, hr.Message, send) {
			p.restore(ctx, log, in, conv)
			return Result{}
		}
		return Result{Processed: true, Action: ActionHandoffInitiated}
	}

	// 6. business hours
	lctx, cancel = p.lookupCtx(ctx)
	hours := p.Hours.CheckBusinessHours(lctx, in.DeviceID)
	cancel()
	if !hours.IsBusinessHours && hours.OffHoursMessage != "" {
		if !p.reply(ctx, log, in, hours.OffHoursMessage, send) {
			return Result{}
		}
		p.audit(ctx, in, models.ActionOffHoursReply, nil, hours.OffHoursMessage)
		return Result{Processed: true, Action: ActionOffHoursReply}
	}

	// 7. rules
	lctx, cancel = p.lookupCtx(ctx)
	rule := p.Rules.MatchRules(lctx, in.DeviceID, in.Text, in.SenderJID)
	cancel()
	if rule != nil {
		body := automation.Render(rule.Response, map[string]string{
			"sender":  in.SenderJID,
			"phone":   automation.PhoneFromJID(in.SenderJID),
			"message": in.Text,
			"device":  in.DeviceID,
			"rule":    rule.Name,
		})
		if !p.reply(ctx, log, in, body, send) {
			return Result{}
		}

		convCtx := map[string]interface{}{}
		if conv != nil {
			for k, v := range conv.Context {
				convCtx[k] = v
			}
		}
		convCtx["lastMatchedRule"] = rule.ID

		lctx, cancel = p.lookupCtx(ctx)
		p.Conversations.Set(lctx, in.DeviceID, in.SenderJID, conversation.StateActiveBot, convCtx, "")
		cancel()

		p.Rules.RecordCooldown(in.DeviceID, in.SenderJID, rule)
		ruleID := rule.ID
		p.audit(ctx, in, models.ActionAutoReply, &ruleID, body)
		log.Info("auto-reply sent", zap.Uint("rule_id", rule.ID))
		return Result{Processed: true, Action: ActionRuleMatched}
	}

	// 8. nothing to do
	p.audit(ctx, in, models.ActionNoMatch, nil, "")
	return Result{Processed: false, Action: ActionNoMatch}
}

// reply sends text and counts it against the sender's reply budget.
func (p *Processor) reply(ctx context.Context, log *zap.Logger, in Inbound, text string, send SendFunc) bool {
	if err := send(ctx, in.SenderJID, text); err != nil {
		log.Warn("failed to send reply", zap.Error(err))
		return false
	}
	p.Gate.RecordAutoReply(in.DeviceID, in.SenderJID)
	return true
}

// restore puts back the state read before a transition whose notice could not
// be delivered.
func (p *Processor) restore(ctx context.Context, log *zap.Logger, in Inbound, prev *conversation.Conversation) {
	lctx, cancel := p.lookupCtx(ctx)
	defer cancel()
	if !p.Conversations.Restore(lctx, in.DeviceID, in.SenderJID, prev) {
		log.Warn("failed to restore conversation state after send failure")
	}
}

func (p *Processor) audit(ctx context.Context, in Inbound, actionType string, ruleID *uint, response string) {
	if p.Audit == nil {
		return
	}
	entry := &models.BotActionLog{
		DeviceID:        in.DeviceID,
		SenderJID:       in.SenderJID,
		ActionType:      actionType,
		RuleID:          ruleID,
		IncomingMessage: in.Text,
	}
	if response != "" {
		entry.ResponseMessage = &response
	}

	lctx, cancel := p.lookupCtx(ctx)
	defer cancel()
	if err := p.Audit.Append(lctx, entry); err != nil {
		zap.L().Warn("failed to write action log",
			zap.String("device_id", in.DeviceID), zap.String("action", actionType), zap.Error(err))
	}
}
