package models

import (
	"time"

	"gorm.io/datatypes"
)

// Rule match types.
const (
	MatchExact      = "exact"
	MatchContains   = "contains"
	MatchStartsWith = "startsWith"
	MatchRegex      = "regex"
)

// Action log types.
const (
	ActionAutoReply        = "auto_reply"
	ActionHandoffInitiated = "handoff_initiated"
	ActionHandoffResumed   = "handoff_resumed"
	ActionOffHoursReply    = "off_hours_reply"
	ActionRateLimited      = "rate_limited"
	ActionRuleMatched      = "rule_matched"
	ActionNoMatch          = "no_match"
)

// BusinessHour is one weekly opening window. Day follows time.Weekday (0 = Sunday).
type BusinessHour struct {
	Day   int    `json:"day"`
	Start string `json:"start"` // HH:MM, 24h
	End   string `json:"end"`   // HH:MM, 24h
}

// DeviceBotConfig holds the automation settings of one device (one WhatsApp number).
type DeviceBotConfig struct {
	ID              uint                              `gorm:"primaryKey" json:"id"`
	DeviceID        string                            `gorm:"type:varchar(100);not null;uniqueIndex" json:"device_id"`
	BotEnabled      bool                              `json:"bot_enabled"`
	Timezone        string                            `gorm:"type:varchar(64);default:'UTC'" json:"timezone"`
	BusinessHours   datatypes.JSONSlice[BusinessHour] `json:"business_hours"`
	OffHoursEnabled bool                              `json:"off_hours_enabled"`
	OffHoursMessage string                            `gorm:"type:text" json:"off_hours_message"`
	HandoffKeywords datatypes.JSONSlice[string]       `json:"handoff_keywords"`
	ResumeKeywords  datatypes.JSONSlice[string]       `json:"resume_keywords"`
	HandoffMessage  string                            `gorm:"type:text" json:"handoff_message"`
	ResumeMessage   string                            `gorm:"type:text" json:"resume_message"`
	IgnoreGroups    bool                              `json:"ignore_groups"`
	CreatedAt       time.Time                         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DeviceBotConfig) TableName() string {
	return "device_bot_configs"
}

// AutoReplyRule is a keyword trigger owned by a device.
type AutoReplyRule struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	DeviceID        string    `gorm:"type:varchar(100);not null;index" json:"device_id"`
	Name            string    `gorm:"type:varchar(255);not null" json:"name"`
	Trigger         string    `gorm:"type:text;not null" json:"trigger"`
	MatchType       string    `gorm:"type:varchar(20);not null;default:'contains'" json:"match_type"`
	Response        string    `gorm:"type:text;not null" json:"response"`
	Priority        int       `gorm:"default:0" json:"priority"`
	IsActive        bool      `gorm:"index" json:"is_active"`
	CooldownSeconds int       `gorm:"default:0" json:"cooldown_seconds"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AutoReplyRule) TableName() string {
	return "auto_reply_rules"
}

// BotActionLog is the append-only audit trail of pipeline decisions.
type BotActionLog struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	DeviceID        string    `gorm:"type:varchar(100);not null;index" json:"device_id"`
	SenderJID       string    `gorm:"column:sender_jid;type:varchar(100);index" json:"sender_jid"`
	ActionType      string    `gorm:"type:varchar(30);not null;index" json:"action_type"`
	RuleID          *uint     `json:"rule_id"`
	IncomingMessage string    `gorm:"type:text" json:"incoming_message"`
	ResponseMessage *string   `gorm:"type:text" json:"response_message"`
	Detail          string    `gorm:"type:varchar(255)" json:"detail,omitempty"` // handoff reason or resumed_by
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (BotActionLog) TableName() string {
	return "bot_action_logs"
}

// Message represents a WhatsApp message exchanged on a device
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	DeviceID  string    `gorm:"type:varchar(100);index" json:"device_id"`
	WaID      string    `gorm:"index;not null" json:"wa_id"`
	Sender    string    `gorm:"not null;index" json:"sender"`
	Content   string    `gorm:"type:text" json:"content"`
	Type      string    `gorm:"type:varchar(50)" json:"type"`
	Status    string    `gorm:"type:varchar(20)" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// KVEntry backs the SQL flavour of the shared TTL key/value store.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar(255)"`
	Value     []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}

// SystemSetting stores runtime overrides for gateway credentials
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}

// Tables lists every model migrated at startup.
var Tables = []interface{}{
	&DeviceBotConfig{},
	&AutoReplyRule{},
	&BotActionLog{},
	&Message{},
	&KVEntry{},
	&SystemSetting{},
}
