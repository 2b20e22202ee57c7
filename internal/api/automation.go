package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"whatsapp-autoreply/internal/automation"
	"whatsapp-autoreply/internal/businesshours"
	"whatsapp-autoreply/internal/models"
	"whatsapp-autoreply/internal/store"
)

type AutomationHandler struct {
	Rules   *store.RuleRepository
	Configs *store.DeviceConfigRepository
}

func NewAutomationHandler(rules *store.RuleRepository, configs *store.DeviceConfigRepository) *AutomationHandler {
	return &AutomationHandler{Rules: rules, Configs: configs}
}

type configRequest struct {
	BotEnabled      bool                  `json:"bot_enabled"`
	Timezone        string                `json:"timezone"`
	BusinessHours   []models.BusinessHour `json:"business_hours"`
	OffHoursEnabled bool                  `json:"off_hours_enabled"`
	OffHoursMessage string                `json:"off_hours_message"`
	HandoffKeywords []string              `json:"handoff_keywords"`
	ResumeKeywords  []string              `json:"resume_keywords"`
	HandoffMessage  string                `json:"handoff_message"`
	ResumeMessage   string                `json:"resume_message"`
	IgnoreGroups    bool                  `json:"ignore_groups"`
}

type ruleRequest struct {
	Name            string `json:"name" binding:"required"`
	Trigger         string `json:"trigger" binding:"required"`
	MatchType       string `json:"match_type"`
	Response        string `json:"response" binding:"required"`
	Priority        int    `json:"priority"`
	IsActive        *bool  `json:"is_active"`
	CooldownSeconds int    `json:"cooldown_seconds"`
}

// GetConfig returns the bot settings of a device
func (h *AutomationHandler) GetConfig(c *gin.Context) {
	cfg, err := h.Configs.Get(c.Request.Context(), c.Param("deviceId"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device has no bot config"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// PutConfig creates or replaces the bot settings of a device
func (h *AutomationHandler) PutConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if err := businesshours.ValidateTimezone(req.Timezone); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := businesshours.ValidateBusinessHours(req.BusinessHours); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := models.DeviceBotConfig{
		DeviceID:        c.Param("deviceId"),
		BotEnabled:      req.BotEnabled,
		Timezone:        req.Timezone,
		BusinessHours:   datatypes.JSONSlice[models.BusinessHour](req.BusinessHours),
		OffHoursEnabled: req.OffHoursEnabled,
		OffHoursMessage: req.OffHoursMessage,
		HandoffKeywords: datatypes.JSONSlice[string](req.HandoffKeywords),
		ResumeKeywords:  datatypes.JSONSlice[string](req.ResumeKeywords),
		HandoffMessage:  req.HandoffMessage,
		ResumeMessage:   req.ResumeMessage,
		IgnoreGroups:    req.IgnoreGroups,
	}
	if err := h.Configs.Upsert(c.Request.Context(), &cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	zap.L().Info("device bot config updated", zap.String("device_id", cfg.DeviceID), zap.Bool("bot_enabled", cfg.BotEnabled))
	c.JSON(http.StatusOK, cfg)
}

// GetRules returns all rules of a device
func (h *AutomationHandler) GetRules(c *gin.Context) {
	rules, err := h.Rules.List(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// CreateRule creates a new auto-reply rule
func (h *AutomationHandler) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := req.toRule(c.Param("deviceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Rules.Create(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule replaces an existing rule
func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := req.toRule(c.Param("deviceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.ID = id
	if err := h.Rules.Update(c.Request.Context(), rule); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule deletes a rule
func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	if err := h.Rules.Delete(c.Request.Context(), c.Param("deviceId"), id); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted successfully"})
}

// ToggleRule enables or disables a rule
func (h *AutomationHandler) ToggleRule(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Rules.SetActive(c.Request.Context(), c.Param("deviceId"), id, req.IsActive); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": req.IsActive})
}

func (req ruleRequest) toRule(deviceID string) (*models.AutoReplyRule, error) {
	if req.MatchType == "" {
		req.MatchType = models.MatchContains
	}
	if err := ValidateRule(req.MatchType, req.Trigger, req.CooldownSeconds); err != nil {
		return nil, err
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &models.AutoReplyRule{
		DeviceID:        deviceID,
		Name:            req.Name,
		Trigger:         req.Trigger,
		MatchType:       req.MatchType,
		Response:        req.Response,
		Priority:        req.Priority,
		IsActive:        active,
		CooldownSeconds: req.CooldownSeconds,
	}, nil
}

// ValidateRule checks the fields the rule engine depends on.
func ValidateRule(matchType, trigger string, cooldownSeconds int) error {
	switch matchType {
	case models.MatchExact, models.MatchContains, models.MatchStartsWith:
	case models.MatchRegex:
		if err := automation.ValidateRegex(trigger); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown match type %q", matchType)
	}
	if cooldownSeconds < 0 {
		return errors.New("cooldown_seconds must not be negative")
	}
	return nil
}

func ruleID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return 0, false
	}
	return uint(id), true
}

func writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
