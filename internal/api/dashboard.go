package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	imodels "whatsapp-autoreply/internal/models"
	"whatsapp-autoreply/internal/safety"
	"whatsapp-autoreply/internal/store"
	"whatsapp-autoreply/pkg/models"
)

type Sender interface {
	SendText(ctx context.Context, phoneNumberID, to, body string) (string, error)
}

type MessageNotifier interface {
	NotifyMessage(msg imodels.Message)
}

type DashboardHandler struct {
	Client   Sender
	Messages *store.MessageRepository
	Logs     *store.ActionLogRepository
	Gate     *safety.Gate
	Notifier MessageNotifier
}

func NewDashboardHandler(client Sender, messages *store.MessageRepository, logs *store.ActionLogRepository, gate *safety.Gate, notifier MessageNotifier) *DashboardHandler {
	return &DashboardHandler{Client: client, Messages: messages, Logs: logs, Gate: gate, Notifier: notifier}
}

func (h *DashboardHandler) GetMessages(c *gin.Context) {
	msgs, err := h.Messages.Recent(c.Request.Context(), c.Param("deviceId"), c.Query("sender"), cast.ToInt(c.Query("limit")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// SendMessage lets a human agent answer a contact directly. It does not pass
// through the pipeline and does not count against the bot's reply budget.
func (h *DashboardHandler) SendMessage(c *gin.Context) {
	var req models.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deviceID := c.Param("deviceId")
	waID, err := h.Client.SendText(c.Request.Context(), deviceID, req.To, req.Content)
	if err != nil {
		zap.L().Warn("operator send failed", zap.String("device_id", deviceID), zap.String("to", req.To), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send message: " + err.Error()})
		return
	}

	msg := imodels.Message{
		DeviceID: deviceID,
		WaID:     waID,
		Sender:   req.To,
		Content:  req.Content,
		Type:     "text",
		Status:   store.StatusSent,
	}
	if err := h.Messages.Save(c.Request.Context(), &msg); err != nil {
		zap.L().Warn("error storing operator message", zap.String("device_id", deviceID), zap.Error(err))
	} else if h.Notifier != nil {
		h.Notifier.NotifyMessage(msg)
	}

	c.JSON(http.StatusOK, gin.H{"status": "Message sent", "id": waID})
}

// GetLogs lists audit rows; filters: sender, action, since (RFC3339), limit.
func (h *DashboardHandler) GetLogs(c *gin.Context) {
	f := store.LogFilter{
		DeviceID:   c.Param("deviceId"),
		SenderJID:  c.Query("sender"),
		ActionType: c.Query("action"),
		Limit:      cast.ToInt(c.Query("limit")),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		f.Since = t
	}

	logs, err := h.Logs.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (h *DashboardHandler) GetLogCounts(c *gin.Context) {
	counts, err := h.Logs.CountByType(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *DashboardHandler) SafetyStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats":      h.Gate.Stats(),
		"known_bots": h.Gate.KnownBots(),
	})
}

func (h *DashboardHandler) AddKnownBot(c *gin.Context) {
	var req struct {
		JID string `json:"jid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.Gate.MarkKnownBot(req.JID)
	c.JSON(http.StatusOK, gin.H{"jid": req.JID, "known_bot": true})
}

func (h *DashboardHandler) RemoveKnownBot(c *gin.Context) {
	jid := c.Param("jid")
	h.Gate.UnmarkKnownBot(jid)
	c.JSON(http.StatusOK, gin.H{"jid": jid, "known_bot": false})
}

// UpdateRateLimit changes the per-sender reply budget. Values below the
// minimums are raised to them.
func (h *DashboardHandler) UpdateRateLimit(c *gin.Context) {
	var req struct {
		Max           int `json:"max" binding:"required"`
		WindowSeconds int `json:"window_seconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	maxReplies, window := h.Gate.SetRateLimit(req.Max, time.Duration(req.WindowSeconds)*time.Second)
	zap.L().Info("rate limit updated", zap.Int("max", maxReplies), zap.Duration("window", window))
	c.JSON(http.StatusOK, gin.H{"max": maxReplies, "window_seconds": int(window / time.Second)})
}
