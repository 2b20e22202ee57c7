package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-autoreply/internal/conversation"
	"whatsapp-autoreply/internal/handoff"
)

// HandoffHandler exposes human takeover and conversation state to operators.
type HandoffHandler struct {
	Handoff       *handoff.Coordinator
	Conversations *conversation.Store
}

func NewHandoffHandler(coordinator *handoff.Coordinator, conversations *conversation.Store) *HandoffHandler {
	return &HandoffHandler{Handoff: coordinator, Conversations: conversations}
}

func (h *HandoffHandler) ListHandoffs(c *gin.Context) {
	handoffs := h.Handoff.GetActiveHandoffs(c.Request.Context(), c.Param("deviceId"))
	if handoffs == nil {
		handoffs = []*conversation.Conversation{}
	}
	c.JSON(http.StatusOK, handoffs)
}

func (h *HandoffHandler) CountHandoffs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.Handoff.GetHandoffCount(c.Request.Context(), c.Param("deviceId"))})
}

// InitiateHandoff puts a conversation in human hands on an operator's request
func (h *HandoffHandler) InitiateHandoff(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// body is optional
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = handoff.ReasonAdmin
	}

	res := h.Handoff.InitiateHandoff(c.Request.Context(), c.Param("deviceId"), c.Param("senderJid"), req.Reason)
	if !res.Success {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initiate handoff"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// ResumeHandoff returns a conversation to the bot
func (h *HandoffHandler) ResumeHandoff(c *gin.Context) {
	res := h.Handoff.ResumeBot(c.Request.Context(), c.Param("deviceId"), c.Param("senderJid"), handoff.ResumedByAdmin)
	if !res.Success {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resume bot"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *HandoffHandler) GetConversation(c *gin.Context) {
	conv := h.Conversations.Get(c.Request.Context(), c.Param("deviceId"), c.Param("senderJid"))
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no conversation"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

// UpdateContext merges operator notes into the conversation context.
func (h *HandoffHandler) UpdateContext(c *gin.Context) {
	var partial map[string]interface{}
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deviceID, senderJID := c.Param("deviceId"), c.Param("senderJid")
	if h.Conversations.Get(c.Request.Context(), deviceID, senderJID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no conversation"})
		return
	}
	if !h.Conversations.UpdateContext(c.Request.Context(), deviceID, senderJID, partial) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update context"})
		return
	}
	c.JSON(http.StatusOK, h.Conversations.Get(c.Request.Context(), deviceID, senderJID))
}

func (h *HandoffHandler) ClearConversation(c *gin.Context) {
	if !h.Conversations.Clear(c.Request.Context(), c.Param("deviceId"), c.Param("senderJid")) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation cleared"})
}

func (h *HandoffHandler) ConversationStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Conversations.Stats(c.Request.Context(), c.Param("deviceId")))
}
