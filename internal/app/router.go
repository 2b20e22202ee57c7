package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"whatsapp-autoreply/internal/api"
	"whatsapp-autoreply/internal/webhook"
)

// Router registers every HTTP route. The webhook handler is returned so the
// caller can wait for in-flight messages on shutdown.
func (a *Application) Router() (*gin.Engine, *webhook.Handler) {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog())

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	webhookHandler := webhook.NewHandler(a.Config, a.Processor, a.Client, a.Messages, a.Hub)
	automationHandler := api.NewAutomationHandler(a.Rules, a.Configs)
	handoffHandler := api.NewHandoffHandler(a.Handoff, a.Conversations)
	dashboardHandler := api.NewDashboardHandler(a.Client, a.Messages, a.ActionLogs, a.Gate, a.Hub)

	// Cloud API webhook
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleMessage)

	r.GET("/ws", func(c *gin.Context) {
		a.Hub.ServeWs(c.Writer, c.Request)
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/safety", dashboardHandler.SafetyStats)
		apiGroup.POST("/safety/known-bots", dashboardHandler.AddKnownBot)
		apiGroup.DELETE("/safety/known-bots/:jid", dashboardHandler.RemoveKnownBot)
		apiGroup.PUT("/safety/rate-limit", dashboardHandler.UpdateRateLimit)

		device := apiGroup.Group("/devices/:deviceId")
		{
			// bridge ingestion
			device.POST("/inbound", webhookHandler.HandleInbound)

			device.GET("/config", automationHandler.GetConfig)
			device.PUT("/config", automationHandler.PutConfig)

			device.GET("/rules", automationHandler.GetRules)
			device.POST("/rules", automationHandler.CreateRule)
			device.PUT("/rules/:id", automationHandler.UpdateRule)
			device.DELETE("/rules/:id", automationHandler.DeleteRule)
			device.POST("/rules/:id/toggle", automationHandler.ToggleRule)

			device.GET("/handoffs", handoffHandler.ListHandoffs)
			device.GET("/handoffs/count", handoffHandler.CountHandoffs)
			device.GET("/conversations/:senderJid", handoffHandler.GetConversation)
			device.DELETE("/conversations/:senderJid", handoffHandler.ClearConversation)
			device.PATCH("/conversations/:senderJid/context", handoffHandler.UpdateContext)
			device.POST("/conversations/:senderJid/handoff", handoffHandler.InitiateHandoff)
			device.POST("/conversations/:senderJid/resume", handoffHandler.ResumeHandoff)
			device.GET("/stats/conversations", handoffHandler.ConversationStats)

			device.GET("/messages", dashboardHandler.GetMessages)
			device.POST("/send", dashboardHandler.SendMessage)
			device.GET("/logs", dashboardHandler.GetLogs)
			device.GET("/logs/counts", dashboardHandler.GetLogCounts)
		}
	}

	return r, webhookHandler
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
