package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"whatsapp-autoreply/internal/conversation"
	"whatsapp-autoreply/internal/handoff"
	"whatsapp-autoreply/internal/kv"
	"whatsapp-autoreply/internal/models"
	"whatsapp-autoreply/internal/safety"
	"whatsapp-autoreply/internal/store"
)

type fakeSender struct {
	err  error
	sent []string
}

func (f *fakeSender) SendText(_ context.Context, phoneNumberID, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, phoneNumberID+"|"+to+"|"+body)
	return "wamid.op", nil
}

type testServer struct {
	router  *gin.Engine
	db      *gorm.DB
	sender  *fakeSender
	gate    *safety.Gate
	convs   *conversation.Store
	configs *store.DeviceConfigRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.Tables...))

	configs := store.NewDeviceConfigRepository(db)
	rules := store.NewRuleRepository(db)
	logs := store.NewActionLogRepository(db)
	messages := store.NewMessageRepository(db)
	convs := conversation.NewStore(kv.NewMemory(), time.Hour, 2*time.Hour)
	coordinator := handoff.NewCoordinator(convs, configs, logs, nil)
	gate := safety.New(5, time.Minute, nil)
	sender := &fakeSender{}

	automationHandler := NewAutomationHandler(rules, configs)
	handoffHandler := NewHandoffHandler(coordinator, convs)
	dashboardHandler := NewDashboardHandler(sender, messages, logs, gate, nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	dev := r.Group("/api/devices/:deviceId")
	dev.GET("/config", automationHandler.GetConfig)
	dev.PUT("/config", automationHandler.PutConfig)
	dev.GET("/rules", automationHandler.GetRules)
	dev.POST("/rules", automationHandler.CreateRule)
	dev.PUT("/rules/:id", automationHandler.UpdateRule)
	dev.DELETE("/rules/:id", automationHandler.DeleteRule)
	dev.POST("/rules/:id/toggle", automationHandler.ToggleRule)
	dev.GET("/handoffs", handoffHandler.ListHandoffs)
	dev.GET("/handoffs/count", handoffHandler.CountHandoffs)
	dev.POST("/conversations/:senderJid/handoff", handoffHandler.InitiateHandoff)
	dev.POST("/conversations/:senderJid/resume", handoffHandler.ResumeHandoff)
	dev.GET("/conversations/:senderJid", handoffHandler.GetConversation)
	dev.DELETE("/conversations/:senderJid", handoffHandler.ClearConversation)
	dev.PATCH("/conversations/:senderJid/context", handoffHandler.UpdateContext)
	dev.GET("/stats/conversations", handoffHandler.ConversationStats)
	dev.GET("/messages", dashboardHandler.GetMessages)
	dev.POST("/send", dashboardHandler.SendMessage)
	dev.GET("/logs", dashboardHandler.GetLogs)
	dev.GET("/logs/counts", dashboardHandler.GetLogCounts)
	r.GET("/api/safety", dashboardHandler.SafetyStats)
	r.POST("/api/safety/known-bots", dashboardHandler.AddKnownBot)
	r.DELETE("/api/safety/known-bots/:jid", dashboardHandler.RemoveKnownBot)
	r.PUT("/api/safety/rate-limit", dashboardHandler.UpdateRateLimit)

	return &testServer{router: r, db: db, sender: sender, gate: gate, convs: convs, configs: configs}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestConfigRoundTrip(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/devices/dev-1/config", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/devices/dev-1/config", gin.H{
		"bot_enabled":      true,
		"timezone":         "Europe/Berlin",
		"business_hours":   []gin.H{{"day": 1, "start": "09:00", "end": "17:00"}},
		"handoff_keywords": []string{"agent"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/devices/dev-1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg models.DeviceBotConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	require.True(t, cfg.BotEnabled)
	require.Equal(t, "Europe/Berlin", cfg.Timezone)
	require.Equal(t, []string{"agent"}, []string(cfg.HandoffKeywords))
	require.Len(t, cfg.BusinessHours, 1)
}

func TestPutConfigValidatesSchedule(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/devices/dev-1/config", gin.H{
		"business_hours": []gin.H{{"day": 1, "start": "18:00", "end": "09:00"}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/devices/dev-1/config", gin.H{"timezone": "Mars/Olympus"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRuleLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/devices/dev-1/rules", gin.H{
		"name": "menu", "trigger": "menu", "response": "Here is the menu", "priority": 10,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rule models.AutoReplyRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	require.Equal(t, models.MatchContains, rule.MatchType)
	require.True(t, rule.IsActive)

	path := "/api/devices/dev-1/rules/" + jsonNumber(rule.ID)
	w = s.do(t, http.MethodPut, path, gin.H{
		"name": "menu", "trigger": "^menu$", "match_type": "regex", "response": "Menu!", "cooldown_seconds": 30,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, path+"/toggle", gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/devices/dev-1/rules", nil)
	var rules []models.AutoReplyRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
	require.Len(t, rules, 1)
	require.Equal(t, "^menu$", rules[0].Trigger)
	require.False(t, rules[0].IsActive)

	// another device cannot see or delete it
	w = s.do(t, http.MethodDelete, "/api/devices/dev-2/rules/"+jsonNumber(rule.ID), nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRuleRejectsInvalidInput(t *testing.T) {
	s := newTestServer(t)

	cases := []gin.H{
		{"name": "x", "trigger": "(a+)+", "match_type": "regex", "response": "r"},
		{"name": "x", "trigger": "a", "match_type": "fuzzy", "response": "r"},
		{"name": "x", "trigger": "a", "response": "r", "cooldown_seconds": -1},
		{"name": "x", "response": "r"},
	}
	for _, body := range cases {
		w := s.do(t, http.MethodPost, "/api/devices/dev-1/rules", body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestHandoffInitiateAndResume(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	w := s.do(t, http.MethodPost, "/api/devices/dev-1/conversations/123@s.whatsapp.net/handoff", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	conv := s.convs.Get(ctx, "dev-1", "123@s.whatsapp.net")
	require.NotNil(t, conv)
	require.Equal(t, conversation.StateHandoff, conv.State)
	require.Equal(t, handoff.ReasonAdmin, *conv.HandoffReason)

	w = s.do(t, http.MethodGet, "/api/devices/dev-1/handoffs/count", nil)
	require.JSONEq(t, `{"count":1}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/devices/dev-1/stats/conversations", nil)
	require.JSONEq(t, `{"idle":0,"active_bot":0,"handoff":1,"total":1}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/devices/dev-1/conversations/123@s.whatsapp.net/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, conversation.StateIdle, s.convs.Get(ctx, "dev-1", "123@s.whatsapp.net").State)

	w = s.do(t, http.MethodGet, "/api/devices/dev-1/handoffs", nil)
	require.JSONEq(t, `[]`, w.Body.String())

	var logs []models.BotActionLog
	require.NoError(t, s.db.Order("id").Find(&logs).Error)
	require.Len(t, logs, 2)
	require.Equal(t, models.ActionHandoffInitiated, logs[0].ActionType)
	require.Equal(t, models.ActionHandoffResumed, logs[1].ActionType)
	require.Equal(t, "resumed_by:"+handoff.ResumedByAdmin, logs[1].Detail)

	w = s.do(t, http.MethodPatch, "/api/devices/dev-1/conversations/123@s.whatsapp.net/context", gin.H{"ticket": "T-42"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	conv = s.convs.Get(ctx, "dev-1", "123@s.whatsapp.net")
	require.Equal(t, "T-42", conv.Context["ticket"])
	require.Equal(t, conversation.StateIdle, conv.State)

	w = s.do(t, http.MethodDelete, "/api/devices/dev-1/conversations/123@s.whatsapp.net", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/devices/dev-1/conversations/123@s.whatsapp.net", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestOperatorSendStoresHistory(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/devices/pn-1/send", gin.H{"to": "15551234567", "content": "Hi, this is Ana"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, []string{"pn-1|15551234567|Hi, this is Ana"}, s.sender.sent)

	w = s.do(t, http.MethodGet, "/api/devices/pn-1/messages?sender=15551234567", nil)
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	require.Equal(t, store.StatusSent, msgs[0].Status)

	s.sender.err = errors.New("graph api down")
	w = s.do(t, http.MethodPost, "/api/devices/pn-1/send", gin.H{"to": "15551234567", "content": "again"})
	require.Equal(t, http.StatusBadGateway, w.Code)

	w = s.do(t, http.MethodPost, "/api/devices/pn-1/send", gin.H{"to": "15551234567"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogsEndpoints(t *testing.T) {
	s := newTestServer(t)
	logs := store.NewActionLogRepository(s.db)
	ctx := context.Background()
	require.NoError(t, logs.Append(ctx, &models.BotActionLog{DeviceID: "dev-1", SenderJID: "a", ActionType: models.ActionAutoReply}))
	require.NoError(t, logs.Append(ctx, &models.BotActionLog{DeviceID: "dev-1", SenderJID: "b", ActionType: models.ActionNoMatch}))
	require.NoError(t, logs.Append(ctx, &models.BotActionLog{DeviceID: "dev-1", SenderJID: "b", ActionType: models.ActionNoMatch}))

	w := s.do(t, http.MethodGet, "/api/devices/dev-1/logs?sender=b", nil)
	var rows []models.BotActionLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2)

	w = s.do(t, http.MethodGet, "/api/devices/dev-1/logs/counts", nil)
	require.JSONEq(t, `{"auto_reply":1,"no_match":2}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/devices/dev-1/logs?since=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSafetyEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/safety/known-bots", gin.H{"jid": "bot@s.whatsapp.net"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"bot@s.whatsapp.net"}, s.gate.KnownBots())

	w = s.do(t, http.MethodDelete, "/api/safety/known-bots/bot@s.whatsapp.net", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, s.gate.KnownBots())

	w = s.do(t, http.MethodPut, "/api/safety/rate-limit", gin.H{"max": 3, "window_seconds": 2})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"max":3,"window_seconds":10}`, w.Body.String())
	require.Equal(t, 3, s.gate.Stats().RateLimitMax)
}

func jsonNumber(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
