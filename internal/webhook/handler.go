package webhook

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"whatsapp-autoreply/internal/config"
	imodels "whatsapp-autoreply/internal/models"
	"whatsapp-autoreply/internal/pipeline"
	"whatsapp-autoreply/internal/store"
	"whatsapp-autoreply/pkg/models"
)

type MessageProcessor interface {
	ProcessIncoming(ctx context.Context, in pipeline.Inbound, send pipeline.SendFunc) pipeline.Result
}

type Sender interface {
	SendText(ctx context.Context, phoneNumberID, to, body string) (string, error)
	MarkAsRead(ctx context.Context, phoneNumberID, messageID string) error
}

type MessageStore interface {
	Save(ctx context.Context, msg *imodels.Message) error
}

type MessageNotifier interface {
	NotifyMessage(msg imodels.Message)
}

type Handler struct {
	Config    *config.Config
	Processor MessageProcessor
	Client    Sender
	Messages  MessageStore
	Notifier  MessageNotifier

	inflight sync.WaitGroup
}

func NewHandler(cfg *config.Config, processor MessageProcessor, client Sender, messages MessageStore, notifier MessageNotifier) *Handler {
	return &Handler{
		Config:    cfg,
		Processor: processor,
		Client:    client,
		Messages:  messages,
		Notifier:  notifier,
	}
}

// Wait blocks until every message handed to the pipeline has finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func (h *Handler) processTimeout() time.Duration {
	if h.Config.ProcessTimeout > 0 {
		return h.Config.ProcessTimeout
	}
	return 30 * time.Second
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && token == h.Config.VerifyToken {
			zap.L().Info("webhook verified")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

// HandleMessage acknowledges the Cloud API delivery at once and runs each
// text message through the pipeline in the background.
func (h *Handler) HandleMessage(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		zap.L().Warn("error binding webhook payload", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			deviceID := change.Value.Metadata.PhoneNumberID
			if deviceID == "" {
				deviceID = h.Config.PhoneNumberID
			}
			for _, message := range change.Value.Messages {
				text, ok := message.TextContent()
				content := text
				if !ok {
					content = "[" + message.Type + "]"
				}
				h.record(c.Request.Context(), &imodels.Message{
					DeviceID: deviceID,
					WaID:     message.ID,
					Sender:   message.From,
					Content:  content,
					Type:     message.Type,
					Status:   store.StatusReceived,
				})
				if !ok {
					continue
				}

				in := pipeline.Inbound{
					DeviceID:  deviceID,
					SenderJID: message.From,
					Text:      text,
					MessageID: message.ID,
				}
				h.inflight.Add(1)
				go func() {
					defer h.inflight.Done()
					h.process(in)
				}()
			}
		}
	}

	c.Status(http.StatusOK)
}

func (h *Handler) process(in pipeline.Inbound) {
	requestID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout())
	defer cancel()

	send := func(ctx context.Context, to, text string) error {
		waID, err := h.Client.SendText(ctx, in.DeviceID, to, text)
		if err != nil {
			return err
		}
		h.record(ctx, &imodels.Message{
			DeviceID: in.DeviceID,
			WaID:     waID,
			Sender:   to,
			Content:  text,
			Type:     "text",
			Status:   store.StatusSent,
		})
		return nil
	}

	res := h.Processor.ProcessIncoming(ctx, in, send)
	if res.Processed {
		if err := h.Client.MarkAsRead(ctx, in.DeviceID, in.MessageID); err != nil {
			zap.L().Debug("mark as read failed", zap.String("message_id", in.MessageID), zap.Error(err))
		}
	}
	zap.L().Debug("webhook message processed",
		zap.String("request_id", requestID),
		zap.String("device_id", in.DeviceID),
		zap.String("sender", in.SenderJID),
		zap.Bool("processed", res.Processed),
		zap.String("action", res.Action))
}

// HandleInbound serves bridges that hold the device connection themselves.
// Replies are not sent from here; they are returned for the bridge to deliver.
func (h *Handler) HandleInbound(c *gin.Context) {
	deviceID := c.Param("deviceId")
	var req models.InboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requestID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.processTimeout())
	defer cancel()

	if !req.FromMe {
		h.record(ctx, &imodels.Message{
			DeviceID: deviceID,
			WaID:     req.MessageID,
			Sender:   req.SenderJID,
			Content:  req.Text,
			Type:     "text",
			Status:   store.StatusReceived,
		})
	}

	var mu sync.Mutex
	replies := []models.OutboundReply{}
	send := func(_ context.Context, to, text string) error {
		mu.Lock()
		replies = append(replies, models.OutboundReply{To: to, Text: text})
		mu.Unlock()
		return nil
	}

	res := h.Processor.ProcessIncoming(ctx, pipeline.Inbound{
		DeviceID:  deviceID,
		SenderJID: req.SenderJID,
		Text:      req.Text,
		MessageID: req.MessageID,
		FromMe:    req.FromMe,
	}, send)

	zap.L().Debug("bridge message processed",
		zap.String("request_id", requestID),
		zap.String("device_id", deviceID),
		zap.String("sender", req.SenderJID),
		zap.String("action", res.Action))

	c.JSON(http.StatusOK, models.InboundResponse{
		RequestID: requestID,
		Processed: res.Processed,
		Action:    res.Action,
		Replies:   replies,
	})
}

func (h *Handler) record(ctx context.Context, msg *imodels.Message) {
	if h.Messages == nil {
		return
	}
	if err := h.Messages.Save(ctx, msg); err != nil {
		zap.L().Warn("error storing message", zap.String("device_id", msg.DeviceID), zap.Error(err))
		return
	}
	if h.Notifier != nil {
		h.Notifier.NotifyMessage(*msg)
	}
}
