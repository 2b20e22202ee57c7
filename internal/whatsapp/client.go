package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"whatsapp-autoreply/internal/config"
)

const defaultGraphURL = "https://graph.facebook.com"

// Client sends messages through the WhatsApp Cloud API. Each phone number id
// (device) gets its own token bucket so one busy device cannot starve the rest.
type Client struct {
	Config  *config.Config
	BaseURL string
	HTTP    *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		Config:   cfg,
		BaseURL:  defaultGraphURL,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
		limiters: make(map[string]*rate.Limiter),
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type,omitempty"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             *TextObj `json:"text,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type SendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// --- Helper Functions ---

func (c *Client) limiter(phoneNumberID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[phoneNumberID]
	if !ok {
		perSecond := c.Config.SendRatePerSecond
		if perSecond <= 0 {
			perSecond = 20
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(perSecond), burst)
		c.limiters[phoneNumberID] = l
	}
	return l
}

func (c *Client) sendRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

// --- Messaging Methods ---

// SendRawMessage posts msg from the given phone number id and returns the
// message id assigned by WhatsApp.
func (c *Client) SendRawMessage(ctx context.Context, phoneNumberID string, msg GenericMessage) (string, error) {
	if phoneNumberID == "" {
		phoneNumberID = c.Config.PhoneNumberID
	}
	if phoneNumberID == "" {
		return "", errors.New("whatsapp: no phone number id configured")
	}
	if err := c.limiter(phoneNumberID).Wait(ctx); err != nil {
		return "", fmt.Errorf("whatsapp: throttle: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.BaseURL, c.Config.GraphAPIVersion, phoneNumberID)
	respBody, err := c.sendRequest(ctx, http.MethodPost, url, msg)
	if err != nil {
		return "", fmt.Errorf("whatsapp: send: %w", err)
	}

	var out SendResponse
	if err := json.Unmarshal(respBody, &out); err != nil || len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}

func (c *Client) SendText(ctx context.Context, phoneNumberID, to, body string) (string, error) {
	return c.SendRawMessage(ctx, phoneNumberID, GenericMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &TextObj{Body: body},
	})
}

// MarkAsRead acknowledges an inbound message so the customer sees blue ticks.
func (c *Client) MarkAsRead(ctx context.Context, phoneNumberID, messageID string) error {
	if phoneNumberID == "" {
		phoneNumberID = c.Config.PhoneNumberID
	}
	url := fmt.Sprintf("%s/%s/%s/messages", c.BaseURL, c.Config.GraphAPIVersion, phoneNumberID)
	_, err := c.sendRequest(ctx, http.MethodPost, url, map[string]string{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
	if err != nil {
		return fmt.Errorf("whatsapp: mark read: %w", err)
	}
	return nil
}
