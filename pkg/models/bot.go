package models

// InboundRequest is posted by a messaging bridge for each message it receives
// on a device.
type InboundRequest struct {
	SenderJID string `json:"senderJid" binding:"required"`
	Text      string `json:"text"`
	MessageID string `json:"messageId"`
	FromMe    bool   `json:"fromMe"`
}

// OutboundReply is a message the bridge must transmit on the bot's behalf.
type OutboundReply struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type InboundResponse struct {
	RequestID string          `json:"requestId"`
	Processed bool            `json:"processed"`
	Action    string          `json:"action,omitempty"`
	Replies   []OutboundReply `json:"replies"`
}

// SendRequest is an operator reply typed into a console during a handoff.
type SendRequest struct {
	To      string `json:"to" binding:"required"`
	Content string `json:"content" binding:"required"`
}
