package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextContent(t *testing.T) {
	raw := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"555"},
		"messages":[
			{"from":"628111","id":"w1","type":"text","text":{"body":"hello"}},
			{"from":"628111","id":"w2","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"b1","title":"Menu"}}},
			{"from":"628111","id":"w3","type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"l1","title":"Prices"}}},
			{"from":"628111","id":"w4","type":"sticker"},
			{"from":"628111","id":"w5","type":"image","image":{"id":"m1","caption":"menu?"}}
		]}}]}]}`

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	value := payload.Entry[0].Changes[0].Value
	require.Equal(t, "555", value.Metadata.PhoneNumberID)

	want := []struct {
		text string
		ok   bool
	}{{"hello", true}, {"Menu", true}, {"Prices", true}, {"", false}, {"menu?", true}}
	for i, msg := range value.Messages {
		text, ok := msg.TextContent()
		require.Equal(t, want[i].ok, ok, msg.ID)
		require.Equal(t, want[i].text, text, msg.ID)
	}
}
