package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Jeffreasy/LaventeCareGateway/internal/auth"
)

// WebhookPayload is the subset of the Cloud API webhook body the login flow reads.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         WebhookMetadata  `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts"`
	Messages         []InboundMessage `json:"messages"`
}

type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type InboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Inbound is one received message with the bot number it was sent to.
type Inbound struct {
	From     string
	BotPhone string
	Type     string
	Text     string
}

// Messages flattens the payload into received messages. Status updates carry no
// messages and yield nothing.
func (p WebhookPayload) Messages() []Inbound {
	var out []Inbound
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			for _, m := range change.Value.Messages {
				if m.From == "" {
					continue
				}
				out = append(out, Inbound{
					From:     m.From,
					BotPhone: change.Value.Metadata.DisplayPhoneNumber,
					Type:     m.Type,
					Text:     strings.TrimSpace(m.Text.Body),
				})
			}
		}
	}
	return out
}

// VerifySubscription answers Meta's GET handshake. It returns the challenge to echo
// when mode is "subscribe" and the verify token matches.
func VerifySubscription(mode, token, challenge, verifyToken string) (string, bool) {
	if mode != "subscribe" || challenge == "" {
		return "", false
	}
	if !auth.SecureCompareTokens(token, verifyToken) {
		return "", false
	}
	return challenge, true
}

// ValidSignature checks the X-Hub-Signature-256 header ("sha256=<hex>") against body.
func ValidSignature(body []byte, header, appSecret string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
