package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

// SendGridSender delivers through the SendGrid v3 mail/send API.
type SendGridSender struct {
	apiKey    string
	fromName  string
	fromEmail string
	endpoint  string
	client    *http.Client
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPersonalization struct {
	To         []sendGridAddress `json:"to"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridToggle struct {
	Enable bool `json:"enable"`
}

type sendGridTracking struct {
	ClickTracking *sendGridToggle `json:"click_tracking,omitempty"`
	OpenTracking  *sendGridToggle `json:"open_tracking,omitempty"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	TrackingSettings *sendGridTracking         `json:"tracking_settings,omitempty"`
}

func NewSendGridSender(apiKey, fromEmail, fromName string, client *http.Client) *SendGridSender {
	return &SendGridSender{
		apiKey:    apiKey,
		fromName:  fromName,
		fromEmail: fromEmail,
		endpoint:  sendGridEndpoint,
		client:    client,
	}
}

// Send posts the message. Tracking ids travel as custom args so delivery
// webhooks can be matched back to the step or campaign recipient.
func (s *SendGridSender) Send(ctx context.Context, msg Message) (string, error) {
	fromEmail, fromName := fromOrDefault(msg, s.fromEmail, s.fromName)

	personalization := sendGridPersonalization{
		To:         []sendGridAddress{{Email: msg.To, Name: msg.ToName}},
		CustomArgs: msg.Tracking.customArgs(),
	}

	payload := sendGridRequest{
		Personalizations: []sendGridPersonalization{personalization},
		From:             sendGridAddress{Email: fromEmail, Name: fromName},
		Subject:          msg.Subject,
		Content:          []sendGridContent{{Type: "text/html", Value: msg.HTML}},
	}
	if msg.Tracking.Opens || msg.Tracking.Clicks {
		payload.TrackingSettings = &sendGridTracking{
			OpenTracking:  &sendGridToggle{Enable: msg.Tracking.Opens},
			ClickTracking: &sendGridToggle{Enable: msg.Tracking.Clicks},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("sendgrid send failed: status %d: %s", resp.StatusCode, string(data))
	}

	return resp.Header.Get("X-Message-Id"), nil
}
