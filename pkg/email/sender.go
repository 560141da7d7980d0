// Package email sends transactional mail through the SendGrid REST API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const sendURL = "https://api.sendgrid.com/v3/mail/send"

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("email: api key not configured")

// Sender delivers emails via SendGrid.
type Sender struct {
	apiKey      string
	fromAddress string
	fromName    string
	httpClient  *http.Client
}

// NewSender creates a SendGrid email sender.
func NewSender(apiKey, fromAddress, fromName string) *Sender {
	return &Sender{
		apiKey:      apiKey,
		fromAddress: fromAddress,
		fromName:    fromName,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether an API key is present.
func (s *Sender) Configured() bool { return s.apiKey != "" }

type sgEmail struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgEmail `json:"to"`
}

type sgRequest struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgEmail             `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// Send delivers an HTML email to a single recipient.
func (s *Sender) Send(ctx context.Context, toEmail, subject, bodyHTML string) error {
	if s.apiKey == "" {
		return ErrNotConfigured
	}
	body := sgRequest{
		Personalizations: []sgPersonalization{{To: []sgEmail{{Email: toEmail}}}},
		From:             sgEmail{Email: s.fromAddress, Name: s.fromName},
		Subject:          subject,
		Content:          []sgContent{{Type: "text/html", Value: bodyHTML}},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	defer resp.Body.Close()

	// SendGrid returns 202 on success.
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sendgrid error: status=%d body=%s", resp.StatusCode, respBody)
	}
	return nil
}

// ResetCodeBody renders the password reset code email.
func ResetCodeBody(code string, expiresIn time.Duration) string {
	return fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif;">
<h3>Password reset</h3>
<p>Your password reset code is:</p>
<p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">%s</p>
<p>The code expires in %d minutes. If you did not request a reset, ignore this email.</p>
</body></html>`, code, int(expiresIn.Minutes()))
}

// ReceiptBody renders the purchase receipt email.
func ReceiptBody(courseTitle string, amountCents int64, currency, courseURL string) string {
	return fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif;">
<h3>Thanks for your purchase</h3>
<p>You are now enrolled in <strong>%s</strong>.</p>
<p>Amount charged: %.2f %s</p>
<p><a href="%s">Start learning</a></p>
</body></html>`, courseTitle, float64(amountCents)/100, currency, courseURL)
}
