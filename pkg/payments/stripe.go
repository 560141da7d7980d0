// Package payments provides a thin client for the Stripe REST API:
// customers, payment intents, subscriptions, refunds and webhook
// signature verification. Amounts are integer minor units (cents)
// throughout, matching what Stripe expects on the wire.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const apiBase = "https://api.stripe.com/v1"

var (
	// ErrNotConfigured is returned when the secret key is empty.
	ErrNotConfigured = errors.New("stripe: secret key not configured")
	// ErrInvalidSignature is returned when webhook signature verification fails.
	ErrInvalidSignature = errors.New("stripe: invalid webhook signature")
)

// APIError is a non-2xx response from Stripe.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe: status=%d type=%s code=%s message=%s", e.StatusCode, e.Type, e.Code, e.Message)
}

// Customer is a Stripe customer object (subset).
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// PaymentIntent is a Stripe payment intent object (subset).
type PaymentIntent struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Customer     string            `json:"customer"`
	Metadata     map[string]string `json:"metadata"`
}

// Subscription is a Stripe subscription object (subset).
type Subscription struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

// Refund is a Stripe refund object (subset).
type Refund struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	PaymentIntent string `json:"payment_intent"`
}

// Invoice is a Stripe invoice object (subset). Subscription payments are
// settled through invoices, not payment intents.
type Invoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Customer     string `json:"customer"`
	AmountPaid   int64  `json:"amount_paid"`
	Currency     string `json:"currency"`
}

// PaymentMethod is a Stripe payment method object (subset).
type PaymentMethod struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Customer string `json:"customer"`
	Card struct {
		Brand    string `json:"brand"`
		Last4    string `json:"last4"`
		ExpMonth int    `json:"exp_month"`
		ExpYear  int    `json:"exp_year"`
	} `json:"card"`
}

// Event is a Stripe webhook event envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Client calls the Stripe REST API with form-encoded requests.
type Client struct {
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
}

// NewClient creates a Stripe API client.
func NewClient(secretKey, webhookSecret string) *Client {
	return &Client{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether a secret key is present.
func (c *Client) Configured() bool { return c.secretKey != "" }

// CreateCustomer creates a Stripe customer for a platform user.
func (c *Client) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*Customer, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("name", name)
	addMetadata(form, metadata)
	var cust Customer
	if err := c.do(ctx, http.MethodPost, "/customers", form, &cust); err != nil {
		return nil, err
	}
	return &cust, nil
}

// CreatePaymentIntent creates a payment intent for amountCents in currency,
// bound to a customer, with metadata tagging user/course/payment type.
func (c *Client) CreatePaymentIntent(ctx context.Context, customerID string, amountCents int64, currency string, metadata map[string]string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("customer", customerID)
	form.Set("automatic_payment_methods[enabled]", "true")
	addMetadata(form, metadata)
	var pi PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/payment_intents", form, &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

// CreateSubscription creates a subscription for the customer on the given price.
func (c *Client) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*Subscription, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("items[0][price]", priceID)
	addMetadata(form, metadata)
	var sub Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", form, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CancelSubscription cancels a subscription immediately.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub Subscription
	if err := c.do(ctx, http.MethodDelete, "/subscriptions/"+subscriptionID, nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateRefund refunds a payment intent in full.
func (c *Client) CreateRefund(ctx context.Context, paymentIntentID string) (*Refund, error) {
	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)
	var r Refund
	if err := c.do(ctx, http.MethodPost, "/refunds", form, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListPaymentMethods returns the customer's saved cards.
func (c *Client) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("type", "card")
	var out struct {
		Data []PaymentMethod `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/payment_methods?"+form.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// DetachPaymentMethod removes a saved card from its customer.
func (c *Client) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	return c.do(ctx, http.MethodPost, "/payment_methods/"+paymentMethodID+"/detach", url.Values{}, nil)
}

// VerifyWebhookSignature checks the Stripe-Signature header against the payload.
// The header format is "t=<unix>,v1=<hex hmac>", where the HMAC-SHA256 is
// computed over "<unix>.<payload>" with the webhook secret. Signatures older
// than tolerance are rejected.
func (c *Client) VerifyWebhookSignature(payload []byte, sigHeader string, tolerance time.Duration) error {
	if c.webhookSecret == "" {
		return ErrNotConfigured
	}
	var ts string
	var sigs []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if tolerance > 0 && time.Since(time.Unix(unix, 0)) > tolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// ParseEvent verifies the signature and decodes the webhook event.
func (c *Client) ParseEvent(payload []byte, sigHeader string) (*Event, error) {
	if err := c.VerifyWebhookSignature(payload, sigHeader, 5*time.Minute); err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	if c.secretKey == "" {
		return ErrNotConfigured
	}
	var body io.Reader
	if form != nil && method != http.MethodGet {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, apiBase+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var wrapper struct {
			Error APIError `json:"error"`
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
		if json.Unmarshal(raw, &wrapper) == nil && wrapper.Error.Message != "" {
			wrapper.Error.StatusCode = resp.StatusCode
			apiErr = &wrapper.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func addMetadata(form url.Values, metadata map[string]string) {
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}
}
