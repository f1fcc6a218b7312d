package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StripeClient implements Checkout against the Stripe REST API using
// form-encoded requests. Only the three calls the booking flow needs
// are implemented.
type StripeClient struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

// ErrBadSignature is returned when a webhook payload fails signature
// verification.
var ErrBadSignature = errors.New("webhook signature verification failed")

// signatureTolerance bounds how old a signed webhook timestamp may be.
const signatureTolerance = 5 * time.Minute

// NewStripeClient builds a client. An empty webhookSecret disables
// signature verification, which is only acceptable in development.
func NewStripeClient(secretKey, webhookSecret string) *StripeClient {
	return &StripeClient{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       "https://api.stripe.com",
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *StripeClient) FindOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	// Search first so retried checkouts reuse the same customer.
	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	q := url.Values{"email": {email}, "limit": {"1"}}
	if err := c.do(ctx, http.MethodGet, "/v1/customers?"+q.Encode(), nil, &list); err != nil {
		return "", err
	}
	if len(list.Data) > 0 {
		return list.Data[0].ID, nil
	}

	var created struct {
		ID string `json:"id"`
	}
	form := url.Values{"email": {email}, "name": {name}}
	if err := c.do(ctx, http.MethodPost, "/v1/customers", form, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *StripeClient) CreateSession(ctx context.Context, p CreateSessionParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("customer", p.CustomerID)
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", p.Currency)
	// Stripe amounts are integer minor units.
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(int64(p.Amount*100+0.5), 10))
	form.Set("line_items[0][price_data][product_data][name]", p.Description)
	form.Set("metadata[reservation_id]", strconv.FormatUint(p.ReservationID, 10))

	var raw sessionPayload
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &raw); err != nil {
		return nil, err
	}
	return raw.toSession(), nil
}

func (c *StripeClient) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var raw sessionPayload
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &raw); err != nil {
		return nil, err
	}
	return raw.toSession(), nil
}

// ParseEvent verifies the v1 signature scheme: the header carries
// "t=<unix>,v1=<hex hmac>" and the signed message is "<t>.<payload>".
func (c *StripeClient) ParseEvent(payload []byte, sigHeader string) (Event, error) {
	if c.webhookSecret != "" {
		if err := c.verifySignature(payload, sigHeader, time.Now()); err != nil {
			return Event{}, err
		}
	}

	var env struct {
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object struct {
				ID            string      `json:"id"`
				Object        string      `json:"object"`
				PaymentIntent interface{} `json:"payment_intent"`
				PaymentStatus string      `json:"payment_status"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("decode webhook payload: %w", err)
	}

	ev := Event{
		Type:       env.Type,
		OccurredAt: time.Unix(env.Created, 0).UTC(),
		Paid:       env.Data.Object.PaymentStatus == "paid",
	}
	obj := env.Data.Object
	switch obj.Object {
	case "checkout.session":
		ev.SessionID = obj.ID
		ev.PaymentIntentID = intentID(obj.PaymentIntent)
	case "payment_intent":
		ev.PaymentIntentID = obj.ID
	case "charge":
		ev.PaymentIntentID = intentID(obj.PaymentIntent)
	}
	return ev, nil
}

func (c *StripeClient) verifySignature(payload []byte, sigHeader string, now time.Time) error {
	var ts string
	var sigs []string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrBadSignature
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if d := now.Sub(time.Unix(sec, 0)); d > signatureTolerance || d < -signatureTolerance {
		return ErrBadSignature
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
	return ErrBadSignature
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error.Message != "" {
			return fmt.Errorf("stripe %s %s: %s", method, path, apiErr.Error.Message)
		}
		return fmt.Errorf("stripe %s %s: status %d", method, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type sessionPayload struct {
	ID            string      `json:"id"`
	URL           string      `json:"url"`
	PaymentIntent interface{} `json:"payment_intent"`
	PaymentStatus string      `json:"payment_status"`
	Status        string      `json:"status"`
}

func (p *sessionPayload) toSession() *Session {
	return &Session{
		ID:              p.ID,
		URL:             p.URL,
		PaymentIntentID: intentID(p.PaymentIntent),
		PaymentStatus:   p.PaymentStatus,
		Status:          p.Status,
	}
}

// intentID handles the payment_intent field arriving either as a plain
// id string or as an expanded object.
func intentID(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if id, ok := t["id"].(string); ok {
			return id
		}
	}
	return ""
}
