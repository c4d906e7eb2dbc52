package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okian/epiwatch/internal/domain/model"
)

// Default webhook configuration constants.
const (
	defaultWebhookTimeout = 30 * time.Second
)

// WebhookNotifier posts change notifications as JSON to a configured URL.
type WebhookNotifier struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// WebhookOption applies a configuration option to the WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithWebhookTimeout bounds one delivery attempt.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(n *WebhookNotifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithWebhookClient replaces the underlying HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		if c != nil {
			n.client = c
		}
	}
}

// NewWebhookNotifier creates a webhook sink posting to url.
func NewWebhookNotifier(url string, opts ...WebhookOption) *WebhookNotifier {
	n := &WebhookNotifier{
		url:     url,
		timeout: defaultWebhookTimeout,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// metricsPayload mirrors MetricSet with explicit nulls for unknown fields.
type metricsPayload struct {
	Confirmed    *int64   `json:"confirmed"`
	Deaths       *int64   `json:"deaths"`
	Recovered    *int64   `json:"recovered"`
	Active       *int64   `json:"active"`
	IncidentRate *float64 `json:"incident_rate"`
	AsOf         string   `json:"as_of,omitempty"`
}

type webhookPayload struct {
	DeliveryID   string          `json:"delivery_id"`
	SubscriberID string          `json:"subscriber_id"`
	Country      string          `json:"country"`
	Province     string          `json:"province,omitempty"`
	Previous     *metricsPayload `json:"previous"`
	Current      metricsPayload  `json:"current"`
}

// Notify implements Notifier by posting one JSON document per change.
func (n *WebhookNotifier) Notify(ctx context.Context, subscriberID string, region model.Region,
	previous *model.MetricSet, current model.MetricSet) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	payload := webhookPayload{
		DeliveryID:   uuid.NewString(),
		SubscriberID: subscriberID,
		Country:      region.Country,
		Province:     region.Province,
		Current:      toPayload(current),
	}
	if previous != nil {
		p := toPayload(*previous)
		payload.Previous = &p
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %v", ErrNotifyDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotifyDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotifyDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: webhook returned %s", ErrNotifyDelivery, resp.Status)
	}
	return nil
}

func toPayload(m model.MetricSet) metricsPayload {
	p := metricsPayload{}
	if m.Confirmed.Known {
		p.Confirmed = &m.Confirmed.Value
	}
	if m.Deaths.Known {
		p.Deaths = &m.Deaths.Value
	}
	if m.Recovered.Known {
		p.Recovered = &m.Recovered.Value
	}
	if m.Active.Known {
		p.Active = &m.Active.Value
	}
	if m.IncidentRate.Known {
		p.IncidentRate = &m.IncidentRate.Value
	}
	if !m.AsOf.IsZero() {
		p.AsOf = m.AsOf.UTC().Format(time.RFC3339)
	}
	return p
}
