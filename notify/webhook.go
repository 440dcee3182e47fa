package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jfellner/trailgate/auth"
	"github.com/jfellner/trailgate/httpx"
)

// ResetMessage is the payload posted to the delivery endpoint. The receiving
// service renders and sends the actual email or SMS.
type ResetMessage struct {
	Email            string `json:"email"`
	Name             string `json:"name"`
	ResetURL         string `json:"resetUrl"`
	Token            string `json:"token"`
	ExpiresInMinutes int    `json:"expiresInMinutes"`
}

// WebhookNotifier hands reset tokens to an external delivery service over
// HTTP. Any non-2xx response counts as a failed delivery.
type WebhookNotifier struct {
	client    *httpx.Client
	path      string
	resetTTL  time.Duration
	authToken string
}

// WebhookOption configures WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithWebhookPath overrides the request path on the delivery endpoint.
func WithWebhookPath(path string) WebhookOption {
	return func(n *WebhookNotifier) {
		if path != "" {
			n.path = path
		}
	}
}

// WithWebhookAuthToken sets a bearer token presented to the delivery service.
func WithWebhookAuthToken(token string) WebhookOption {
	return func(n *WebhookNotifier) {
		n.authToken = token
	}
}

// WithWebhookResetTTL tells recipients how long the token stays valid.
func WithWebhookResetTTL(d time.Duration) WebhookOption {
	return func(n *WebhookNotifier) {
		if d > 0 {
			n.resetTTL = d
		}
	}
}

// NewWebhookNotifier creates a notifier posting to the given base URL.
func NewWebhookNotifier(baseURL string, timeout time.Duration, opts ...WebhookOption) (*WebhookNotifier, error) {
	if baseURL == "" {
		return nil, errors.New("notify: webhook notifier requires a base URL")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	n := &WebhookNotifier{
		path:     "/v1/deliveries/password-reset",
		resetTTL: auth.DefaultResetTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	n.client = httpx.NewClient(
		httpx.WithBaseURL(baseURL),
		httpx.WithClientTimeout(timeout),
	)
	return n, nil
}

// SendResetToken posts the reset message to the delivery endpoint.
func (n *WebhookNotifier) SendResetToken(ctx context.Context, p auth.Principal, rawToken, resetURL string) error {
	msg := ResetMessage{
		Email:            p.Email,
		Name:             p.Name,
		ResetURL:         resetURL,
		Token:            rawToken,
		ExpiresInMinutes: int(n.resetTTL / time.Minute),
	}
	var reqOpts []httpx.RequestOption
	if n.authToken != "" {
		reqOpts = append(reqOpts, httpx.WithBearer(n.authToken))
	}
	if _, err := n.client.Post(ctx, n.path, msg, nil, reqOpts...); err != nil {
		return fmt.Errorf("notify: webhook delivery: %w", err)
	}
	return nil
}
