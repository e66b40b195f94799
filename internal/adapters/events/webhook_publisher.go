package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookPublisher POSTs audit logs to an HTTP endpoint, signed with
// HMAC-SHA256. Non-2xx responses are errors so the outbox dispatcher retries.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
}

// NewWebhookPublisher signs requests with secret. A zero or negative timeout
// falls back to defaultWebhookTimeout.
func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
	}
}

// Publish sends event as the JSON body with these headers:
//
//	Content-Type:           application/json
//	X-Audittrail-Topic:     <topic>
//	X-Audittrail-Event:     <event.EventType>
//	X-Audittrail-Type:      <event.TypeFullName>
//	X-Audittrail-Event-Id:  <event.EventID>
//	X-Hub-Signature-256:    sha256=<hex-encoded HMAC-SHA256>
func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.AuditLog) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	sig := p.sign(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Audittrail-Topic", topic)
	req.Header.Set("X-Audittrail-Event", string(event.EventType))
	req.Header.Set("X-Audittrail-Type", event.TypeFullName)
	req.Header.Set("X-Audittrail-Event-Id", event.EventID)
	req.Header.Set("X-Hub-Signature-256", "sha256="+sig)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *WebhookPublisher) sign(payload []byte) string {
	return signature(p.secret, payload)
}

// VerifySignature reports whether header is the X-Hub-Signature-256 value
// for body under secret. Receivers use it to authenticate deliveries.
func VerifySignature(secret, body []byte, header string) bool {
	got, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(got), []byte(signature(secret, body)))
}

func signature(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
