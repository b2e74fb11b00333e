package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookTransport posts deliveries as JSON to an HTTP endpoint.
type WebhookTransport struct {
	url     string
	timeout time.Duration
}

// NewWebhookTransport builds the transport.
func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookTransport{url: url, timeout: timeout}
}

func (t *WebhookTransport) Name() string { return "webhook" }

func (t *WebhookTransport) Deliver(ctx context.Context, d Delivery) error {
	timeout := t.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Post(t.url)
	agent.JSON(d)
	agent.Set("X-Delivery-ID", d.ID)
	agent.Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return err
	}

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("webhook responded with status %d", code)
	}
	return nil
}
