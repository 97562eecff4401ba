// Package mangopay fetches payouts, refunds and payins from the Mangopay REST API.
package mangopay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/gateway"
	"github.com/congo-pay/settlement/internal/metrics"
)

const apiVersion = "v2.01"

// Client implements gateway.ResourceFetcher with an OAuth client-credentials token.
type Client struct {
	baseURL  string
	clientID string
	apiKey   string
	timeout  time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
}

// New builds a Mangopay client.
func New(baseURL, clientID, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		apiKey:   apiKey,
		timeout:  timeout,
	}
}

// Payout retrieves a payout by id.
func (c *Client) Payout(ctx context.Context, id string) (gateway.Payout, error) {
	var res payoutResource
	if err := c.get(ctx, "payouts/"+id, &res); err != nil {
		return gateway.Payout{}, fmt.Errorf("payout %s: %w", id, err)
	}
	return res.toGateway(), nil
}

// Refund retrieves a refund by id.
func (c *Client) Refund(ctx context.Context, id string) (gateway.Refund, error) {
	var res refundResource
	if err := c.get(ctx, "refunds/"+id, &res); err != nil {
		return gateway.Refund{}, fmt.Errorf("refund %s: %w", id, err)
	}
	return res.toGateway(), nil
}

// Payin retrieves a payin by id.
func (c *Client) Payin(ctx context.Context, id string) (gateway.Payin, error) {
	var res payinResource
	if err := c.get(ctx, "payins/"+id, &res); err != nil {
		return gateway.Payin{}, fmt.Errorf("payin %s: %w", id, err)
	}
	return res.toGateway(), nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	resource, _, _ := strings.Cut(path, "/")
	start := time.Now()
	defer func() {
		metrics.ObserveGateway("mangopay", "get_"+resource, time.Since(start).Seconds())
	}()

	agent := fiber.Get(fmt.Sprintf("%s/%s/%s/%s", c.baseURL, apiVersion, c.clientID, path))
	agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Timeout(c.timeout)

	code, body, errs := agent.Struct(out)
	switch {
	case code == http.StatusNotFound:
		return gateway.ErrNotFound
	case code == http.StatusUnauthorized:
		c.resetToken()
		return fmt.Errorf("mangopay: unauthorized")
	case code >= 300:
		return fmt.Errorf("mangopay: unexpected status %d: %s", code, truncate(body))
	case len(errs) > 0:
		return fmt.Errorf("mangopay: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expires) {
		return c.token, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	agent := fiber.Post(fmt.Sprintf("%s/%s/oauth/token", c.baseURL, apiVersion))
	agent.BasicAuth(c.clientID, c.apiKey)
	agent.ContentType(fiber.MIMEApplicationForm)
	agent.BodyString("grant_type=client_credentials")
	agent.Timeout(c.timeout)

	var tok tokenResponse
	code, body, errs := agent.Struct(&tok)
	if code == 0 && len(errs) > 0 {
		return "", fmt.Errorf("mangopay token: %w", errors.Join(errs...))
	}
	if code != http.StatusOK {
		return "", fmt.Errorf("mangopay token: status %d: %s", code, truncate(body))
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("mangopay token: %w", errors.Join(errs...))
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("mangopay token: empty access token")
	}

	c.token = tok.AccessToken
	// renew a minute early so a token never expires mid-request
	c.expires = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

func (c *Client) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
