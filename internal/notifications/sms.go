package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mindline/internal/shared/config"
	"mindline/internal/waterfall"
)

// SMSClient is the outbound SMS provider boundary
type SMSClient interface {
	// Send delivers one text and returns the provider's message id. Errors
	// caused by the request itself (bad number, opted-out carrier) wrap
	// waterfall.ErrPermanentDelivery; provider outages and timeouts do not,
	// so callers can retry them.
	Send(ctx context.Context, to, body string) (string, error)
}

type httpSMSClient struct {
	baseURL    string
	accountID  string
	authToken  string
	fromNumber string
	httpClient *http.Client
}

// NewSMSClient creates an HTTP client for the SMS provider's REST API
func NewSMSClient(cfg config.SMSConfig) SMSClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &httpSMSClient{
		baseURL:    cfg.BaseURL,
		accountID:  cfg.AccountID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (c *httpSMSClient) Send(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(sendMessageRequest{
		From: c.fromNumber,
		To:   to,
		Body: body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	url := fmt.Sprintf("%s/accounts/%s/messages", c.baseURL, c.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors and timeouts are retryable.
		return "", fmt.Errorf("SMS provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read SMS provider response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed sendMessageResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("failed to parse SMS provider response: %w", err)
		}
		return parsed.MessageID, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("SMS provider error %d: %s", resp.StatusCode, string(respBody))

	default:
		// Remaining 4xx: the request itself is bad and will never go through.
		return "", fmt.Errorf("%w: provider rejected message with %d: %s",
			waterfall.ErrPermanentDelivery, resp.StatusCode, string(respBody))
	}
}
