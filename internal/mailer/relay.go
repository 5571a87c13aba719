package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultRelayTimeout = 10 * time.Second

type relayRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RelayMailer hands messages to an HTTP mail relay API.
type RelayMailer struct {
	client   *resty.Client
	endpoint string
}

func NewRelayMailer(endpoint string) (*RelayMailer, error) {
	client := resty.New()
	client.SetTimeout(defaultRelayTimeout)
	client.SetRetryCount(0)

	return NewRelayMailerWithClient(endpoint, client)
}

func NewRelayMailerWithClient(endpoint string, client *resty.Client) (*RelayMailer, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("relay endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid relay endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRelayTimeout)
	}
	// The relay owns retries and outbound throttling; resending from here
	// would risk duplicate delivery.
	client.SetRetryCount(0)

	return &RelayMailer{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (m *RelayMailer) Send(ctx context.Context, to, subject, body string) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("mailer is not initialized")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(to)); err != nil {
		return &MailerError{
			Message:   fmt.Sprintf("invalid recipient address %q", to),
			Transient: false,
			Cause:     err,
		}
	}

	reqBody := relayRequest{
		To:      to,
		Subject: subject,
		Body:    body,
	}

	response, err := m.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(m.endpoint)
	if err != nil {
		return &MailerError{
			Message:   "relay request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &MailerError{
			Message:   "relay returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &MailerError{
		StatusCode: statusCode,
		Message:    relayErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func relayErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("relay returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
