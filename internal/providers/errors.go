// Package providers implements the three scrape backends behind a uniform
// contract: a streaming JSONL fetcher, an asynchronous batch crawler with
// webhook callbacks, and a template crawler. Adapters fetch and trim;
// site handlers and the normalizer stay pure.
package providers

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ConfigError reports a missing or unusable provider configuration. It is
// never retryable: scheduling the same work again cannot succeed until an
// operator fixes the deployment.
type ConfigError struct {
	Provider string
	Message  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s config error: %s", e.Provider, e.Message)
}

// TransientError reports a failure worth retrying: rate limiting, timeouts,
// upstream 5xx.
type TransientError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transient error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s transient error: %s", e.Provider, e.Message)
}

// PaymentError reports an exhausted account (HTTP 402). Distinct from
// TransientError so operators see billing problems instead of retry noise.
type PaymentError struct {
	Provider string
	Message  string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s payment required: %s", e.Provider, e.Message)
}

// ParseError reports an upstream payload the adapter could not decode. Not
// retryable; the raw length is kept for the scrape-error log.
type ParseError struct {
	Provider  string
	SourceURL string
	Message   string
	RawLength int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s parse error for %s: %s", e.Provider, e.SourceURL, e.Message)
}

// IsConfigError reports whether err is a provider configuration failure.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsPaymentError reports whether err is an exhausted-account failure.
func IsPaymentError(err error) bool {
	var pe *PaymentError
	return errors.As(err, &pe)
}

// IsParseError reports whether err is an undecodable-payload failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsRetryable reports whether the work unit may be rescheduled: transient
// provider failures and network timeouts qualify, config/payment/parse
// failures do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "too many requests")
}

// classifyHTTPStatus maps an upstream status code to the taxonomy. Returns
// nil for 2xx.
func classifyHTTPStatus(provider string, status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 402:
		return &PaymentError{Provider: provider, Message: trimForError(body)}
	case status == 429 || status >= 500:
		return &TransientError{Provider: provider, StatusCode: status, Message: trimForError(body)}
	default:
		return &ConfigError{Provider: provider, Message: fmt.Sprintf("HTTP %d: %s", status, trimForError(body))}
	}
}

func trimForError(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		body = body[:200]
	}
	return body
}
