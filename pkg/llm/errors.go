package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
)

// ErrorKind classifies a provider failure. The kind decides retry policy;
// messages are never inspected.
type ErrorKind string

const (
	// KindConfig covers bad credentials, unknown models and bad endpoints.
	KindConfig ErrorKind = "config"
	// KindQuota covers exhausted billing quotas and oversized requests.
	KindQuota ErrorKind = "quota"
	// KindTransient covers rate limits, timeouts, overload and 5xx replies.
	KindTransient ErrorKind = "transient"
	// KindInvalidResponse means the provider answered but the reply was unusable.
	KindInvalidResponse ErrorKind = "invalid_response"
	KindUnknown         ErrorKind = "unknown"
)

// Retryable reports whether errors of this kind may succeed on a later attempt.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient
}

// Terminal reports whether retrying can never help without a config change.
func (k ErrorKind) Terminal() bool {
	return k == KindConfig || k == KindQuota
}

// Error represents a structured LLM error with classification.
type Error struct {
	Kind       ErrorKind
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
	Endpoint   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{string(e.Kind)}

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := redactEndpoint(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error. Retryable follows the kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: kind.Retryable(),
		Cause:     cause,
	}
}

const openAIQuotaCode = "insufficient_quota"

// ClassifyError maps a provider error to a structured Error using typed
// provider errors, HTTP status codes and context/network error types.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	var oaiAPIErr *openai.APIError
	if errors.As(err, &oaiAPIErr) {
		// OpenAI reports an exhausted billing quota as a 429.
		if oaiAPIErr.Type == openAIQuotaCode || oaiAPIErr.Code == openAIQuotaCode {
			e := NewError(KindQuota, "quota exceeded", err)
			e.StatusCode = oaiAPIErr.HTTPStatusCode
			return e
		}
		return fromStatus(oaiAPIErr.HTTPStatusCode, err)
	}
	var oaiReqErr *openai.RequestError
	if errors.As(err, &oaiReqErr) {
		return fromStatus(oaiReqErr.HTTPStatusCode, err)
	}

	var antAPIErr *anthropic.APIError
	if errors.As(err, &antAPIErr) {
		return fromAnthropicType(string(antAPIErr.Type), err)
	}
	var antReqErr *anthropic.RequestError
	if errors.As(err, &antReqErr) {
		return fromStatus(antReqErr.StatusCode, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTransient, "request timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(KindUnknown, "request canceled", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return NewError(KindConfig, "endpoint host not found", err)
		}
		return NewError(KindTransient, "dns lookup failed", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(KindTransient, "connection failed", err)
	}

	return NewError(KindUnknown, "llm error", err)
}

func fromStatus(status int, err error) *Error {
	var e *Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = NewError(KindConfig, "authentication failed", err)
	case status == http.StatusNotFound:
		e = NewError(KindConfig, "model or endpoint not found", err)
	case status == http.StatusPaymentRequired || status == http.StatusRequestEntityTooLarge:
		e = NewError(KindQuota, "quota exceeded", err)
	case status == http.StatusTooManyRequests:
		e = NewError(KindTransient, "rate limited", err)
	case status == http.StatusRequestTimeout:
		e = NewError(KindTransient, "request timeout", err)
	case status >= 500:
		e = NewError(KindTransient, "server error", err)
	case status >= 400:
		e = NewError(KindConfig, "request rejected", err)
	default:
		e = NewError(KindUnknown, "llm error", err)
	}
	e.StatusCode = status
	return e
}

func fromAnthropicType(errType string, err error) *Error {
	switch errType {
	case "authentication_error", "permission_error", "not_found_error", "invalid_request_error":
		return NewError(KindConfig, "request rejected", err)
	case "request_too_large", "billing_error":
		return NewError(KindQuota, "quota exceeded", err)
	case "rate_limit_error", "overloaded_error", "api_error", "timeout_error":
		return NewError(KindTransient, "provider unavailable", err)
	default:
		return NewError(KindUnknown, "llm error", err)
	}
}

// KindOf extracts the ErrorKind from an error.
func KindOf(err error) ErrorKind {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind
	}
	return KindUnknown
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

func redactEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
