package analysis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "analysis status error"
	}
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return "analysis backend rejected the credential"
	case http.StatusRequestEntityTooLarge:
		return "file too large for analysis"
	case http.StatusTooManyRequests:
		return "analysis backend rate limit reached"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("analysis %s: HTTP %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("analysis %s: HTTP %d: %s", e.Operation, e.StatusCode, body)
}

// classifyAnalysisError retries rate limits with growing waits and connection
// failures with a fixed wait. Every other status fails immediately.
func classifyAnalysisError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: statusErr.StatusCode >= http.StatusInternalServerError,
		}
	}

	if isConnectionError(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
			FixedDelay:    true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: false,
	}
}

func isConnectionError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// describeFailure turns the executor outcome into the message stored on the
// document record.
func describeFailure(err error) string {
	if resilience.IsCircuitOpen(err) {
		return "analysis backend unavailable: circuit open"
	}
	attempts := resilience.Attempts(err)
	if attempts == 0 {
		return err.Error()
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Sprintf("rate limit exceeded after %d attempts", attempts)
	}
	var exhausted *resilience.ExhaustedError
	if errors.As(err, &exhausted) {
		return fmt.Sprintf("connection error after %d attempts: %v", attempts, exhausted.Err)
	}
	return err.Error()
}
