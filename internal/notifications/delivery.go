package notifications

import (
	"fmt"
	"io"
	"net/http"
)

// maxResponseBody bounds how much of a receiver's response is kept for error messages.
const maxResponseBody = 4 << 10

// DeliveryError is returned when a receiver rejects a notification.
type DeliveryError struct {
	Channel   string
	Code      int
	Message   string
	Retryable bool
}

func (e *DeliveryError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s error %d: %s", e.Channel, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Channel, e.Message)
}

// IsRetryable reports whether delivery may succeed on a later attempt.
func (e *DeliveryError) IsRetryable() bool { return e.Retryable }

// CheckResponse classifies an HTTP response from a notification receiver.
// 2xx is success, 429 and 5xx are retryable, other statuses are permanent.
func CheckResponse(channel string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	e := &DeliveryError{Channel: channel, Code: resp.StatusCode}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		e.Message = "invalid or expired webhook"
	case resp.StatusCode == http.StatusNotFound:
		e.Message = "webhook not found"
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Message = "rate limited"
		e.Retryable = true
	case resp.StatusCode >= 500:
		e.Message = fmt.Sprintf("server error: %s", body)
		e.Retryable = true
	default:
		e.Message = fmt.Sprintf("rejected: %s", body)
	}
	return e
}

// TransportError wraps a failure to reach the receiver. Such failures are retryable.
func TransportError(channel string, err error) error {
	return &DeliveryError{Channel: channel, Message: fmt.Sprintf("send request: %v", err), Retryable: true}
}

// MaskURL hides most of a URL for logging; webhook URLs carry secrets.
func MaskURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}
