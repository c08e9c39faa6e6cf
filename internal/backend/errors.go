package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
)

// classifyHTTPError converts a non-2xx provider response into a typed
// backend error. The body is consumed up to 8 KiB for the message.
func classifyHTTPError(name string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errdefs.New(errdefs.KindBackend, errdefs.BackendAuthentication,
			fmt.Sprintf("%s rejected the request: %s", name, msg)).
			WithTip("check the configured API key")
	case resp.StatusCode == http.StatusTooManyRequests:
		return errdefs.New(errdefs.KindBackend, errdefs.BackendRateLimit,
			fmt.Sprintf("%s rate limited the request", name)).
			WithTip("wait a moment and retry, or reduce request frequency")
	case resp.StatusCode == http.StatusNotFound:
		return errdefs.New(errdefs.KindBackend, errdefs.BackendInvalidResponse,
			fmt.Sprintf("%s returned 404: %s", name, msg))
	case resp.StatusCode >= 500:
		return errdefs.New(errdefs.KindBackend, errdefs.BackendUnavailable,
			fmt.Sprintf("%s server error %d: %s", name, resp.StatusCode, msg)).
			WithTip(fmt.Sprintf("check the %s service logs", name))
	default:
		return errdefs.New(errdefs.KindBackend, errdefs.BackendInvalidResponse,
			fmt.Sprintf("%s returned %d: %s", name, resp.StatusCode, msg))
	}
}

// classifyTransportError converts a client-side HTTP failure into a
// retriable connection or timeout error.
func classifyTransportError(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return errdefs.RequestTimeout(name, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errdefs.ConnectionFailed(name, err)
}
