package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// Kind classifies a failed backend call.
type Kind string

const (
	KindAuth        Kind = "AuthError"
	KindNotFound    Kind = "NotFound"
	KindRateLimited Kind = "RateLimited"
	KindNetwork     Kind = "NetworkUnavailable"
	KindMalformed   Kind = "MalformedResponse"
	KindTimeout     Kind = "Timeout"
	KindUnknown     Kind = "Unknown"
)

// GatewayError is the only error type returned by the backends in this package.
type GatewayError struct {
	Kind     Kind
	Provider Provider
	Status   int
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

var (
	errNoChoices    = errors.New("no choices returned")
	errEmptyContent = errors.New("empty completion content")
)

func malformed(p Provider, err error) *GatewayError {
	return &GatewayError{Kind: KindMalformed, Provider: p, Err: err}
}

// classify maps an SDK or transport error onto a Kind.
func classify(p Provider, err error) error {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}

	out := &GatewayError{Kind: KindUnknown, Provider: p, Err: err}

	var (
		oaiErr    *openai.Error
		claudeErr *anthropic.Error
		geminiErr genai.APIError
	)
	switch {
	case errors.As(err, &oaiErr):
		out.Status = oaiErr.StatusCode
	case errors.As(err, &claudeErr):
		out.Status = claudeErr.StatusCode
	case errors.As(err, &geminiErr):
		out.Status = geminiErr.Code
	}

	if out.Status != 0 {
		out.Kind = kindForStatus(out.Status)
		return out
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindTimeout
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			out.Kind = KindTimeout
		} else {
			out.Kind = KindNetwork
		}
	}
	return out
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return KindNetwork
	}
	return KindUnknown
}
