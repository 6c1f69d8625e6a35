// Package transport carries reports, log batches and API calls to the
// backend. HTTPTransport implements the request/response API contract;
// MQTTTransport is a publish-only alternative for fire-and-forget reports.
package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
)

const component = "transport"

// Sender delivers a payload to an endpoint. Retry queues and plugins depend
// on this rather than on a concrete transport.
type Sender interface {
	Send(ctx context.Context, endpoint string, payload any) error
}

// Fetcher reads a JSON document from an endpoint into out.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, out any) error
}

// Transport is a closable Sender.
type Transport interface {
	Sender
	Close() error
}

// Kind classifies API failures.
type Kind string

const (
	KindNetwork  Kind = "NETWORK_ERROR"
	KindHTTP     Kind = "HTTP_ERROR"
	KindBusiness Kind = "BUSINESS_ERROR"
	KindParse    Kind = "PARSE_ERROR"
)

// APIError describes a failed API call
type APIError struct {
	Kind    Kind
	Status  int // HTTP status, zero for network failures
	Code    int // business code from the response envelope
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindBusiness:
		return fmt.Sprintf("%s: code %d: %s", e.Kind, e.Code, e.Message)
	case KindHTTP:
		return fmt.Sprintf("%s: %d %s", e.Kind, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// AsAPIError extracts the APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

var statusMessages = map[int]string{
	http.StatusBadRequest:          "bad request",
	http.StatusUnauthorized:        "unauthorized, please sign in again",
	http.StatusForbidden:           "access denied",
	http.StatusNotFound:            "resource not found",
	http.StatusMethodNotAllowed:    "method not allowed",
	http.StatusRequestTimeout:      "request timed out",
	http.StatusInternalServerError: "internal server error",
	http.StatusBadGateway:          "bad gateway",
	http.StatusServiceUnavailable:  "service unavailable",
	http.StatusGatewayTimeout:      "gateway timed out",
}

// StatusMessage returns the user-facing message for an HTTP status.
func StatusMessage(status int) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf("request failed with status %d", status)
}

func wrap(apiErr *APIError, method, endpoint string) error {
	return errors.New(apiErr).
		Component(component).
		Category(errors.CategoryTransport).
		Context("method", method).
		Context("endpoint", endpoint).
		Context("kind", string(apiErr.Kind)).
		Build()
}

// LogUploader adapts a Sender to the structured logger's upload contract.
type LogUploader struct {
	Sender Sender
}

// UploadLogs posts the batch to its endpoint.
func (u LogUploader) UploadLogs(ctx context.Context, batch applog.UploadBatch) error {
	return u.Sender.Send(ctx, batch.Endpoint, batch)
}
