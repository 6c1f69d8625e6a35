package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Saisumanthklv/weapp-starter-template/internal/httpclient"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
	"github.com/Saisumanthklv/weapp-starter-template/internal/storage"
	"github.com/Saisumanthklv/weapp-starter-template/internal/sysinfo"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// DeviceSource supplies the X-Device-Info header.
type DeviceSource interface {
	Info() sysinfo.DeviceInfo
}

// HTTPConfig configures HTTPTransport
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	KV      storage.KV   // token source; cleared on business 401
	Device  DeviceSource // optional
	Logger  logger.Logger
	Client  *httpclient.Client // optional, built from Timeout when nil
}

// HTTPTransport talks to the JSON API. Responses use the envelope
// {code, success, message, data}; a call succeeds when code is 0 or
// success is true and resolves to data, or to the whole body when data
// is absent.
type HTTPTransport struct {
	baseURL string
	kv      storage.KV
	device  DeviceSource
	log     logger.Logger
	client  *httpclient.Client
}

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	client := cfg.Client
	if client == nil {
		client = httpclient.New(&httpclient.Config{DefaultTimeout: cfg.Timeout})
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	t := &HTTPTransport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		kv:      cfg.KV,
		device:  cfg.Device,
		log:     log.Module(component),
		client:  client,
	}
	client.SetAfterResponseHook(t.traceResponse)
	return t
}

// Client returns the underlying HTTP client.
func (t *HTTPTransport) Client() *httpclient.Client {
	return t.client
}

// Get issues a GET with params as the query string and decodes the resolved data into out.
func (t *HTTPTransport) Get(ctx context.Context, endpoint string, params url.Values, out any) error {
	return t.Request(ctx, http.MethodGet, endpoint, params, nil, out)
}

// Post issues a POST with body as JSON.
func (t *HTTPTransport) Post(ctx context.Context, endpoint string, body, out any) error {
	return t.Request(ctx, http.MethodPost, endpoint, nil, body, out)
}

// Put issues a PUT with body as JSON.
func (t *HTTPTransport) Put(ctx context.Context, endpoint string, body, out any) error {
	return t.Request(ctx, http.MethodPut, endpoint, nil, body, out)
}

// Delete issues a DELETE.
func (t *HTTPTransport) Delete(ctx context.Context, endpoint string, out any) error {
	return t.Request(ctx, http.MethodDelete, endpoint, nil, nil, out)
}

// Send implements Sender as a POST whose resolved data is discarded.
func (t *HTTPTransport) Send(ctx context.Context, endpoint string, payload any) error {
	return t.Post(ctx, endpoint, payload, nil)
}

// Fetch implements Fetcher as a GET.
func (t *HTTPTransport) Fetch(ctx context.Context, endpoint string, out any) error {
	return t.Get(ctx, endpoint, nil, out)
}

// Request performs one API call. out may be nil.
func (t *HTTPTransport) Request(ctx context.Context, method, endpoint string, params url.Values, body, out any) error {
	req, err := httpclient.NewJSONRequest(ctx, method, t.resolve(endpoint), params, body)
	if err != nil {
		kind := KindNetwork
		if body != nil {
			kind = KindParse
		}
		return wrap(&APIError{Kind: kind, Message: err.Error(), Err: err}, method, endpoint)
	}
	return t.do(ctx, req, endpoint, out)
}

// Upload posts filePath as multipart field "file" with fields as extra form
// values. The JSON reply goes through the same envelope check as Request.
func (t *HTTPTransport) Upload(ctx context.Context, endpoint, filePath string, fields map[string]string, out any) error {
	req, err := httpclient.NewUploadRequest(ctx, t.resolve(endpoint), filePath, fields)
	if err != nil {
		return wrap(&APIError{Kind: KindNetwork, Message: err.Error(), Err: err}, http.MethodPost, endpoint)
	}
	return t.do(ctx, req, endpoint, out)
}

// Close releases pooled connections.
func (t *HTTPTransport) Close() error {
	t.client.Close()
	return nil
}

func (t *HTTPTransport) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return t.baseURL + endpoint
}

func (t *HTTPTransport) decorate(req *http.Request) {
	if t.kv != nil {
		if token := storage.GetString(t.kv, storage.KeyToken); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if t.device != nil {
		req.Header.Set("X-Device-Info", t.device.Info().Header())
	}
}

type envelope struct {
	Code    *int            `json:"code"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (t *HTTPTransport) do(ctx context.Context, req *http.Request, endpoint string, out any) error {
	t.decorate(req)
	method := req.Method

	resp, err := t.client.Do(ctx, req)
	if err != nil {
		return wrap(&APIError{Kind: KindNetwork, Message: err.Error(), Err: err}, method, endpoint)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return wrap(&APIError{Kind: KindNetwork, Status: resp.StatusCode, Message: err.Error(), Err: err}, method, endpoint)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return wrap(&APIError{Kind: KindHTTP, Status: resp.StatusCode, Message: StatusMessage(resp.StatusCode)}, method, endpoint)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return wrap(&APIError{Kind: KindParse, Status: resp.StatusCode, Message: "response is not valid JSON", Err: err}, method, endpoint)
	}

	if !env.Success && (env.Code == nil || *env.Code != 0) {
		code := 0
		if env.Code != nil {
			code = *env.Code
		}
		if code == http.StatusUnauthorized {
			t.clearSession()
		}
		msg := env.Message
		if msg == "" {
			msg = "request failed"
		}
		return wrap(&APIError{Kind: KindBusiness, Status: resp.StatusCode, Code: code, Message: msg}, method, endpoint)
	}

	if out == nil {
		return nil
	}
	payload := []byte(env.Data)
	if len(payload) == 0 || string(payload) == "null" {
		payload = raw
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return wrap(&APIError{Kind: KindParse, Status: resp.StatusCode, Message: "unexpected response shape", Err: err}, method, endpoint)
	}
	return nil
}

func (t *HTTPTransport) clearSession() {
	if t.kv == nil {
		return
	}
	for _, key := range []string{storage.KeyToken, storage.KeyUserInfo} {
		if err := t.kv.Remove(key); err != nil {
			t.log.Warn("failed to clear session key", logger.String("key", key), logger.Error(err))
		}
	}
	t.log.Info("session cleared after unauthorized response")
}

func (t *HTTPTransport) traceResponse(req *http.Request, resp *http.Response, err error) {
	if err != nil {
		t.log.Debug("api request failed",
			logger.String("method", req.Method),
			logger.String("url", req.URL.Redacted()),
			logger.Error(err))
		return
	}
	t.log.Debug("api request",
		logger.String("method", req.Method),
		logger.String("url", req.URL.Redacted()),
		logger.Int("status", resp.StatusCode))
}
