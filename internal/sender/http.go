package sender

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
)

// ResultStatusCode is the measurement result holding the last HTTP status.
const ResultStatusCode = "statusCode"

// HTTPClientConfig tunes the shared HTTP transport.
type HTTPClientConfig struct {
	Timeout             time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxIdleConns        int           `yaml:"maxIdleConns,omitempty" json:"maxIdleConns,omitempty"`
	MaxIdleConnsPerHost int           `yaml:"maxIdleConnsPerHost,omitempty" json:"maxIdleConnsPerHost,omitempty"`
	MaxConnsPerHost     int           `yaml:"maxConnsPerHost,omitempty" json:"maxConnsPerHost,omitempty"`
	IdleConnTimeout     time.Duration `yaml:"idleConnTimeout,omitempty" json:"idleConnTimeout,omitempty"`
	DisableKeepAlives   bool          `yaml:"disableKeepAlives,omitempty" json:"disableKeepAlives,omitempty"`
	DisableCompression  bool          `yaml:"disableCompression,omitempty" json:"disableCompression,omitempty"`
}

// DefaultHTTPClientConfig returns settings suited to load generation.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 1000,
		IdleConnTimeout:     90 * time.Second,
	}
}

func (c HTTPClientConfig) withDefaults(timeout time.Duration) HTTPClientConfig {
	d := DefaultHTTPClientConfig()
	if timeout > 0 {
		d.Timeout = timeout
	}
	if c.Timeout > 0 {
		d.Timeout = c.Timeout
	}
	if c.MaxIdleConns > 0 {
		d.MaxIdleConns = c.MaxIdleConns
	}
	if c.MaxIdleConnsPerHost > 0 {
		d.MaxIdleConnsPerHost = c.MaxIdleConnsPerHost
	}
	if c.MaxConnsPerHost > 0 {
		d.MaxConnsPerHost = c.MaxConnsPerHost
	}
	if c.IdleConnTimeout > 0 {
		d.IdleConnTimeout = c.IdleConnTimeout
	}
	d.DisableKeepAlives = c.DisableKeepAlives
	d.DisableCompression = c.DisableCompression
	return d
}

// NewHTTPClient creates an HTTP client with the configured transport.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		DisableCompression:  cfg.DisableCompression,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// StatusError reports a response with an unexpected status code.
type StatusError struct {
	StatusCode int
	Expected   []int
}

func (e *StatusError) Error() string {
	if len(e.Expected) == 0 {
		return fmt.Sprintf("unexpected status code %d (expected 2xx)", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code %d (expected %v)", e.StatusCode, e.Expected)
}

// HTTP sends each message as an HTTP request.
//
// The payload becomes the request body and message headers become request
// headers. The response body and headers are returned as the response
// message. The target URL may contain {{name}} placeholders, resolved in
// PreSend from the task's attributes.
type HTTP struct {
	client   *http.Client
	method   string
	target   string
	headers  map[string]string
	expected []int

	url string
}

// NewHTTP creates an HTTP sender using client. Clients are shared between
// the senders of a pool.
func NewHTTP(cfg Config, client *http.Client) *HTTP {
	return &HTTP{
		client:   client,
		method:   strings.ToUpper(cfg.Method),
		target:   cfg.Target,
		headers:  cfg.Headers,
		expected: cfg.ExpectedStatus,
	}
}

// Init implements Sender.
func (h *HTTP) Init() error {
	if h.client == nil {
		h.client = NewHTTPClient(DefaultHTTPClientConfig())
	}
	return nil
}

// Close implements Sender.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// PreSend resolves the target URL.
func (h *HTTP) PreSend(_ context.Context, _ *message.Message, attrs message.Attributes) error {
	h.url = message.Resolve(h.target, attrs)
	return nil
}

// Send performs the request.
func (h *HTTP) Send(ctx context.Context, msg *message.Message, mu *metrics.MeasurementUnit) (*message.Message, error) {
	method := h.method
	var body io.Reader
	if msg != nil && msg.Payload != "" {
		body = strings.NewReader(msg.Payload)
		if method == "" {
			method = http.MethodPost
		}
	}
	if method == "" {
		method = http.MethodGet
	}

	target := h.url
	if target == "" {
		target = h.target
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	if msg != nil {
		for k, v := range msg.Headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if mu != nil {
		mu.AppendResult(ResultStatusCode, resp.StatusCode)
	}

	response := message.New(string(payload))
	for k := range resp.Header {
		response.Headers[k] = resp.Header.Get(k)
	}

	if !h.accepts(resp.StatusCode) {
		return response, &StatusError{StatusCode: resp.StatusCode, Expected: h.expected}
	}
	return response, nil
}

// PostSend implements Sender.
func (h *HTTP) PostSend(context.Context, *message.Message) error {
	h.url = ""
	return nil
}

func (h *HTTP) accepts(code int) bool {
	if len(h.expected) == 0 {
		return code >= 200 && code < 300
	}
	return slices.Contains(h.expected, code)
}
