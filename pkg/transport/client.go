// Package transport wraps go-retryablehttp with the timeout and retry
// policy used against controller APIs.
//
// Each Client owns its cookie jar, so a Client is one controller session.
// Drivers create a fresh Client per authentication and never share it
// across device operations.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/newtron-network/ctrlcfg/pkg/metrics"
	"github.com/newtron-network/ctrlcfg/pkg/tree"
	"github.com/newtron-network/ctrlcfg/pkg/version"
)

// NoRetry as RetryMax sends every request once.
const NoRetry = -1

// Config tunes a Client. A zero RetryMax takes the default; use NoRetry
// to disable retries.
type Config struct {
	ConnectTimeout     time.Duration `json:"connect_timeout,omitempty"`
	ReadTimeout        time.Duration `json:"read_timeout,omitempty"`
	RetryMax           int           `json:"retry_max,omitempty"`
	RetryWaitMin       time.Duration `json:"retry_wait_min,omitempty"`
	RetryWaitMax       time.Duration `json:"retry_wait_max,omitempty"`
	InsecureSkipVerify bool          `json:"insecure_skip_verify,omitempty"`

	// RateLimit caps requests per second; zero disables the limiter.
	RateLimit float64 `json:"rate_limit,omitempty"`
	Burst     int     `json:"burst,omitempty"`
}

// DefaultConfig returns the controller defaults: connect 50s, read 100s,
// two retries backing off from 500ms to 5s.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     50 * time.Second,
		ReadTimeout:        100 * time.Second,
		RetryMax:           2,
		RetryWaitMin:       500 * time.Millisecond,
		RetryWaitMax:       5 * time.Second,
		InsecureSkipVerify: true,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.RetryMax == 0 {
		c.RetryMax = d.RetryMax
	}
	if c.RetryWaitMin == 0 {
		c.RetryWaitMin = d.RetryWaitMin
	}
	if c.RetryWaitMax == 0 {
		c.RetryWaitMax = d.RetryWaitMax
	}
	return c
}

// Client issues requests against one controller.
type Client struct {
	http    *retryablehttp.Client
	jar     http.CookieJar
	limiter *rate.Limiter
	header  http.Header
}

// New builds a Client with an empty cookie jar.
func New(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: tr, Jar: jar}
	rc.RetryMax = max(cfg.RetryMax, 0)
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.CheckRetry = CheckRetry
	rc.Backoff = retryablehttp.DefaultBackoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{}

	c := &Client{http: rc, jar: jar, header: make(http.Header)}
	c.header.Set("User-Agent", version.UserAgent())
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// retryStatus lists the statuses worth retrying.
var retryStatus = map[int]bool{
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// CheckRetry retries GET and POST requests that returned 502, 503 or 504.
// Connection failures and every other status are returned immediately.
func CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil || resp == nil {
		return false, err
	}
	if resp.Request != nil {
		switch resp.Request.Method {
		case http.MethodGet, http.MethodPost:
		default:
			return false, nil
		}
	}
	return retryStatus[resp.StatusCode], nil
}

// SetHeader sets a header sent with every request of this session.
func (c *Client) SetHeader(key, value string) {
	c.header.Set(key, value)
}

// Header returns a copy of the session headers.
func (c *Client) Header() http.Header {
	return c.header.Clone()
}

// Jar returns the session cookie jar.
func (c *Client) Jar() http.CookieJar {
	return c.jar
}

// Request is one controller API call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a completed call with a 2xx status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Content returns the body as a parsed JSON value, or as a raw string when
// the body is not JSON.
func (r *Response) Content() tree.Value {
	if len(strings.TrimSpace(string(r.Body))) == 0 {
		return tree.String("")
	}
	v, err := tree.Decode(r.Body)
	if err != nil {
		return tree.String(string(r.Body))
	}
	return v
}

// JSON parses the body, failing when it is not JSON.
func (r *Response) JSON() (tree.Value, error) {
	return tree.Decode(r.Body)
}

// Do sends req. Network, TLS and timeout failures and non-2xx statuses are
// all reported as *RequestError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RequestError{Method: method, URL: req.URL, Err: err}
		}
	}

	var body any
	if req.Body != nil {
		body = req.Body
	}
	hreq, err := retryablehttp.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, &RequestError{Method: method, URL: req.URL, Err: err}
	}
	for k, vals := range c.header {
		hreq.Header[k] = append([]string(nil), vals...)
	}
	for k, vals := range req.Header {
		hreq.Header[k] = append([]string(nil), vals...)
	}

	start := time.Now()
	// Exhausted retries still hand back the last response.
	resp, err := c.http.Do(hreq)
	if resp == nil {
		metrics.ObserveRequest(method, 0, time.Since(start))
		return nil, &RequestError{Method: method, URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	metrics.ObserveRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &RequestError{Method: method, URL: req.URL, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{
			Method:     method,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
			Body:       truncate(string(data), 512),
		}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// Get issues a GET without a body.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}

// ErrRequest is matched by every *RequestError.
var ErrRequest = errors.New("controller request failed")

// RequestError reports a failed controller call.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is matches ErrRequest.
func (e *RequestError) Is(target error) bool { return target == ErrRequest }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
