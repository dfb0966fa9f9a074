package raven

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sony/gobreaker"

	"github.com/ravenclient/raven-go/internal/debuglog"
	"github.com/ravenclient/raven-go/internal/ratelimit"
)

const defaultTimeout = 5 * time.Second

// maxDrainResponseBytes is the maximum number of bytes read from response
// bodies. The server's responses are short, but net/http requires bodies to
// be drained and closed for keep-alive connections to be reused.
const maxDrainResponseBytes = 16 << 10

var (
	// ErrRateLimited is returned while the server asked the SDK to back off.
	// No request is made in that case.
	ErrRateLimited = errors.New("rate limited by server")

	// ErrCircuitOpen is returned while the circuit breaker is open because
	// too many consecutive requests failed. No request is made in that case.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrEventEncoding wraps failures to serialize or compress an event.
	// Nothing is sent in that case.
	ErrEventEncoding = errors.New("event could not be encoded")
)

// RequestError is returned when the server answers with an error status.
type RequestError struct {
	StatusCode int
	// ServerError is the value of the X-Sentry-Error response header.
	ServerError string
	Body        string
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("server responded with status %d", e.StatusCode)
	if e.ServerError != "" {
		msg += ": " + e.ServerError
	} else if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// CircuitBreakerOptions configures the circuit breaker of an
// HTTPRequesterFactory.
type CircuitBreakerOptions struct {
	// ConsecutiveFailures is the number of failed requests in a row after
	// which the breaker opens. Defaults to 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a trial
	// request through. Defaults to 30 seconds.
	OpenTimeout time.Duration
}

// HTTPRequesterOptions configures an HTTPRequesterFactory.
type HTTPRequesterOptions struct {
	// HTTPClient is used for all requests. When nil a client is built from
	// HTTPTransport, HTTPProxy, HTTPSProxy and CaCerts.
	HTTPClient    *http.Client
	HTTPTransport http.RoundTripper
	HTTPProxy     string
	HTTPSProxy    string
	CaCerts       *x509.CertPool
	// Scrubber is applied to serialized events before they are sent.
	Scrubber Scrubber
	// UserAgent defaults to raven-go/<version>.
	UserAgent string
	// FeedbackTimeout bounds user feedback submissions. Defaults to 5 seconds.
	FeedbackTimeout time.Duration
	// CircuitBreaker enables failing fast when the server keeps failing.
	CircuitBreaker *CircuitBreakerOptions
}

// HTTPRequesterFactory creates Requesters that send events and user feedback
// over HTTP. Requesters created by the same factory share its HTTP client,
// rate limits and circuit breaker.
type HTTPRequesterFactory struct {
	client          *http.Client
	scrubber        Scrubber
	userAgent       string
	feedbackTimeout time.Duration
	breaker         *gobreaker.CircuitBreaker

	mu     sync.RWMutex
	limits ratelimit.Map
}

func getProxyConfig(options HTTPRequesterOptions) func(*http.Request) (*url.URL, error) {
	if options.HTTPSProxy != "" {
		return func(*http.Request) (*url.URL, error) {
			return url.Parse(options.HTTPSProxy)
		}
	}

	if options.HTTPProxy != "" {
		return func(*http.Request) (*url.URL, error) {
			return url.Parse(options.HTTPProxy)
		}
	}

	return http.ProxyFromEnvironment
}

func getTLSConfig(options HTTPRequesterOptions) *tls.Config {
	if options.CaCerts != nil {
		// #nosec G402 -- MinVersion is left to the Go defaults.
		return &tls.Config{
			RootCAs: options.CaCerts,
		}
	}

	return nil
}

// NewHTTPRequesterFactory returns a factory configured with options.
func NewHTTPRequesterFactory(options HTTPRequesterOptions) *HTTPRequesterFactory {
	f := &HTTPRequesterFactory{
		client:          options.HTTPClient,
		scrubber:        options.Scrubber,
		userAgent:       options.UserAgent,
		feedbackTimeout: options.FeedbackTimeout,
		limits:          make(ratelimit.Map),
	}

	if f.client == nil {
		transport := options.HTTPTransport
		if transport == nil {
			transport = &http.Transport{
				Proxy:           getProxyConfig(options),
				TLSClientConfig: getTLSConfig(options),
			}
		}
		f.client = &http.Client{Transport: transport}
	}
	if f.userAgent == "" {
		f.userAgent = userAgent
	}
	if f.feedbackTimeout <= 0 {
		f.feedbackTimeout = defaultTimeout
	}
	if options.CircuitBreaker != nil {
		f.breaker = newCircuitBreaker(*options.CircuitBreaker)
	}

	return f
}

func newCircuitBreaker(options CircuitBreakerOptions) *gobreaker.CircuitBreaker {
	failures := options.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	timeout := options.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        sdkIdentifier,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only transport failures and server errors count against the
		// server. Rejected payloads and rate limits do not.
		IsSuccessful: func(err error) bool {
			var reqErr *RequestError
			if errors.As(err, &reqErr) {
				return reqErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil || errors.Is(err, ErrRateLimited)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			debuglog.Printf("Circuit breaker changed from %s to %s", from, to)
		},
	})
}

// Create returns a Requester sending event to the store endpoint of dsn.
func (f *HTTPRequesterFactory) Create(event *Event, dsn *Dsn, timeout time.Duration, useCompression bool) Requester {
	return &httpRequester{
		factory:        f,
		event:          event,
		dsn:            dsn,
		timeout:        timeout,
		useCompression: useCompression,
	}
}

// CreateFeedback returns a Requester sending feedback to the user feedback
// endpoint of dsn.
func (f *HTTPRequesterFactory) CreateFeedback(feedback *UserFeedback, dsn *Dsn) Requester {
	return &httpRequester{
		factory:  f,
		feedback: feedback,
		dsn:      dsn,
		timeout:  f.feedbackTimeout,
	}
}

// IsRateLimited reports whether requests of the given kind are currently
// held back.
func (f *HTTPRequesterFactory) IsRateLimited(feedback bool) bool {
	return f.isRateLimited(categoryFor(feedback))
}

func categoryFor(feedback bool) ratelimit.Category {
	if feedback {
		return ratelimit.CategoryUserReport
	}
	return ratelimit.CategoryError
}

func (f *HTTPRequesterFactory) isRateLimited(c ratelimit.Category) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	limited := f.limits.IsRateLimited(c)
	if limited {
		debuglog.Printf("Rate limited for %q until %v", c, f.limits.Deadline(c))
	}
	return limited
}

func (f *HTTPRequesterFactory) do(req *http.Request) (*http.Response, error) {
	if f.breaker == nil {
		return f.roundTrip(req)
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.roundTrip(req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	resp, _ := result.(*http.Response)
	return resp, err
}

// roundTrip sends req and turns error statuses into errors. On error the
// response body is already closed; otherwise the caller must close it.
func (f *HTTPRequesterFactory) roundTrip(req *http.Request) (*http.Response, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.limits.Merge(ratelimit.FromResponse(resp))
	f.mu.Unlock()

	if resp.StatusCode == http.StatusTooManyRequests {
		drainAndClose(resp.Body)
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDrainResponseBytes))
		drainAndClose(resp.Body)
		return nil, &RequestError{
			StatusCode:  resp.StatusCode,
			ServerError: resp.Header.Get("X-Sentry-Error"),
			Body:        strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}

// drainAndClose reads body up to a limit and closes it, allowing the
// transport to reuse TCP connections.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, maxDrainResponseBytes)
	_ = body.Close()
}

// httpRequester sends either an event or a user feedback.
type httpRequester struct {
	factory        *HTTPRequesterFactory
	event          *Event
	feedback       *UserFeedback
	dsn            *Dsn
	timeout        time.Duration
	useCompression bool
}

// UseEventID sets the ID of the event to send. Feedback keeps the ID of the
// event it comments on.
func (r *httpRequester) UseEventID(id string) {
	if r.event != nil {
		r.event.EventID = id
	}
}

func (r *httpRequester) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

// Request sends the event and returns the ID acknowledged by the server.
func (r *httpRequester) Request(ctx context.Context) (string, error) {
	if r.event == nil {
		return "", errors.New("requester has no event to send")
	}
	if r.dsn == nil {
		return "", errors.New("requester has no DSN")
	}
	if r.factory.isRateLimited(ratelimit.CategoryError) {
		return "", ErrRateLimited
	}

	body, contentEncoding, err := r.encodeEvent()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrEventEncoding, r.event.EventID, err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.dsn.StoreAPIURL().String(), body)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", r.factory.userAgent)
	req.Header.Set("X-Sentry-Auth", r.dsn.AuthHeader(r.factory.userAgent, time.Now()))
	if contentEncoding != "" {
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Content-Encoding", contentEncoding)
	} else {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.factory.do(req)
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp.Body)

	var response struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDrainResponseBytes)).Decode(&response); err != nil || response.ID == "" {
		return r.event.EventID, nil
	}
	return response.ID, nil
}

// encodeEvent serializes and scrubs the event, compressing it if requested.
// The second result is the content encoding, empty when not compressed.
func (r *httpRequester) encodeEvent() (io.Reader, string, error) {
	data, err := json.Marshal(r.event)
	if err != nil {
		return nil, "", err
	}
	if r.factory.scrubber != nil {
		data = []byte(r.factory.scrubber.Scrub(string(data)))
	}
	if !r.useCompression {
		return bytes.NewReader(data), "", nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, "", err
	}
	if err := zw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, "gzip", nil
}

// SendFeedback posts the feedback form and returns the ID of the event the
// feedback refers to.
func (r *httpRequester) SendFeedback(ctx context.Context) (string, error) {
	if r.feedback == nil {
		return "", errors.New("requester has no feedback to send")
	}
	if r.dsn == nil {
		return "", errors.New("requester has no DSN")
	}
	if r.factory.isRateLimited(ratelimit.CategoryUserReport) {
		return "", ErrRateLimited
	}

	form := url.Values{}
	form.Set("name", r.feedback.Name)
	form.Set("email", r.feedback.Email)
	form.Set("comments", r.feedback.Comments)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.dsn.FeedbackAPIURL(r.feedback.EventID).String(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", r.factory.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", r.dsn.Origin())
	req.Header.Set("Origin", r.dsn.Origin())

	resp, err := r.factory.do(req)
	if err != nil {
		return "", err
	}
	drainAndClose(resp.Body)

	return r.feedback.EventID, nil
}
