package raven

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"maps"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ravenclient/raven-go/internal/clientreport"
	"github.com/ravenclient/raven-go/internal/debuglog"
	"github.com/ravenclient/raven-go/internal/ratelimit"
)

const defaultLogger = "root"

// ClientOptions that configures a SDK Client.
type ClientOptions struct {
	// The DSN to use. If the DSN is not set, the client is effectively
	// disabled.
	Dsn string
	// In debug mode, the debug information is printed to stderr to help you
	// understand what the SDK is doing.
	Debug bool
	// Configures where the debug information is written. Defaults to stderr.
	DebugWriter io.Writer
	// The release to be sent with events.
	Release string
	// The environment to be sent with events.
	Environment string
	// The server name to be reported. Defaults to the host name.
	ServerName string
	// The logger name reported with events. Defaults to "root".
	Logger string
	// Tags added to every event. Tags set on an event take precedence.
	Tags map[string]string
	// The sample rate for event submission in the range [0.0, 1.0]. A value
	// of 0 is treated as 1, sending every event.
	SampleRate float64
	// BeforeSend is called before an event is sent. Returning nil drops it.
	BeforeSend func(event *Event) *Event
	// OnCapture is called with every event about to be sent.
	OnCapture func(event *Event)
	// OnCaptureError is called when sending an event or feedback fails.
	// Events dropped by a full background queue are not reported here.
	OnCaptureError func(err error)
	// Scrubber is applied to serialized events before they are sent.
	Scrubber Scrubber
	// DisableClientReports stops recording discarded events. DiscardedEvents
	// then always returns nil.
	DisableClientReports bool
	// IgnoreBreadcrumbs stops attaching recorded breadcrumbs to events.
	IgnoreBreadcrumbs bool
	// The maximum number of breadcrumbs kept, at most 100. Defaults to 100.
	MaxBreadcrumbs int
	// The maximum number of errors followed when unwrapping an error chain.
	// Defaults to 10.
	MaxErrorDepth int
	// Timeout of a single event submission. Defaults to 5 seconds.
	Timeout time.Duration
	// Compression gzips event payloads.
	Compression bool
	// Async sends events from a background goroutine. Capture methods then
	// return as soon as the event is queued.
	Async bool
	// AsyncOptions configure the background queue when Async is set.
	AsyncOptions []BackgroundOption
	// RequesterFactory replaces the HTTP requester factory. The options
	// below are ignored when it is set.
	RequesterFactory RequesterFactory
	// An optional pre-configured http.Client.
	HTTPClient *http.Client
	// An optional http.RoundTripper used when HTTPClient is nil.
	HTTPTransport http.RoundTripper
	// An optional HTTP proxy to use.
	HTTPProxy string
	// An optional HTTPS proxy to use.
	HTTPSProxy string
	// An optional set of SSL certificates to use.
	CaCerts *x509.CertPool
	// CircuitBreaker makes requests fail fast while the server keeps failing.
	CircuitBreaker *CircuitBreakerOptions
}

// DiscardedEvent counts the events and feedback the client did not deliver
// for one reason.
type DiscardedEvent struct {
	Reason   string
	Category string
	Quantity int64
}

// Client is the underlying processor that is used by the main API. It builds
// events, applies the configured options and hands the events to its
// RequesterFactory.
type Client struct {
	options     ClientOptions
	dsn         *Dsn
	factory     RequesterFactory
	background  *BackgroundRequesterFactory
	breadcrumbs *breadcrumbsRecorder
	reports     *clientreport.Aggregator

	mu   sync.RWMutex
	tags map[string]string
	user *User
}

// NewClient creates and returns an instance of Client configured using
// ClientOptions.
func NewClient(options ClientOptions) (*Client, error) {
	if options.Debug {
		debuglog.SetOutput(options.DebugWriter)
	}

	if options.Dsn == "" {
		options.Dsn = os.Getenv("SENTRY_DSN")
	}
	if options.Release == "" {
		options.Release = os.Getenv("SENTRY_RELEASE")
	}
	if options.Environment == "" {
		options.Environment = os.Getenv("SENTRY_ENVIRONMENT")
	}
	if options.ServerName == "" {
		options.ServerName, _ = os.Hostname()
	}
	if options.Logger == "" {
		options.Logger = defaultLogger
	}
	if options.Timeout <= 0 {
		options.Timeout = defaultTimeout
	}
	if options.SampleRate < 0 || options.SampleRate > 1 {
		return nil, fmt.Errorf("invalid SampleRate %v: must be in the range [0.0, 1.0]", options.SampleRate)
	}

	var dsn *Dsn
	if options.Dsn != "" {
		var err error
		dsn, err = NewDsn(options.Dsn)
		if err != nil {
			return nil, err
		}
	} else {
		debuglog.Println("Client initialized with an empty DSN, events will not be sent")
	}

	client := &Client{
		options:     options,
		dsn:         dsn,
		breadcrumbs: newBreadcrumbsRecorder(options.MaxBreadcrumbs),
		reports:     clientreport.NewAggregator(),
		tags:        maps.Clone(options.Tags),
	}
	client.reports.SetEnabled(!options.DisableClientReports)

	client.factory = options.RequesterFactory
	if client.factory == nil {
		client.factory = NewHTTPRequesterFactory(HTTPRequesterOptions{
			HTTPClient:     options.HTTPClient,
			HTTPTransport:  options.HTTPTransport,
			HTTPProxy:      options.HTTPProxy,
			HTTPSProxy:     options.HTTPSProxy,
			CaCerts:        options.CaCerts,
			Scrubber:       options.Scrubber,
			CircuitBreaker: options.CircuitBreaker,
		})
	}

	if options.Async {
		background, err := NewBackgroundRequesterFactory(client.factory, options.AsyncOptions...)
		if err != nil {
			return nil, err
		}
		client.background = background
		client.factory = background
	}

	return client, nil
}

// Options return ClientOptions for the current Client.
func (client *Client) Options() ClientOptions {
	return client.options
}

// Dsn returns the parsed DSN, or nil if the client has none.
func (client *Client) Dsn() *Dsn {
	return client.dsn
}

// SetTag sets a tag sent with every subsequent event.
func (client *Client) SetTag(key, value string) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.tags == nil {
		client.tags = make(map[string]string)
	}
	client.tags[key] = value
}

// SetUser sets the user reported with events that do not name one.
func (client *Client) SetUser(user User) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if user.IsEmpty() {
		client.user = nil
		return
	}
	client.user = &user
}

// AddBreadcrumb records a breadcrumb attached to subsequent events.
func (client *Client) AddBreadcrumb(breadcrumb *Breadcrumb) {
	client.breadcrumbs.Add(breadcrumb)
}

// Breadcrumbs returns the recorded breadcrumbs, oldest first.
func (client *Client) Breadcrumbs() []*Breadcrumb {
	return client.breadcrumbs.Snapshot()
}

func (client *Client) ClearBreadcrumbs() {
	client.breadcrumbs.Clear()
}

// CaptureMessage captures an arbitrary message.
func (client *Client) CaptureMessage(ctx context.Context, message string, level Level) string {
	event := NewEvent()
	event.Message = message
	event.Level = level
	return client.Capture(ctx, event)
}

// CaptureException captures an error together with the errors it wraps.
func (client *Client) CaptureException(ctx context.Context, exception error) string {
	if exception == nil {
		return ""
	}
	return client.Capture(ctx, client.EventFromException(exception, LevelError))
}

// EventFromException builds an event describing err without sending it.
func (client *Client) EventFromException(err error, level Level) *Event {
	event := NewEvent()
	event.Level = level
	event.Exception = convertErrorToExceptions(err, client.options.MaxErrorDepth)
	if len(event.Exception) > 0 && !hasStacktrace(event.Exception) {
		event.Exception[len(event.Exception)-1].Stacktrace = NewStacktrace()
	}
	return event
}

// EventFromRecovered builds a fatal event describing a value recovered from
// a panic. It returns nil if recovered is nil.
func (client *Client) EventFromRecovered(recovered interface{}) *Event {
	var event *Event
	switch v := recovered.(type) {
	case nil:
		return nil
	case error:
		event = client.EventFromException(v, LevelFatal)
	default:
		event = client.EventFromException(fmt.Errorf("%v", v), LevelFatal)
		event.Message = fmt.Sprint(v)
	}
	return event
}

// Recover captures a value recovered from a panic. It returns an empty
// string if recovered is nil or the event was not sent.
func (client *Client) Recover(ctx context.Context, recovered interface{}) string {
	event := client.EventFromRecovered(recovered)
	if event == nil {
		return ""
	}
	return client.Capture(ctx, event)
}

// Capture sends event and returns its ID. An empty ID means the event was
// not sent: it was sampled out, dropped by BeforeSend, could not be queued
// or failed to send.
//
// When the client is Async the ID is returned as soon as the event is
// queued. It identifies the event but does not confirm delivery.
func (client *Client) Capture(ctx context.Context, event *Event) string {
	if event == nil {
		return ""
	}
	if client.dsn == nil {
		debuglog.Println("Event dropped: no DSN configured")
		return ""
	}
	if !client.sample() {
		debuglog.Println("Event dropped due to SampleRate hit")
		client.reports.RecordOne(clientreport.ReasonSampleRate, ratelimit.CategoryError)
		return ""
	}

	event = client.prepareEvent(event)

	if client.options.BeforeSend != nil {
		if event = client.options.BeforeSend(event); event == nil {
			debuglog.Println("Event dropped due to BeforeSend callback")
			client.reports.RecordOne(clientreport.ReasonBeforeSend, ratelimit.CategoryError)
			return ""
		}
	}

	if client.options.OnCapture != nil {
		client.options.OnCapture(event)
	}

	requester := client.factory.Create(event, client.dsn, client.options.Timeout, client.options.Compression)
	requester.UseEventID(event.EventID)

	id, err := requester.Request(ctx)
	if err != nil {
		client.handleSendError(err, ratelimit.CategoryError)
		return ""
	}

	debuglog.Printf("Sending %s event [%s] to %s project: %s",
		event.Level, id, client.dsn.Host(), client.dsn.ProjectID())
	return id
}

// SendUserFeedback sends a user's comment on a previously captured event.
// It returns an empty string if the feedback was not sent.
func (client *Client) SendUserFeedback(ctx context.Context, feedback *UserFeedback) string {
	if feedback == nil || feedback.EventID == "" {
		debuglog.Println("Feedback dropped: no event ID")
		return ""
	}
	if client.dsn == nil {
		debuglog.Println("Feedback dropped: no DSN configured")
		return ""
	}

	id, err := client.factory.CreateFeedback(feedback, client.dsn).SendFeedback(ctx)
	if err != nil {
		client.handleSendError(err, ratelimit.CategoryUserReport)
		return ""
	}
	return id
}

// DiscardedEvents returns what was dropped since the previous call.
func (client *Client) DiscardedEvents() []DiscardedEvent {
	report := client.reports.TakeReport()
	if report == nil {
		return nil
	}
	out := make([]DiscardedEvent, 0, len(report.DiscardedEvents))
	for _, e := range report.DiscardedEvents {
		out = append(out, DiscardedEvent{
			Reason:   string(e.Reason),
			Category: string(e.Category),
			Quantity: e.Quantity,
		})
	}
	return out
}

// Close releases the client. An Async client waits for its queue to drain,
// bounded by the drain timeout.
func (client *Client) Close() {
	if client.background != nil {
		client.background.Close()
	}
}

func (client *Client) handleSendError(err error, category ratelimit.Category) {
	var reqErr *RequestError
	switch {
	case errors.Is(err, ErrQueueFull):
		client.reports.RecordOne(clientreport.ReasonQueueOverflow, category)
		return
	case errors.Is(err, ErrFactoryClosed):
		client.reports.RecordOne(clientreport.ReasonQueueClosed, category)
		return
	case errors.Is(err, ErrRateLimited):
		client.reports.RecordOne(clientreport.ReasonRateLimitBackoff, category)
	case errors.Is(err, ErrEventEncoding):
		client.reports.RecordOne(clientreport.ReasonInternalError, category)
	case errors.As(err, &reqErr):
		client.reports.RecordOne(clientreport.ReasonSendError, category)
	default:
		client.reports.RecordOne(clientreport.ReasonNetworkError, category)
	}

	debuglog.Printf("There was an issue with sending an event: %v", err)
	if client.options.OnCaptureError != nil {
		client.options.OnCaptureError(err)
	}
}

func (client *Client) sample() bool {
	rate := client.options.SampleRate
	if rate == 0 || rate >= 1 {
		return true
	}
	return rand.Float64() < rate
}

func (client *Client) prepareEvent(event *Event) *Event {
	if event.EventID == "" {
		event.EventID = newEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = LevelError
	}
	if event.Logger == "" {
		event.Logger = client.options.Logger
	}
	event.Platform = "go"
	event.Sdk = SdkInfo{
		Name:    sdkIdentifier,
		Version: SDKVersion,
	}

	if event.Release == "" {
		event.Release = client.options.Release
	}
	if event.Environment == "" {
		event.Environment = client.options.Environment
	}
	if event.ServerName == "" {
		event.ServerName = client.options.ServerName
	}

	client.mu.RLock()
	if len(client.tags) > 0 {
		if event.Tags == nil {
			event.Tags = make(map[string]string, len(client.tags))
		}
		for k, v := range client.tags {
			if _, ok := event.Tags[k]; !ok {
				event.Tags[k] = v
			}
		}
	}
	if event.User == nil && client.user != nil {
		user := *client.user
		event.User = &user
	}
	client.mu.RUnlock()

	if !client.options.IgnoreBreadcrumbs && len(event.Breadcrumbs) == 0 {
		event.Breadcrumbs = client.breadcrumbs.Snapshot()
	}

	if event.Contexts == nil {
		event.Contexts = make(map[string]Context)
	}
	for name, envContext := range environmentContexts() {
		if _, ok := event.Contexts[name]; !ok {
			event.Contexts[name] = maps.Clone(envContext)
		}
	}

	if len(event.Modules) == 0 {
		event.Modules = maps.Clone(loadedModules())
	}

	return event
}
