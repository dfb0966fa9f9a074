package raven

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ravenclient/raven-go/internal/debuglog"
	"github.com/ravenclient/raven-go/internal/queue"
)

const (
	defaultPollInterval = time.Second
	defaultDrainTimeout = 2 * time.Second
	defaultQueueSize    = 40
)

var (
	// ErrQueueFull is returned with an empty event ID when a request could not
	// be queued because the background queue is at capacity.
	ErrQueueFull = errors.New("event dropped due to queue overflow")

	// ErrFactoryClosed is returned with an empty event ID when a request is
	// made after the background factory was closed.
	ErrFactoryClosed = errors.New("background requester factory is closed")

	// ErrNilRequesterFactory is returned by NewBackgroundRequesterFactory
	// when there is no factory to wrap.
	ErrNilRequesterFactory = errors.New("requester factory must not be nil")

	// ErrNilContext is returned by WithContext for a nil context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrInvalidQueueSize is returned by WithQueueSize for a size below one.
	ErrInvalidQueueSize = errors.New("queue size must be positive")

	// ErrInvalidPollInterval is returned by WithPollInterval for a zero or
	// negative interval.
	ErrInvalidPollInterval = errors.New("poll interval must be positive")

	// ErrInvalidDrainTimeout is returned by WithDrainTimeout for a negative
	// timeout.
	ErrInvalidDrainTimeout = errors.New("drain timeout must not be negative")
)

// Observer is notified about the life of background requests. Enqueued and
// Dropped are called from the goroutines making requests, the other methods
// from the worker goroutine, so implementations must be safe for concurrent
// use.
type Observer interface {
	// Enqueued is called after a request was queued.
	Enqueued()
	// Dropped is called when a request was rejected with ErrQueueFull or
	// ErrFactoryClosed.
	Dropped(reason error)
	// Delivered is called after a queued request was transmitted.
	Delivered(id string)
	// Failed is called when transmitting a queued request failed.
	Failed(err error)
	// Abandoned is called once on Close with the number of requests left in
	// the queue when the worker stopped.
	Abandoned(n int)
}

type nopObserver struct{}

func (nopObserver) Enqueued()        {}
func (nopObserver) Dropped(error)    {}
func (nopObserver) Delivered(string) {}
func (nopObserver) Failed(error)     {}
func (nopObserver) Abandoned(int)    {}

type backgroundConfig struct {
	ctx          context.Context
	pollInterval time.Duration
	drainTimeout time.Duration
	queueSize    int
	observer     Observer
	logger       *log.Logger
}

// BackgroundOption configures a BackgroundRequesterFactory.
type BackgroundOption func(*backgroundConfig) error

// WithPollInterval sets how long the idle worker waits before checking the
// queue again. Defaults to one second.
func WithPollInterval(d time.Duration) BackgroundOption {
	return func(c *backgroundConfig) error {
		if d <= 0 {
			return ErrInvalidPollInterval
		}
		c.pollInterval = d
		return nil
	}
}

// WithDrainTimeout sets how long the worker keeps sending queued requests
// after Close was called. Defaults to two seconds.
func WithDrainTimeout(d time.Duration) BackgroundOption {
	return func(c *backgroundConfig) error {
		if d < 0 {
			return ErrInvalidDrainTimeout
		}
		c.drainTimeout = d
		return nil
	}
}

// WithQueueSize sets the capacity of the queue. Defaults to 40.
func WithQueueSize(n int) BackgroundOption {
	return func(c *backgroundConfig) error {
		if n <= 0 {
			return ErrInvalidQueueSize
		}
		c.queueSize = n
		return nil
	}
}

// WithContext ties the worker to ctx: cancelling it has the same effect on
// the worker as calling Close, except that Close still has to be called to
// wait for the worker and to report abandoned requests.
func WithContext(ctx context.Context) BackgroundOption {
	return func(c *backgroundConfig) error {
		if ctx == nil {
			return ErrNilContext
		}
		c.ctx = ctx
		return nil
	}
}

// WithObserver registers an Observer. A nil observer is ignored.
func WithObserver(o Observer) BackgroundOption {
	return func(c *backgroundConfig) error {
		if o != nil {
			c.observer = o
		}
		return nil
	}
}

// WithLogger sets the logger for diagnostics. By default the SDK debug logger
// is used.
func WithLogger(l *log.Logger) BackgroundOption {
	return func(c *backgroundConfig) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

// pendingRequest is a Requester waiting in the queue.
type pendingRequest struct {
	requester Requester
	id        string
	feedback  bool
}

// BackgroundRequesterFactory wraps a RequesterFactory so that requests are
// queued and transmitted by a single background goroutine instead of on the
// caller's goroutine.
//
// The queue is bounded. When it is full, requests are dropped rather than
// blocking the caller. Close stops the worker, giving queued requests up to
// the drain timeout to be sent.
type BackgroundRequesterFactory struct {
	factory RequesterFactory
	queue   *queue.Queue[pendingRequest]

	pollInterval time.Duration
	drainTimeout time.Duration
	observer     Observer
	logger       *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	// sendCtx is used for transmissions. It carries the values of ctx but is
	// not cancelled with it so that requests can drain after Close.
	sendCtx context.Context

	// mu guards closed. Producers hold it for reading while they check and
	// push, so Close cannot count the queue while a push is in progress.
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewBackgroundRequesterFactory wraps factory and starts the worker goroutine.
// It returns an error if factory is nil or an option is invalid.
func NewBackgroundRequesterFactory(factory RequesterFactory, opts ...BackgroundOption) (*BackgroundRequesterFactory, error) {
	if factory == nil {
		return nil, ErrNilRequesterFactory
	}

	cfg := backgroundConfig{
		ctx:          context.Background(),
		pollInterval: defaultPollInterval,
		drainTimeout: defaultDrainTimeout,
		queueSize:    defaultQueueSize,
		observer:     nopObserver{},
		logger:       debuglog.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	q, err := queue.New[pendingRequest](cfg.queueSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueSize, cfg.queueSize)
	}

	ctx, cancel := context.WithCancel(cfg.ctx)
	f := &BackgroundRequesterFactory{
		factory:      factory,
		queue:        q,
		pollInterval: cfg.pollInterval,
		drainTimeout: cfg.drainTimeout,
		observer:     cfg.observer,
		logger:       cfg.logger,
		ctx:          ctx,
		cancel:       cancel,
		sendCtx:      context.WithoutCancel(cfg.ctx),
		done:         make(chan struct{}),
	}

	go f.run()

	return f, nil
}

// Create returns a Requester that queues the event built by the wrapped
// factory.
func (f *BackgroundRequesterFactory) Create(event *Event, dsn *Dsn, timeout time.Duration, useCompression bool) Requester {
	return &BackgroundRequester{
		factory:   f,
		requester: f.factory.Create(event, dsn, timeout, useCompression),
	}
}

// CreateFeedback returns a Requester that queues the feedback built by the
// wrapped factory.
func (f *BackgroundRequesterFactory) CreateFeedback(feedback *UserFeedback, dsn *Dsn) Requester {
	return &BackgroundRequester{
		factory:   f,
		requester: f.factory.CreateFeedback(feedback, dsn),
	}
}

// QueueLen returns the number of requests waiting to be sent.
func (f *BackgroundRequesterFactory) QueueLen() int {
	return f.queue.Len()
}

// QueueCap returns the capacity of the queue.
func (f *BackgroundRequesterFactory) QueueCap() int {
	return f.queue.Cap()
}

// QueuePushed returns the number of requests accepted into the queue since
// the factory was created.
func (f *BackgroundRequesterFactory) QueuePushed() int64 {
	return f.queue.Pushed()
}

// QueueRejected returns the number of requests refused because the queue was
// full.
func (f *BackgroundRequesterFactory) QueueRejected() int64 {
	return f.queue.Rejected()
}

// Done returns a channel that is closed once the worker has stopped.
func (f *BackgroundRequesterFactory) Done() <-chan struct{} {
	return f.done
}

// Close stops the worker and waits for it to exit. Requests still queued get
// up to the drain timeout to be sent; whatever remains after that is
// abandoned and reported. Close is safe to call more than once.
func (f *BackgroundRequesterFactory) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()

		f.cancel()
		<-f.done

		if n := f.queue.Len(); n > 0 {
			f.logger.Printf("Background worker stopped with %d requests still queued", n)
			f.observer.Abandoned(n)
		}
	})
}

func (f *BackgroundRequesterFactory) enqueue(p pendingRequest) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrFactoryClosed
	}
	select {
	case <-f.done:
		return ErrFactoryClosed
	default:
	}

	if !f.queue.TryPush(p) {
		return ErrQueueFull
	}
	return nil
}

// run is the worker loop. It stops when the queue is empty after
// cancellation or when the drain deadline has passed, whichever comes first.
func (f *BackgroundRequesterFactory) run() {
	defer close(f.done)

	var deadline time.Time
	timer := time.NewTimer(f.pollInterval)
	defer timer.Stop()

	for {
		if deadline.IsZero() && f.ctx.Err() != nil {
			deadline = time.Now().Add(f.drainTimeout)
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return
		}

		if p, ok := f.queue.TryPop(); ok {
			f.process(p)
			continue
		}

		if !deadline.IsZero() {
			return
		}

		timer.Reset(f.pollInterval)
		select {
		case p := <-f.queue.Items():
			f.process(p)
		case <-timer.C:
		case <-f.ctx.Done():
			deadline = time.Now().Add(f.drainTimeout)
		}
		timer.Stop()
	}
}

// process transmits one queued request. Failures, panics included, are
// logged and never retried.
func (f *BackgroundRequesterFactory) process(p pendingRequest) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("request %s panicked: %v", p.id, r)
			f.logger.Printf("There was an issue with sending %s: %v", p.id, err)
			f.observer.Failed(err)
		}
	}()

	var (
		id  string
		err error
	)
	if p.feedback {
		id, err = p.requester.SendFeedback(f.sendCtx)
	} else {
		id, err = p.requester.Request(f.sendCtx)
	}

	if err != nil {
		f.logger.Printf("There was an issue with sending %s: %v", p.id, err)
		f.observer.Failed(err)
		return
	}
	f.observer.Delivered(id)
}

// BackgroundRequester queues the wrapped Requester instead of transmitting it.
//
// The ID returned by its methods is generated when the request is queued. It
// is a correlation ID, not a delivery receipt: the request may still fail in
// the background.
type BackgroundRequester struct {
	factory   *BackgroundRequesterFactory
	requester Requester
}

// UseEventID does nothing. The background requester assigns its own ID.
func (r *BackgroundRequester) UseEventID(string) {}

// Request queues the event and returns the ID assigned to it. If the request
// could not be queued, the ID is empty and the error is ErrQueueFull or
// ErrFactoryClosed. It never blocks.
func (r *BackgroundRequester) Request(context.Context) (string, error) {
	return r.enqueue(false)
}

// SendFeedback queues the feedback. See Request.
func (r *BackgroundRequester) SendFeedback(context.Context) (string, error) {
	return r.enqueue(true)
}

func (r *BackgroundRequester) enqueue(feedback bool) (string, error) {
	id := newEventID()
	r.requester.UseEventID(id)

	if err := r.factory.enqueue(pendingRequest{requester: r.requester, id: id, feedback: feedback}); err != nil {
		r.factory.logger.Printf("Request %s dropped: %v", id, err)
		r.factory.observer.Dropped(err)
		return "", err
	}

	r.factory.observer.Enqueued()
	return id, nil
}
