// Package ravenlogrus provides a Logrus hook that reports log entries as
// events.
package ravenlogrus

import (
	"context"
	"errors"
	"maps"
	"net/http"

	"github.com/sirupsen/logrus"

	raven "github.com/ravenclient/raven-go"
)

// name is the logger name reported with events.
const name = "logrus"

// These default log field keys are used to pass specific metadata in a way
// the server understands. If they are found in the log fields, and the value
// is of the expected datatype, it will be converted from a generic field into
// event metadata.
//
// These keys may be overridden by calling SetKey on the hook object.
const (
	// FieldRequest holds an *http.Request.
	FieldRequest = "request"
	// FieldUser holds a User or *User value.
	FieldUser = "user"
	// FieldFingerprint holds a string slice ([]string), used to dictate the
	// grouping of this event.
	FieldFingerprint = "fingerprint"
	// FieldTags holds a map[string]string merged into the event's tags.
	FieldTags = "tags"

	// These fields are simply omitted, as they are duplicated by the SDK.
	FieldGoVersion = "go_version"
	FieldMaxProcs  = "go_maxprocs"
)

var levelMap = map[logrus.Level]raven.Level{
	logrus.TraceLevel: raven.LevelDebug,
	logrus.DebugLevel: raven.LevelDebug,
	logrus.InfoLevel:  raven.LevelInfo,
	logrus.WarnLevel:  raven.LevelWarning,
	logrus.ErrorLevel: raven.LevelError,
	logrus.FatalLevel: raven.LevelFatal,
	logrus.PanicLevel: raven.LevelFatal,
}

// ErrNotSent is returned from Fire when the event was not sent and no
// fallback is configured.
var ErrNotSent = errors.New("failed to send log entry")

// A FallbackFunc can be used to attempt to handle any errors in logging, before
// resorting to Logrus's standard error reporting.
type FallbackFunc func(*logrus.Entry) error

// Hook is the logrus hook that captures entries with a raven.Client.
//
// It is not safe to configure the hook while logging is happening. Please
// perform all configuration before using it.
type Hook struct {
	client   *raven.Client
	fallback FallbackFunc
	keys     map[string]string
	levels   []logrus.Level
	tags     map[string]string
}

var _ logrus.Hook = &Hook{}

// New initializes a new Logrus hook which sends entries to a new client
// configured according to opts.
func New(levels []logrus.Level, opts raven.ClientOptions) (*Hook, error) {
	client, err := raven.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return NewFromClient(levels, client), nil
}

// NewFromClient initializes a new Logrus hook which sends entries to client.
func NewFromClient(levels []logrus.Level, client *raven.Client) *Hook {
	return &Hook{
		client: client,
		levels: levels,
		keys:   make(map[string]string),
		tags:   make(map[string]string),
	}
}

// Client returns the client the hook sends to.
func (h *Hook) Client() *raven.Client {
	return h.client
}

// AddTags adds tags to every event sent by the hook.
func (h *Hook) AddTags(tags map[string]string) {
	maps.Copy(h.tags, tags)
}

// SetFallback sets a fallback function, called with entries that could not
// be sent.
func (h *Hook) SetFallback(fb FallbackFunc) {
	h.fallback = fb
}

// SetKey sets an alternate field key. An empty newKey restores the default.
func (h *Hook) SetKey(oldKey, newKey string) {
	if oldKey == "" {
		return
	}
	if newKey == "" {
		delete(h.keys, oldKey)
		return
	}
	delete(h.keys, newKey)
	h.keys[oldKey] = newKey
}

func (h *Hook) key(key string) string {
	if val := h.keys[key]; val != "" {
		return val
	}
	return key
}

// Levels returns the list of logging levels that will be sent as events.
func (h *Hook) Levels() []logrus.Level {
	return h.levels
}

// Fire sends entry as an event.
func (h *Hook) Fire(entry *logrus.Entry) error {
	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if id := h.client.Capture(ctx, h.entryToEvent(entry)); id == "" {
		if h.fallback != nil {
			return h.fallback(entry)
		}
		return ErrNotSent
	}
	return nil
}

// Close closes the underlying client, waiting for queued events when the
// client is Async.
func (h *Hook) Close() {
	h.client.Close()
}

func (h *Hook) entryToEvent(l *logrus.Entry) *raven.Event {
	data := make(logrus.Fields, len(l.Data))
	maps.Copy(data, l.Data)

	var e *raven.Event
	if err, ok := data[logrus.ErrorKey].(error); ok {
		delete(data, logrus.ErrorKey)
		e = h.client.EventFromException(err, levelMap[l.Level])
	} else {
		e = raven.NewEvent()
		e.Level = levelMap[l.Level]
	}

	e.Message = l.Message
	e.Timestamp = l.Time
	e.Logger = name
	e.Extra = data
	maps.Copy(e.Tags, h.tags)

	key := h.key(FieldRequest)
	switch request := e.Extra[key].(type) {
	case *http.Request:
		delete(e.Extra, key)
		e.Request = raven.NewRequest(request)
	case raven.Request:
		delete(e.Extra, key)
		e.Request = &request
	case *raven.Request:
		delete(e.Extra, key)
		e.Request = request
	}

	key = h.key(FieldUser)
	switch user := e.Extra[key].(type) {
	case raven.User:
		delete(e.Extra, key)
		e.User = &user
	case *raven.User:
		delete(e.Extra, key)
		e.User = user
	}

	key = h.key(FieldFingerprint)
	if fp, ok := e.Extra[key].([]string); ok {
		delete(e.Extra, key)
		e.Fingerprint = fp
	}

	key = h.key(FieldTags)
	if tags, ok := e.Extra[key].(map[string]string); ok {
		delete(e.Extra, key)
		maps.Copy(e.Tags, tags)
	}

	delete(e.Extra, FieldGoVersion)
	delete(e.Extra, FieldMaxProcs)
	return e
}
