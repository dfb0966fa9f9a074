package raven

import (
	"net/http"
	"strings"
	"time"
)

// apiVersion is the version of the Sentry store protocol spoken by this SDK.
const apiVersion = "7"

// Level marks the severity of the event.
type Level string

// Describes the severity of the event.
const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// SdkInfo contains all metadata about the SDK.
type SdkInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// Breadcrumb specifies an application event that occurred before an event.
// An event may contain one or more breadcrumbs.
type Breadcrumb struct {
	Type      string                 `json:"type,omitempty"`
	Category  string                 `json:"category,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Level     Level                  `json:"level,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// User describes the user associated with an Event.
type User struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	Username  string `json:"username,omitempty"`
}

// IsEmpty reports whether no field of the user is set.
func (u User) IsEmpty() bool {
	return u == User{}
}

// Request contains information on a HTTP request related to the event.
type Request struct {
	URL         string            `json:"url,omitempty"`
	Method      string            `json:"method,omitempty"`
	Data        string            `json:"data,omitempty"`
	QueryString string            `json:"query_string,omitempty"`
	Cookies     string            `json:"cookies,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Proxy-Authorization": {},
	"Cookie":              {},
	"X-Forwarded-For":     {},
	"X-Real-Ip":           {},
}

// NewRequest returns a new Request from a *http.Request. Cookies and headers
// that commonly carry credentials or personal data are left out.
func NewRequest(r *http.Request) *Request {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	url := scheme + "://" + r.Host + r.URL.Path

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if _, ok := sensitiveHeaders[k]; ok {
			continue
		}
		headers[k] = strings.Join(v, ",")
	}
	headers["Host"] = r.Host

	return &Request{
		URL:         url,
		Method:      r.Method,
		QueryString: r.URL.RawQuery,
		Headers:     headers,
	}
}

// Mechanism describes how an exception was captured.
type Mechanism struct {
	Type        string `json:"type"`
	Source      string `json:"source,omitempty"`
	Handled     *bool  `json:"handled,omitempty"`
	ExceptionID int    `json:"exception_id"`
	ParentID    *int   `json:"parent_id,omitempty"`
}

// Exception specifies an error that occurred.
type Exception struct {
	Type       string      `json:"type,omitempty"`
	Value      string      `json:"value,omitempty"`
	Module     string      `json:"module,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
	Mechanism  *Mechanism  `json:"mechanism,omitempty"`
}

// Event is the fundamental data structure that is sent to the server.
type Event struct {
	EventID     string                 `json:"event_id,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Level       Level                  `json:"level,omitempty"`
	Logger      string                 `json:"logger,omitempty"`
	Platform    string                 `json:"platform,omitempty"`
	Sdk         SdkInfo                `json:"sdk,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Culprit     string                 `json:"culprit,omitempty"`
	Exception   []Exception            `json:"exception,omitempty"`
	Fingerprint []string               `json:"fingerprint,omitempty"`
	Tags        map[string]string      `json:"tags,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
	User        *User                  `json:"user,omitempty"`
	Request     *Request               `json:"request,omitempty"`
	Contexts    map[string]Context     `json:"contexts,omitempty"`
	Breadcrumbs []*Breadcrumb          `json:"breadcrumbs,omitempty"`
	Modules     map[string]string      `json:"modules,omitempty"`
	Release     string                 `json:"release,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	ServerName  string                 `json:"server_name,omitempty"`
}

// NewEvent creates a new Event with empty maps ready to be filled.
func NewEvent() *Event {
	return &Event{
		Tags:     make(map[string]string),
		Extra:    make(map[string]interface{}),
		Contexts: make(map[string]Context),
		Modules:  make(map[string]string),
	}
}

// Context holds one entry of an event's contexts, such as "os" or "runtime".
type Context = map[string]interface{}

// UserFeedback is a user's comment on a previously reported event.
type UserFeedback struct {
	EventID  string `json:"event_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Comments string `json:"comments"`
}
