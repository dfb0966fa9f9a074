// Package ravenhttp provides a net/http middleware that reports panics.
package ravenhttp

import (
	"net/http"

	raven "github.com/ravenclient/raven-go"
)

// Handler recovers panics of the wrapped handlers and captures them with
// the request attached.
type Handler struct {
	client  *raven.Client
	repanic bool
}

// Options configure a Handler.
type Options struct {
	// Repanic configures whether to panic again after recovering. When false
	// the handler answers 500 Internal Server Error.
	Repanic bool
}

// New returns a Handler capturing panics with client.
func New(client *raven.Client, options Options) *Handler {
	return &Handler{
		client:  client,
		repanic: options.Repanic,
	}
}

// Handle wraps handler.
func (h *Handler) Handle(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		defer h.recoverWithContext(rw, r)
		handler.ServeHTTP(rw, r)
	})
}

// HandleFunc wraps handler.
func (h *Handler) HandleFunc(handler http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		defer h.recoverWithContext(rw, r)
		handler(rw, r)
	}
}

func (h *Handler) recoverWithContext(rw http.ResponseWriter, r *http.Request) {
	err := recover()
	if err == nil {
		return
	}
	// net/http uses this panic to abort a response silently.
	if err == http.ErrAbortHandler {
		panic(err)
	}

	if event := h.client.EventFromRecovered(err); event != nil {
		event.Request = raven.NewRequest(r)
		h.client.Capture(r.Context(), event)
	}

	if h.repanic {
		panic(err)
	}
	http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
