package raven

import (
	"context"
	"time"
)

// Requester transmits one payload to the server. It is created per payload
// by a RequesterFactory and consumed by a single call to one of its
// transmit methods.
type Requester interface {
	// UseEventID sets the identifier carried by the payload.
	UseEventID(id string)
	// Request sends the event and returns the identifier assigned to it by
	// the server.
	Request(ctx context.Context) (string, error)
	// SendFeedback sends the user feedback and returns the identifier of the
	// event it refers to.
	SendFeedback(ctx context.Context) (string, error)
}

// RequesterFactory builds Requesters. Implementations must not perform any
// I/O when creating a Requester.
type RequesterFactory interface {
	Create(event *Event, dsn *Dsn, timeout time.Duration, useCompression bool) Requester
	CreateFeedback(feedback *UserFeedback, dsn *Dsn) Requester
}
