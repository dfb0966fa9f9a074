package raven

import (
	"context"
	"sync"
	"time"
)

// MockRequesterFactory implements [RequesterFactory] for use in tests. The
// requesters it creates record themselves on the factory when they are sent.
type MockRequesterFactory struct {
	// Send, if set, is called for every transmission. Its result is returned
	// from Request or SendFeedback.
	Send func(ctx context.Context, r *MockRequester) (string, error)

	mu      sync.Mutex
	created []*MockRequester
	sent    []*MockRequester
}

func (f *MockRequesterFactory) Create(event *Event, dsn *Dsn, _ time.Duration, useCompression bool) Requester {
	r := &MockRequester{Event: event, Dsn: dsn, UseCompression: useCompression, factory: f}
	f.mu.Lock()
	f.created = append(f.created, r)
	f.mu.Unlock()
	return r
}

func (f *MockRequesterFactory) CreateFeedback(feedback *UserFeedback, dsn *Dsn) Requester {
	r := &MockRequester{Feedback: feedback, Dsn: dsn, factory: f}
	f.mu.Lock()
	f.created = append(f.created, r)
	f.mu.Unlock()
	return r
}

// Created returns every requester created so far.
func (f *MockRequesterFactory) Created() []*MockRequester {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockRequester(nil), f.created...)
}

// Sent returns the requesters that were sent successfully, in order.
func (f *MockRequesterFactory) Sent() []*MockRequester {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockRequester(nil), f.sent...)
}

func (f *MockRequesterFactory) transmit(ctx context.Context, r *MockRequester) (string, error) {
	id := r.EventID()
	if r.Feedback != nil && id == "" {
		// Feedback is acknowledged with the ID of the event it refers to.
		id = r.Feedback.EventID
	}
	if f.Send != nil {
		var err error
		if id, err = f.Send(ctx, r); err != nil {
			return "", err
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, r)
	f.mu.Unlock()
	return id, nil
}

// MockRequester implements [Requester] for use in tests.
type MockRequester struct {
	Event          *Event
	Feedback       *UserFeedback
	Dsn            *Dsn
	UseCompression bool

	factory *MockRequesterFactory
	mu      sync.Mutex
	eventID string
}

// UseEventID records id and, like the HTTP requester, assigns it to the
// event being sent.
func (r *MockRequester) UseEventID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventID = id
	if r.Event != nil {
		r.Event.EventID = id
	}
}

// EventID returns the last ID passed to UseEventID.
func (r *MockRequester) EventID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eventID
}

func (r *MockRequester) Request(ctx context.Context) (string, error) {
	return r.factory.transmit(ctx, r)
}

func (r *MockRequester) SendFeedback(ctx context.Context) (string, error) {
	return r.factory.transmit(ctx, r)
}
