package raven

import (
	"context"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ravenclient/raven-go/internal/debuglog"
	"github.com/ravenclient/raven-go/internal/testutils"
)

type ClientSuite struct {
	suite.Suite
	requesters *MockRequesterFactory
	client     *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.requesters = &MockRequesterFactory{}
	s.client = s.newClient(ClientOptions{})
}

func (s *ClientSuite) newClient(options ClientOptions) *Client {
	if options.Dsn == "" {
		options.Dsn = testDsn
	}
	if options.RequesterFactory == nil {
		options.RequesterFactory = s.requesters
	}
	client, err := NewClient(options)
	s.Require().NoError(err)
	s.T().Cleanup(client.Close)
	return client
}

func (s *ClientSuite) lastEvent() *Event {
	sent := s.requesters.Sent()
	s.Require().NotEmpty(sent)
	return sent[len(sent)-1].Event
}

func (s *ClientSuite) TestCaptureMessage() {
	id := s.client.CaptureMessage(context.Background(), "hello", LevelWarning)
	s.NotEmpty(id)

	event := s.lastEvent()
	s.Equal(id, event.EventID)
	s.Equal("hello", event.Message)
	s.Equal(LevelWarning, event.Level)
	s.Equal(defaultLogger, event.Logger)
	s.Equal("go", event.Platform)
	s.Equal(SdkInfo{Name: sdkIdentifier, Version: SDKVersion}, event.Sdk)
	s.False(event.Timestamp.IsZero())
	s.Contains(event.Contexts, "runtime")
	s.Contains(event.Contexts, "os")
}

func (s *ClientSuite) TestCaptureException() {
	err := errors.New("boom")
	id := s.client.CaptureException(context.Background(), err)
	s.NotEmpty(id)

	event := s.lastEvent()
	s.Equal(LevelError, event.Level)
	s.Require().Len(event.Exception, 1)
	s.Equal("boom", event.Exception[0].Value)
	s.Equal("*errors.errorString", event.Exception[0].Type)
	s.NotNil(event.Exception[0].Stacktrace)
}

func (s *ClientSuite) TestCaptureExceptionNil() {
	s.Empty(s.client.CaptureException(context.Background(), nil))
	s.Empty(s.requesters.Sent())
}

func (s *ClientSuite) TestCaptureNilEvent() {
	s.Empty(s.client.Capture(context.Background(), nil))
	s.Empty(s.requesters.Created())
}

func (s *ClientSuite) TestCaptureAppliesOptions() {
	client := s.newClient(ClientOptions{
		Release:     "1.0.0",
		Environment: "staging",
		ServerName:  "host-1",
		Logger:      "app",
		Tags:        map[string]string{"region": "eu", "shared": "client"},
		Timeout:     time.Second,
		Compression: true,
	})
	client.SetTag("team", "core")
	client.SetUser(User{ID: "42"})

	event := NewEvent()
	event.Tags["shared"] = "event"
	client.Capture(context.Background(), event)

	sent := s.requesters.Sent()
	s.Require().Len(sent, 1)
	s.True(sent[0].UseCompression)

	got := sent[0].Event
	s.Equal("1.0.0", got.Release)
	s.Equal("staging", got.Environment)
	s.Equal("host-1", got.ServerName)
	s.Equal("app", got.Logger)
	s.Equal(map[string]string{"region": "eu", "shared": "event", "team": "core"}, got.Tags)
	s.Equal(&User{ID: "42"}, got.User)
}

func (s *ClientSuite) TestEnvironmentFallbacks() {
	s.T().Setenv("SENTRY_DSN", "https://env@example.com/7")
	s.T().Setenv("SENTRY_RELEASE", "env-release")
	s.T().Setenv("SENTRY_ENVIRONMENT", "env-environment")

	client, err := NewClient(ClientOptions{RequesterFactory: s.requesters})
	s.Require().NoError(err)

	s.Equal("7", client.Dsn().ProjectID())
	s.Equal("env-release", client.Options().Release)
	s.Equal("env-environment", client.Options().Environment)
}

func (s *ClientSuite) TestInvalidOptions() {
	_, err := NewClient(ClientOptions{Dsn: "ftp://x@y/1"})
	var dsnErr *DsnParseError
	s.ErrorAs(err, &dsnErr)

	_, err = NewClient(ClientOptions{Dsn: testDsn, SampleRate: 1.5})
	s.Error(err)

	_, err = NewClient(ClientOptions{Dsn: testDsn, Async: true, AsyncOptions: []BackgroundOption{WithQueueSize(0)}})
	s.ErrorIs(err, ErrInvalidQueueSize)
}

func (s *ClientSuite) TestEmptyDsnDisablesClient() {
	s.T().Setenv("SENTRY_DSN", "")
	client, err := NewClient(ClientOptions{RequesterFactory: s.requesters})
	s.Require().NoError(err)

	s.Nil(client.Dsn())
	s.Empty(client.CaptureMessage(context.Background(), "dropped", LevelInfo))
	s.Empty(client.SendUserFeedback(context.Background(), &UserFeedback{EventID: "abc"}))
	s.Empty(s.requesters.Created())
}

func (s *ClientSuite) TestBeforeSend() {
	client := s.newClient(ClientOptions{
		BeforeSend: func(event *Event) *Event {
			if event.Message == "drop" {
				return nil
			}
			event.Fingerprint = []string{"custom"}
			return event
		},
	})

	s.Empty(client.CaptureMessage(context.Background(), "drop", LevelInfo))
	s.NotEmpty(client.CaptureMessage(context.Background(), "keep", LevelInfo))

	s.Require().Len(s.requesters.Sent(), 1)
	s.Equal([]string{"custom"}, s.lastEvent().Fingerprint)
	s.Equal([]DiscardedEvent{{Reason: "before_send", Category: "error", Quantity: 1}}, client.DiscardedEvents())
	s.Empty(client.DiscardedEvents())
}

func (s *ClientSuite) TestSampleRate() {
	client := s.newClient(ClientOptions{SampleRate: 0.000001})
	for i := 0; i < 10; i++ {
		client.CaptureMessage(context.Background(), "sampled", LevelInfo)
	}
	s.Len(s.requesters.Sent(), 0)

	discarded := client.DiscardedEvents()
	s.Require().Len(discarded, 1)
	s.Equal("sample_rate", discarded[0].Reason)
	s.Equal(int64(10), discarded[0].Quantity)
}

func (s *ClientSuite) TestOnCaptureAndOnCaptureError() {
	var captured []*Event
	var captureErrors []error
	s.requesters.Send = func(context.Context, *MockRequester) (string, error) {
		return "", &RequestError{StatusCode: 400}
	}
	client := s.newClient(ClientOptions{
		OnCapture:      func(event *Event) { captured = append(captured, event) },
		OnCaptureError: func(err error) { captureErrors = append(captureErrors, err) },
	})

	s.Empty(client.CaptureMessage(context.Background(), "fails", LevelError))
	s.Len(captured, 1)
	s.Require().Len(captureErrors, 1)

	var reqErr *RequestError
	s.ErrorAs(captureErrors[0], &reqErr)
	s.Equal([]DiscardedEvent{{Reason: "send_error", Category: "error", Quantity: 1}}, client.DiscardedEvents())
}

func (s *ClientSuite) TestSendErrorClassification() {
	tests := []struct {
		err    error
		reason string
	}{
		{ErrRateLimited, "ratelimit_backoff"},
		{context.DeadlineExceeded, "network_error"},
		{&RequestError{StatusCode: 500}, "send_error"},
		{fmt.Errorf("%w: json: unsupported type", ErrEventEncoding), "internal_sdk_error"},
	}
	for _, tt := range tests {
		s.requesters.Send = func(context.Context, *MockRequester) (string, error) { return "", tt.err }
		s.client.CaptureMessage(context.Background(), "x", LevelError)
		s.Equal([]DiscardedEvent{{Reason: tt.reason, Category: "error", Quantity: 1}}, s.client.DiscardedEvents(), tt.reason)
	}
}

func (s *ClientSuite) TestDisableClientReports() {
	s.requesters.Send = func(context.Context, *MockRequester) (string, error) { return "", ErrRateLimited }
	client := s.newClient(ClientOptions{DisableClientReports: true})

	s.Empty(client.CaptureMessage(context.Background(), "limited", LevelError))
	s.Nil(client.DiscardedEvents())
}

func (s *ClientSuite) TestBreadcrumbs() {
	s.client.AddBreadcrumb(&Breadcrumb{Message: "first"})
	s.client.AddBreadcrumb(&Breadcrumb{Message: "second"})
	s.Len(s.client.Breadcrumbs(), 2)

	s.client.CaptureMessage(context.Background(), "with breadcrumbs", LevelInfo)
	crumbs := s.lastEvent().Breadcrumbs
	s.Require().Len(crumbs, 2)
	s.Equal("first", crumbs[0].Message)

	s.client.ClearBreadcrumbs()
	s.Empty(s.client.Breadcrumbs())
}

func (s *ClientSuite) TestIgnoreBreadcrumbs() {
	client := s.newClient(ClientOptions{IgnoreBreadcrumbs: true})
	client.AddBreadcrumb(&Breadcrumb{Message: "not sent"})
	client.CaptureMessage(context.Background(), "event", LevelInfo)
	s.Empty(s.lastEvent().Breadcrumbs)
}

func (s *ClientSuite) TestSetUserEmptyClears() {
	s.client.SetUser(User{ID: "1"})
	s.client.SetUser(User{})
	s.client.CaptureMessage(context.Background(), "anonymous", LevelInfo)
	s.Nil(s.lastEvent().User)
}

func (s *ClientSuite) TestSendUserFeedback() {
	feedback := &UserFeedback{EventID: "abc", Name: "Ana", Comments: "it broke"}
	s.Equal("abc", s.client.SendUserFeedback(context.Background(), feedback))

	sent := s.requesters.Sent()
	s.Require().Len(sent, 1)
	s.Same(feedback, sent[0].Feedback)

	s.Empty(s.client.SendUserFeedback(context.Background(), &UserFeedback{}))
	s.Empty(s.client.SendUserFeedback(context.Background(), nil))
}

func (s *ClientSuite) TestAsyncClient() {
	client := s.newClient(ClientOptions{Async: true})

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, client.CaptureMessage(context.Background(), "queued", LevelInfo))
	}
	client.Close()

	sent := s.requesters.Sent()
	s.Require().Len(sent, 5)
	for i, r := range sent {
		s.Equal(ids[i], r.EventID())
		s.Equal(ids[i], r.Event.EventID)
	}
}

func (s *ClientSuite) TestAsyncClientLogsReturnedID() {
	logs := &syncBuffer{}
	debuglog.SetLogger(log.New(logs, "", 0))
	s.T().Cleanup(func() { debuglog.SetLogger(nil) })

	client := s.newClient(ClientOptions{Async: true})
	id := client.CaptureMessage(context.Background(), "queued", LevelInfo)
	s.Require().NotEmpty(id)
	client.Close()

	s.Contains(logs.String(), "event ["+id+"]")
}

func (s *ClientSuite) TestAsyncClientQueueOverflow() {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	s.requesters.Send = func(_ context.Context, r *MockRequester) (string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return r.EventID(), nil
	}
	var captureErrors []error
	client := s.newClient(ClientOptions{
		Async:          true,
		AsyncOptions:   []BackgroundOption{WithQueueSize(1)},
		OnCaptureError: func(err error) { captureErrors = append(captureErrors, err) },
	})

	s.NotEmpty(client.CaptureMessage(context.Background(), "in flight", LevelInfo))
	select {
	case <-started:
	case <-time.After(testutils.FlushTimeout()):
		s.FailNow("worker did not start sending")
	}
	s.NotEmpty(client.CaptureMessage(context.Background(), "queued", LevelInfo))
	s.Empty(client.CaptureMessage(context.Background(), "overflow", LevelInfo))

	close(release)
	client.Close()

	s.Empty(captureErrors)
	s.Equal([]DiscardedEvent{{Reason: "queue_overflow", Category: "error", Quantity: 1}}, client.DiscardedEvents())

	s.Empty(client.CaptureMessage(context.Background(), "closed", LevelInfo))
	s.Equal([]DiscardedEvent{{Reason: "queue_closed", Category: "error", Quantity: 1}}, client.DiscardedEvents())
}
