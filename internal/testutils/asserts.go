package testutils

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func AssertEqual(t *testing.T, got, want interface{}, userMessage ...interface{}) {
	t.Helper()

	// cmp.Diff would give nicer output, but it panics on unexported fields
	// unless every type is listed with cmp.AllowUnexported.
	if !reflect.DeepEqual(got, want) {
		logFailedAssertion(t, formatUnequalValues(got, want), userMessage...)
	}
}

func AssertTrue(t *testing.T, condition bool, userMessage ...interface{}) {
	t.Helper()

	if !condition {
		logFailedAssertion(t, "\nExpected: true", userMessage...)
	}
}

func AssertFalse(t *testing.T, condition bool, userMessage ...interface{}) {
	t.Helper()

	if condition {
		logFailedAssertion(t, "\nExpected: false", userMessage...)
	}
}

// AssertDiff fails the test with a -want +got diff of the two values.
func AssertDiff(t *testing.T, want, got interface{}, opts ...cmp.Option) {
	t.Helper()

	if diff := cmp.Diff(want, got, opts...); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

// WaitFor polls condition until it returns true or FlushTimeout elapses.
func WaitFor(t *testing.T, condition func() bool, userMessage ...interface{}) {
	t.Helper()

	deadline := time.Now().Add(FlushTimeout())
	for !condition() {
		if time.Now().After(deadline) {
			logFailedAssertion(t, "\nCondition not met before timeout", userMessage...)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func logFailedAssertion(t *testing.T, summary string, userMessage ...interface{}) {
	t.Helper()
	text := summary

	if len(userMessage) > 0 {
		if message, ok := userMessage[0].(string); ok {
			if message != "" && len(userMessage) > 1 {
				text = fmt.Sprintf(message, userMessage[1:]...) + text
			} else if message != "" {
				text = fmt.Sprint(message) + text
			}
		}
	}

	t.Error(text)
}

func formatUnequalValues(got, want interface{}) string {
	var a, b string

	if reflect.TypeOf(got) != reflect.TypeOf(want) {
		a, b = fmt.Sprintf("%T(%#v)", got, got), fmt.Sprintf("%T(%#v)", want, want)
	} else {
		a, b = fmt.Sprintf("%#v", got), fmt.Sprintf("%#v", want)
	}

	return fmt.Sprintf("\ngot: %s\nwant: %s", a, b)
}
