package raven

import (
	"fmt"
	"reflect"
	"slices"
)

const (
	MechanismTypeGeneric string = "generic"
	MechanismTypeChained string = "chained"

	MechanismSourceCause string = "cause"
)

const defaultMaxErrorDepth = 10

// convertErrorToExceptions walks err and the errors it wraps, depth first,
// and returns them innermost first as the protocol expects. At most maxDepth
// errors are converted.
func convertErrorToExceptions(err error, maxDepth int) []Exception {
	if err == nil {
		return nil
	}
	if maxDepth <= 0 {
		maxDepth = defaultMaxErrorDepth
	}

	c := &errorConverter{maxDepth: maxDepth, visited: make(map[error]struct{})}
	c.convert(err, nil, "")

	if len(c.exceptions) == 1 {
		c.exceptions[0].Mechanism = nil
	}

	slices.Reverse(c.exceptions)

	return c.exceptions
}

type errorConverter struct {
	exceptions []Exception
	visited    map[error]struct{}
	maxDepth   int
}

func (c *errorConverter) seen(err error) bool {
	if !reflect.TypeOf(err).Comparable() {
		return false
	}
	if _, ok := c.visited[err]; ok {
		return true
	}
	c.visited[err] = struct{}{}
	return false
}

func (c *errorConverter) convert(err error, parentID *int, source string) {
	if err == nil || len(c.exceptions) >= c.maxDepth || c.seen(err) {
		return
	}

	currentID := len(c.exceptions)
	mechanism := &Mechanism{
		Type:        MechanismTypeChained,
		Source:      source,
		ExceptionID: currentID,
		ParentID:    parentID,
	}
	if parentID == nil {
		mechanism.Type = MechanismTypeGeneric
		mechanism.Source = ""
	}

	c.exceptions = append(c.exceptions, Exception{
		Value:      err.Error(),
		Type:       reflect.TypeOf(err).String(),
		Stacktrace: ExtractStacktrace(err),
		Mechanism:  mechanism,
	})

	switch v := err.(type) {
	case interface{ Unwrap() []error }:
		for i, child := range v.Unwrap() {
			c.convert(child, &currentID, fmt.Sprintf("errors[%d]", i))
		}
	case interface{ Unwrap() error }:
		unwrapped := v.Unwrap()
		if unwrapped == nil {
			return
		}
		// go-errors wraps plain string errors without adding anything.
		if unwrapped.Error() == err.Error() &&
			reflect.TypeOf(unwrapped).String() == "*errors.errorString" &&
			reflect.TypeOf(err).String() == "*errors.Error" {
			return
		}
		c.convert(unwrapped, &currentID, MechanismSourceCause)
	case interface{ Cause() error }:
		c.convert(v.Cause(), &currentID, MechanismSourceCause)
	}
}

// hasStacktrace reports whether any of the exceptions carries frames.
func hasStacktrace(exceptions []Exception) bool {
	for _, e := range exceptions {
		if e.Stacktrace != nil && len(e.Stacktrace.Frames) > 0 {
			return true
		}
	}
	return false
}
