package raven

import (
	"regexp"
	"strings"
)

// Scrubber removes sensitive data from a serialized event before it leaves
// the process.
type Scrubber interface {
	Scrub(payload string) string
}

// ScrubberFunc adapts a function to the Scrubber interface.
type ScrubberFunc func(payload string) string

func (f ScrubberFunc) Scrub(payload string) string {
	return f(payload)
}

const scrubbedValue = "********"

// DefaultScrubbedFields are the keys masked by NewFieldScrubber when called
// without arguments.
var DefaultScrubbedFields = []string{
	"password", "passwd", "secret", "api_key", "apikey",
	"access_token", "auth", "credentials", "authorization",
}

// FieldScrubber masks the string values of JSON object members whose key
// matches one of its fields, case-insensitively.
type FieldScrubber struct {
	pattern *regexp.Regexp
}

// NewFieldScrubber returns a scrubber for the given keys, or for
// DefaultScrubbedFields if none are given.
func NewFieldScrubber(fields ...string) *FieldScrubber {
	if len(fields) == 0 {
		fields = DefaultScrubbedFields
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = regexp.QuoteMeta(f)
	}
	pattern := regexp.MustCompile(`(?i)"(` + strings.Join(quoted, "|") + `)"(\s*):(\s*)"(?:[^"\\]|\\.)*"`)
	return &FieldScrubber{pattern: pattern}
}

func (s *FieldScrubber) Scrub(payload string) string {
	return s.pattern.ReplaceAllString(payload, `"$1"$2:$3"`+scrubbedValue+`"`)
}
