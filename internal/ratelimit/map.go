// Package ratelimit parses rate limit responses and tracks per-category
// back-off deadlines.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultRetryAfter = 60 * time.Second

// Deadline is the time until which a category is rate limited.
type Deadline time.Time

// After reports whether d is after t.
func (d Deadline) After(t time.Time) bool {
	return time.Time(d).After(t)
}

// Equal reports whether d and e represent the same instant.
func (d Deadline) Equal(e Deadline) bool {
	return time.Time(d).Equal(time.Time(e))
}

func (d Deadline) String() string {
	return time.Time(d).Format(time.RFC3339)
}

// Map maps categories to rate limit deadlines. The zero value is not usable,
// use make(Map).
type Map map[Category]Deadline

// IsRateLimited reports whether c is rate limited at the current time.
func (m Map) IsRateLimited(c Category) bool {
	return m.isRateLimited(c, time.Now())
}

func (m Map) isRateLimited(c Category, now time.Time) bool {
	return m.Deadline(c).After(now)
}

// Deadline returns the latest deadline that applies to c, taking the
// all-categories limit into account.
func (m Map) Deadline(c Category) Deadline {
	if c == CategoryAll {
		return m[CategoryAll]
	}
	if d, all := m[c], m[CategoryAll]; all.After(time.Time(d)) {
		return all
	}
	return m[c]
}

// Merge keeps the later deadline for every category present in either map.
func (m Map) Merge(other Map) {
	for c, d := range other {
		if d.After(time.Time(m[c])) {
			m[c] = d
		}
	}
}

// FromResponse extracts rate limits from an HTTP response. Responses that
// carry no rate limit information yield an empty map.
func FromResponse(r *http.Response) Map {
	return fromResponse(r, time.Now())
}

func fromResponse(r *http.Response, now time.Time) Map {
	s := r.Header.Get("X-Sentry-Rate-Limits")
	if s != "" {
		return parseXSentryRateLimits(s, now)
	}
	if r.StatusCode == http.StatusTooManyRequests {
		return Map{CategoryAll: Deadline(now.Add(parseRetryAfter(r.Header.Get("Retry-After"), now)))}
	}
	return Map{}
}

// parseXSentryRateLimits parses the X-Sentry-Rate-Limits header, for example
// "60:error;user_report:key, 2700::organization".
func parseXSentryRateLimits(s string, now time.Time) Map {
	m := make(Map)
	for _, limit := range strings.Split(s, ",") {
		limit = strings.TrimSpace(limit)
		if limit == "" {
			continue
		}
		fields := strings.Split(limit, ":")
		seconds, err := strconv.ParseFloat(fields[0], 64)
		if err != nil || seconds < 0 {
			seconds = defaultRetryAfter.Seconds()
		}
		deadline := Deadline(now.Add(time.Duration(seconds * float64(time.Second))))

		var categories []string
		if len(fields) > 1 {
			categories = strings.Split(fields[1], ";")
		}
		if len(categories) == 0 || (len(categories) == 1 && categories[0] == "") {
			m.Merge(Map{CategoryAll: deadline})
			continue
		}
		for _, c := range categories {
			category := Category(c)
			if _, ok := knownCategories[category]; !ok {
				continue
			}
			m.Merge(Map{category: deadline})
		}
	}
	return m
}

// parseRetryAfter parses a Retry-After header value given either in seconds
// or as an HTTP date.
func parseRetryAfter(s string, now time.Time) time.Duration {
	if s == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(s); err == nil {
		if seconds < 0 {
			return defaultRetryAfter
		}
		return time.Duration(seconds) * time.Second
	}
	if date, err := http.ParseTime(s); err == nil {
		if d := date.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}
