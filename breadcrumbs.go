package raven

import (
	"sync"
	"time"
)

const defaultMaxBreadcrumbs = 100

// maxBreadcrumbs is the upper limit accepted for ClientOptions.MaxBreadcrumbs.
const maxBreadcrumbs = 100

// breadcrumbsRecorder keeps the most recent breadcrumbs. It is safe for
// concurrent use.
type breadcrumbsRecorder struct {
	mu          sync.Mutex
	breadcrumbs []*Breadcrumb
	limit       int
}

func newBreadcrumbsRecorder(limit int) *breadcrumbsRecorder {
	if limit <= 0 {
		limit = defaultMaxBreadcrumbs
	}
	if limit > maxBreadcrumbs {
		limit = maxBreadcrumbs
	}
	return &breadcrumbsRecorder{limit: limit}
}

// Add records b, evicting the oldest breadcrumb when the limit is reached.
func (r *breadcrumbsRecorder) Add(b *Breadcrumb) {
	if b == nil {
		return
	}
	if b.Timestamp.IsZero() {
		b.Timestamp = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.breadcrumbs = append(r.breadcrumbs, b)
	if len(r.breadcrumbs) > r.limit {
		r.breadcrumbs = r.breadcrumbs[len(r.breadcrumbs)-r.limit:]
	}
}

// Snapshot returns a copy of the recorded breadcrumbs, oldest first.
func (r *breadcrumbsRecorder) Snapshot() []*Breadcrumb {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.breadcrumbs) == 0 {
		return nil
	}
	out := make([]*Breadcrumb, len(r.breadcrumbs))
	copy(out, r.breadcrumbs)
	return out
}

func (r *breadcrumbsRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breadcrumbs = nil
}
