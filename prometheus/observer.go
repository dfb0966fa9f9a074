// Package ravenprom exports the activity of background requester factories
// as Prometheus metrics.
package ravenprom

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	raven "github.com/ravenclient/raven-go"
)

const defaultNamespace = "raven"

// Drop reasons used as the value of the "reason" label.
const (
	ReasonQueueFull = "queue_full"
	ReasonClosed    = "closed"
	ReasonOther     = "other"
)

// Observer implements raven.Observer by updating Prometheus collectors.
type Observer struct {
	enqueued  prometheus.Counter
	dropped   *prometheus.CounterVec
	delivered prometheus.Counter
	failed    prometheus.Counter
	abandoned prometheus.Counter

	namespace  string
	registerer prometheus.Registerer
}

var _ raven.Observer = (*Observer)(nil)

// NewObserver creates an Observer whose collectors are registered with reg
// under namespace. A nil reg uses prometheus.DefaultRegisterer and an empty
// namespace defaults to "raven". It panics if the collectors are already
// registered with reg.
func NewObserver(reg prometheus.Registerer, namespace string) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = defaultNamespace
	}
	factory := promauto.With(reg)

	return &Observer{
		enqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_enqueued_total",
			Help:      "Total number of requests accepted into the background queue",
		}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_dropped_total",
			Help:      "Total number of requests rejected by the background queue",
		}, []string{"reason"}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_delivered_total",
			Help:      "Total number of queued requests transmitted successfully",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_failed_total",
			Help:      "Total number of queued requests whose transmission failed",
		}),
		abandoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_abandoned_total",
			Help:      "Total number of queued requests left unsent at shutdown",
		}),
		namespace:  namespace,
		registerer: reg,
	}
}

func (o *Observer) Enqueued() {
	o.enqueued.Inc()
}

func (o *Observer) Dropped(reason error) {
	switch {
	case errors.Is(reason, raven.ErrQueueFull):
		o.dropped.WithLabelValues(ReasonQueueFull).Inc()
	case errors.Is(reason, raven.ErrFactoryClosed):
		o.dropped.WithLabelValues(ReasonClosed).Inc()
	default:
		o.dropped.WithLabelValues(ReasonOther).Inc()
	}
}

func (o *Observer) Delivered(string) {
	o.delivered.Inc()
}

func (o *Observer) Failed(error) {
	o.failed.Inc()
}

func (o *Observer) Abandoned(n int) {
	o.abandoned.Add(float64(n))
}

// RegisterQueue exports the depth and capacity of f's queue as gauges, and
// its push counters, sampled at scrape time.
func (o *Observer) RegisterQueue(f *raven.BackgroundRequesterFactory) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Name:      "queue_depth",
			Help:      "Current number of requests waiting in the background queue",
		}, func() float64 {
			return float64(f.QueueLen())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Name:      "queue_capacity",
			Help:      "Capacity of the background queue",
		}, func() float64 {
			return float64(f.QueueCap())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "queue_pushed_total",
			Help:      "Total number of pushes accepted by the background queue",
		}, func() float64 {
			return float64(f.QueuePushed())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "queue_rejected_total",
			Help:      "Total number of pushes refused because the background queue was full",
		}, func() float64 {
			return float64(f.QueueRejected())
		}),
	}

	for i, c := range collectors {
		if err := o.registerer.Register(c); err != nil {
			for _, registered := range collectors[:i] {
				o.registerer.Unregister(registered)
			}
			return err
		}
	}
	return nil
}
