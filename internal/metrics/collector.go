// Package banchometrics defines the Prometheus metrics collector for
// banchod: session population, notify queue depth, and reaper activity.
package banchometrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "banchod"
	subsystem = "bancho"
)

// Label names.
const (
	labelQueue  = "queue"
	labelReaper = "reaper"
)

// Collector holds all banchod Prometheus metrics.
type Collector struct {
	// Sessions tracks the number of currently connected sessions.
	Sessions prometheus.Gauge

	// Channels tracks the number of registered channels.
	Channels prometheus.Gauge

	// NotifyDepth tracks the live (un-GC'd) message count of a notify
	// queue, labeled by which queue it is ("global" or a channel name).
	NotifyDepth *prometheus.GaugeVec

	// PacketsDispatched counts client packets whose id is a known client
	// packet id, whether or not the dispatcher has a handler for it.
	PacketsDispatched prometheus.Counter

	// PacketsUnknown counts client packets whose id is not a known client
	// packet id.
	PacketsUnknown prometheus.Counter

	// ReaperSweeps counts completed sweep passes per reaper
	// ("session", "notify", "password_cache").
	ReaperSweeps *prometheus.CounterVec

	// ReaperEvictions counts items removed per sweep pass per reaper.
	ReaperEvictions *prometheus.CounterVec

	// LoginFailures counts rejected logins, labeled by the reply code's
	// symbolic reason.
	LoginFailures *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.Channels,
		c.NotifyDepth,
		c.PacketsDispatched,
		c.PacketsUnknown,
		c.ReaperSweeps,
		c.ReaperEvictions,
		c.LoginFailures,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently connected sessions.",
		}),
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channels",
			Help:      "Number of registered channels.",
		}),
		NotifyDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notify_depth",
			Help:      "Number of live messages held by a notify queue.",
		}, []string{labelQueue}),
		PacketsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dispatched_total",
			Help:      "Total client packets with a known packet id.",
		}),
		PacketsUnknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_unknown_total",
			Help:      "Total client packets with an unrecognized packet id.",
		}),
		ReaperSweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reaper_sweeps_total",
			Help:      "Total completed reaper sweep passes.",
		}, []string{labelReaper}),
		ReaperEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reaper_evictions_total",
			Help:      "Total items removed by a reaper across all sweeps.",
		}, []string{labelReaper}),
		LoginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "login_failures_total",
			Help:      "Total rejected logins, labeled by reason.",
		}, []string{"reason"}),
	}
}

// SetSessions sets the current session gauge.
func (c *Collector) SetSessions(n int64) { c.Sessions.Set(float64(n)) }

// SetChannels sets the current channel gauge.
func (c *Collector) SetChannels(n int64) { c.Channels.Set(float64(n)) }

// SetNotifyDepth sets the live-message gauge for a named queue.
func (c *Collector) SetNotifyDepth(queue string, n int) {
	c.NotifyDepth.WithLabelValues(queue).Set(float64(n))
}

// IncDispatched increments the dispatched-packet counter.
func (c *Collector) IncDispatched() { c.PacketsDispatched.Inc() }

// IncUnknown increments the unknown-packet counter.
func (c *Collector) IncUnknown() { c.PacketsUnknown.Inc() }

// RecordSweep records one completed sweep pass for the named reaper,
// having evicted n items.
func (c *Collector) RecordSweep(reaper string, evicted int) {
	c.ReaperSweeps.WithLabelValues(reaper).Inc()
	c.ReaperEvictions.WithLabelValues(reaper).Add(float64(evicted))
}

// IncLoginFailure increments the login-failure counter for reason.
func (c *Collector) IncLoginFailure(reason string) {
	c.LoginFailures.WithLabelValues(reason).Inc()
}
