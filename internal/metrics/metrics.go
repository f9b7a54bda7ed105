// Package metrics exports receiver statistics to Prometheus.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Hundemeier/go-sacn/sacn"
)

// Collector counts datagrams per outcome and tracks liveness. It implements sacn.Observer.
type Collector struct {
	datagrams    *prometheus.CounterVec
	lastReceived *prometheus.GaugeVec
	stale        *prometheus.GaugeVec
	now          func() time.Time
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		datagrams: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sacnrx",
				Name:      "datagrams_total",
				Help:      "Datagrams handled by the receiver by outcome and reject reason.",
			},
			[]string{"universe", "outcome", "reason"},
		),
		lastReceived: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "sacnrx",
				Name:      "last_received_timestamp_seconds",
				Help:      "Unix time of the last valid packet.",
			},
			[]string{"universe"},
		),
		stale: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "sacnrx",
				Name:      "source_stale",
				Help:      "1 if no valid packet arrived within the stale timeout.",
			},
			[]string{"universe"},
		),
		now: time.Now,
	}
	for _, col := range []prometheus.Collector{c.datagrams, c.lastReceived, c.stale} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveDatagram implements sacn.Observer.
func (c *Collector) ObserveDatagram(universe uint16, outcome sacn.Outcome, reason error) {
	label := strconv.Itoa(int(universe))
	c.datagrams.WithLabelValues(label, outcome.String(), Reason(reason)).Inc()
	if outcome != sacn.Rejected {
		c.lastReceived.WithLabelValues(label).Set(float64(c.now().UnixNano()) / 1e9)
	}
}

// SetStale records the liveness state decided by the consumer.
func (c *Collector) SetStale(universe uint16, stale bool) {
	v := 0.0
	if stale {
		v = 1
	}
	c.stale.WithLabelValues(strconv.Itoa(int(universe))).Set(v)
}

// Reason maps a reject error to a short label value.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, sacn.ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, sacn.ErrNotRootFrame):
		return "not_root_frame"
	case errors.Is(err, sacn.ErrNotDataFrame):
		return "not_data_frame"
	case errors.Is(err, sacn.ErrNotAddressed):
		return "not_addressed"
	case errors.Is(err, sacn.ErrNonStandardStartCode):
		return "non_standard_start_code"
	default:
		return "other"
	}
}
