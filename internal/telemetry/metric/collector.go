package metric

import "github.com/prometheus/client_golang/prometheus"

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
// fn must be cheap and safe for concurrent use.
func (r *Registry) GaugeFunc(subsystem, name, help string, fn func() float64) error {
	return r.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}
