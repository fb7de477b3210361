package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/resource-existence/internal/progress"
)

// PrometheusSink mirrors every progress key into a gauge labeled by key.
type PrometheusSink struct {
	values *prometheus.GaugeVec
}

// NewPrometheusSink registers the collector against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "existence_progress_value",
			Help: "Latest value of each sweep progress key.",
		}, []string{"key"}),
	}
	if err := reg.Register(s.values); err != nil {
		return nil, fmt.Errorf("register progress collector: %w", err)
	}
	return s, nil
}

// Consume updates the gauges using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for key, value := range progress.Latest(batch) {
		s.values.WithLabelValues(key).Set(float64(value))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
