package observability

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

const metricNamespace = "hydraql."

// instrumentSet creates instruments under the hydraql namespace and collects
// every creation error for a single check.
type instrumentSet struct {
	meter metric.Meter
	errs  []error
}

func (s *instrumentSet) count(name, desc, unit string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(metricNamespace+name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.track(name, err)

	return c
}

// seconds creates a duration histogram bucketed for analyzer runs.
func (s *instrumentSet) seconds(name, desc string) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(metricNamespace+name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(analyzerBuckets...),
	)
	s.track(name, err)

	return h
}

func (s *instrumentSet) level(name, desc, unit string) metric.Int64UpDownCounter {
	c, err := s.meter.Int64UpDownCounter(metricNamespace+name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.track(name, err)

	return c
}

func (s *instrumentSet) track(name string, err error) {
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("create %s%s: %w", metricNamespace, name, err))
	}
}

func (s *instrumentSet) err() error {
	return errors.Join(s.errs...)
}
