package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	metricEventsTotal   = "treewatch.events.total"
	metricRestartsTotal = "treewatch.restarts.total"
	metricSSGValue      = "treewatch.ssg.value"
	metricTreeProgress  = "treewatch.tree.progress"

	attrEventKind = "kind"
)

// Metrics holds the OTel instruments recorded by the restart controller.
type Metrics struct {
	eventsTotal   metric.Int64Counter
	restartsTotal metric.Int64Counter
	ssgValue      metric.Float64Gauge
	treeProgress  metric.Float64Gauge
}

// metricBuilder accumulates instrument creation errors, enabling batch
// construction with a single error check.
type metricBuilder struct {
	meter metric.Meter
	err   error
}

func (b *metricBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(err)

	return c
}

func (b *metricBuilder) gauge(name, desc, unit string) metric.Float64Gauge {
	g, err := b.meter.Float64Gauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(err)

	return g
}

func (b *metricBuilder) setErr(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

// NewMetrics creates the controller instruments from the given meter.
func NewMetrics(mt metric.Meter) (*Metrics, error) {
	b := &metricBuilder{meter: mt}

	m := &Metrics{
		eventsTotal:   b.counter(metricEventsTotal, "Total number of node events observed", "{event}"),
		restartsTotal: b.counter(metricRestartsTotal, "Total number of restarts requested", "{restart}"),
		ssgValue:      b.gauge(metricSSGValue, "Current subtree sum gap value", "1"),
		treeProgress:  b.gauge(metricTreeProgress, "Current weighted leaf progress", "1"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return m, nil
}

// NewNoopMetrics creates instruments that record nothing.
func NewNoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("treewatch"))

	return m
}

// RecordEvent counts one observed node event and refreshes the gauges.
func (m *Metrics) RecordEvent(ctx context.Context, kind string, ssg, progress float64) {
	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrEventKind, kind)))
	m.ssgValue.Record(ctx, ssg)
	m.treeProgress.Record(ctx, progress)
}

// RecordRestart counts one restart request.
func (m *Metrics) RecordRestart(ctx context.Context) {
	m.restartsTotal.Add(ctx, 1)
}
