// Package metrics provides an OpenTelemetry-instrumented Consumer wrapper
// for reporting delivered events and terminal outcomes of a running
// subscription without changing how it is wired up.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/get-eventually/go-catchup/subscription"
)

// NameAttribute tags every recorded metric with the subscription name
// it belongs to, so that dashboards can break results down per
// subscription.
var NameAttribute = attribute.Key("catchup.subscription.name")

// Recorder holds the counters instrumented onto a subscription.Consumer.
type Recorder struct {
	name string

	delivered metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
}

// NewRecorder registers the counters used by InstrumentConsumer against
// meter, scoped to the given subscription name.
func NewRecorder(meter metric.Meter, name string) (*Recorder, error) {
	wrapErr := func(err error, what string) error {
		return fmt.Errorf("metrics.NewRecorder: failed to register %s counter: %w", what, err)
	}

	delivered, err := meter.Int64Counter(
		"catchup.subscription.events.delivered",
		metric.WithDescription("Count of events delivered to a subscription consumer"),
	)
	if err != nil {
		return nil, wrapErr(err, "delivered")
	}

	completed, err := meter.Int64Counter(
		"catchup.subscription.completed",
		metric.WithDescription("Count of subscriptions that reached OnComplete"),
	)
	if err != nil {
		return nil, wrapErr(err, "completed")
	}

	failed, err := meter.Int64Counter(
		"catchup.subscription.failed",
		metric.WithDescription("Count of subscriptions that reached OnError"),
	)
	if err != nil {
		return nil, wrapErr(err, "failed")
	}

	return &Recorder{name: name, delivered: delivered, completed: completed, failed: failed}, nil
}

// instrumentedConsumer wraps a subscription.Consumer, reporting every
// call to the underlying Recorder before forwarding it.
type instrumentedConsumer[E any] struct {
	ctx      context.Context
	inner    subscription.Consumer[E]
	recorder *Recorder
}

// InstrumentConsumer wraps consumer so every OnNext, OnComplete and
// OnError call is recorded against recorder. ctx is used only to attach
// metric measurements to the recording context; it is not propagated
// to the wrapped consumer's own methods.
func InstrumentConsumer[E any](
	ctx context.Context,
	consumer subscription.Consumer[E],
	recorder *Recorder,
) subscription.Consumer[E] {
	return &instrumentedConsumer[E]{ctx: ctx, inner: consumer, recorder: recorder}
}

func (c *instrumentedConsumer[E]) OnNext(event E) {
	c.recorder.delivered.Add(c.ctx, 1, metric.WithAttributes(NameAttribute.String(c.recorder.name)))
	c.inner.OnNext(event)
}

func (c *instrumentedConsumer[E]) OnComplete() {
	c.recorder.completed.Add(c.ctx, 1, metric.WithAttributes(NameAttribute.String(c.recorder.name)))
	c.inner.OnComplete()
}

func (c *instrumentedConsumer[E]) OnError(err error) {
	c.recorder.failed.Add(c.ctx, 1, metric.WithAttributes(NameAttribute.String(c.recorder.name)))
	c.inner.OnError(err)
}
