package facade_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-catchup/checkpoint"
	"github.com/get-eventually/go-catchup/facade"
	"github.com/get-eventually/go-catchup/logger"
	"github.com/get-eventually/go-catchup/subscription"
	"github.com/get-eventually/go-catchup/subscription/subscriptiontest"
)

const (
	waitFor = 200 * time.Millisecond
	tick    = 2 * time.Millisecond
)

// recordingLogger is a logger.Logger test double recording every entry
// passed to Info or Error, so a test can assert on wiring without
// depending on log output formatting.
type recordingLogger struct {
	mu    sync.Mutex
	infos []string
	errs  []string
}

func (l *recordingLogger) Debug(string, ...logger.Field) {}

func (l *recordingLogger) Info(msg string, _ ...logger.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Error(msg string, _ ...logger.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.errs = append(l.errs, msg)
}

func (l *recordingLogger) InfoCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.infos)
}

func (l *recordingLogger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.errs)
}

// memCheckpoint is a minimal in-memory checkpoint.Store test double.
type memCheckpoint struct {
	pos subscription.EventNumber
	ok  bool
}

func (m *memCheckpoint) Read(context.Context, string) (subscription.EventNumber, bool, error) {
	return m.pos, m.ok, nil
}

func (m *memCheckpoint) Write(_ context.Context, _ string, pos subscription.EventNumber) error {
	m.pos = pos
	m.ok = true
	return nil
}

func TestResubscriberResumesFromCheckpointOnBeginning(t *testing.T) {
	store := &memCheckpoint{pos: 41, ok: true}

	var gotFrom subscription.Start[subscription.EventNumber]

	r := facade.Resubscriber[subscription.EventNumber, subscriptiontest.StreamEvent]{
		Start: func(_ context.Context, from subscription.Start[subscription.EventNumber], consumer subscription.Consumer[subscriptiontest.StreamEvent]) subscription.Handle {
			gotFrom = from
			consumer.OnComplete()
			return noopHandle{}
		},
		Position:   func(e subscriptiontest.StreamEvent) subscription.EventNumber { return e.Num },
		Checkpoint: store,
		Name:       "orders-123",
	}

	consumer := subscriptiontest.NewFakeConsumer[subscriptiontest.StreamEvent]()
	handle := r.Run(context.Background(), subscription.FromBeginning[subscription.EventNumber](), consumer)
	t.Cleanup(handle.Cancel)

	require.Eventually(t, consumer.Completed, 200*time.Millisecond, 2*time.Millisecond)
	assert.False(t, gotFrom.IsBeginning(), "checkpoint should have overridden the beginning position")
}

func TestResubscriberWritesCheckpointOnDelivery(t *testing.T) {
	store := &memCheckpoint{}

	r := facade.Resubscriber[subscription.EventNumber, subscriptiontest.StreamEvent]{
		Start: func(_ context.Context, _ subscription.Start[subscription.EventNumber], consumer subscription.Consumer[subscriptiontest.StreamEvent]) subscription.Handle {
			consumer.OnNext(subscriptiontest.StreamEvent{Num: 7})
			consumer.OnComplete()
			return noopHandle{}
		},
		Position:   func(e subscriptiontest.StreamEvent) subscription.EventNumber { return e.Num },
		Checkpoint: store,
		Name:       "orders-123",
	}

	consumer := subscriptiontest.NewFakeConsumer[subscriptiontest.StreamEvent]()
	handle := r.Run(context.Background(), subscription.FromBeginning[subscription.EventNumber](), consumer)
	t.Cleanup(handle.Cancel)

	require.Eventually(t, consumer.Completed, 200*time.Millisecond, 2*time.Millisecond)
	assert.Equal(t, subscription.EventNumber(7), store.pos)
}

type noopHandle struct{}

func (noopHandle) Request(uint64) {}
func (noopHandle) Cancel()        {}

var _ checkpoint.Store[subscription.EventNumber] = (*memCheckpoint)(nil)
var _ logger.Logger = (*recordingLogger)(nil)

// TestResubscriberLogsReconnectAttempts covers the Logger wiring point:
// every reconnect after an OnError is reported as one Info entry.
func TestResubscriberLogsReconnectAttempts(t *testing.T) {
	log := &recordingLogger{}
	attempts := 0

	r := facade.Resubscriber[subscription.EventNumber, subscriptiontest.StreamEvent]{
		Start: func(_ context.Context, _ subscription.Start[subscription.EventNumber], consumer subscription.Consumer[subscriptiontest.StreamEvent]) subscription.Handle {
			attempts++

			if attempts < 3 {
				consumer.OnError(errors.New("boom"))
			} else {
				consumer.OnComplete()
			}

			return noopHandle{}
		},
		Position:   func(e subscriptiontest.StreamEvent) subscription.EventNumber { return e.Num },
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		Logger:     log,
	}

	consumer := subscriptiontest.NewFakeConsumer[subscriptiontest.StreamEvent]()
	handle := r.Run(context.Background(), subscription.FromBeginning[subscription.EventNumber](), consumer)
	t.Cleanup(handle.Cancel)

	require.Eventually(t, consumer.Completed, waitFor, tick)
	assert.Equal(t, 2, log.InfoCount(), "one Info entry per reconnect attempt")
}

// TestResubscriberLogsCheckpointError covers the Logger wiring point for
// a failing checkpoint write: it is reported through Logger in addition
// to OnCheckpointError.
func TestResubscriberLogsCheckpointError(t *testing.T) {
	log := &recordingLogger{}
	store := &failingCheckpoint{err: errors.New("disk full")}

	var reported error

	r := facade.Resubscriber[subscription.EventNumber, subscriptiontest.StreamEvent]{
		Start: func(_ context.Context, _ subscription.Start[subscription.EventNumber], consumer subscription.Consumer[subscriptiontest.StreamEvent]) subscription.Handle {
			consumer.OnNext(subscriptiontest.StreamEvent{Num: 1})
			consumer.OnComplete()
			return noopHandle{}
		},
		Position:          func(e subscriptiontest.StreamEvent) subscription.EventNumber { return e.Num },
		Checkpoint:        store,
		Name:              "orders-123",
		Logger:            log,
		OnCheckpointError: func(err error) { reported = err },
	}

	consumer := subscriptiontest.NewFakeConsumer[subscriptiontest.StreamEvent]()
	handle := r.Run(context.Background(), subscription.FromBeginning[subscription.EventNumber](), consumer)
	t.Cleanup(handle.Cancel)

	require.Eventually(t, consumer.Completed, waitFor, tick)
	assert.Equal(t, store.err, reported)
	assert.Equal(t, 1, log.ErrorCount())
}

// failingCheckpoint always fails Write, to exercise OnCheckpointError.
type failingCheckpoint struct {
	err error
}

func (f *failingCheckpoint) Read(context.Context, string) (subscription.EventNumber, bool, error) {
	return 0, false, nil
}

func (f *failingCheckpoint) Write(context.Context, string, subscription.EventNumber) error {
	return f.err
}

// TestResubscriberAcceptsTestLogger checks that logger.Test, the
// t.Logf-backed adapter meant for exactly this purpose, satisfies
// Resubscriber.Logger without further wrapping.
func TestResubscriberAcceptsTestLogger(t *testing.T) {
	r := facade.Resubscriber[subscription.EventNumber, subscriptiontest.StreamEvent]{
		Start: func(_ context.Context, _ subscription.Start[subscription.EventNumber], consumer subscription.Consumer[subscriptiontest.StreamEvent]) subscription.Handle {
			consumer.OnComplete()
			return noopHandle{}
		},
		Position: func(e subscriptiontest.StreamEvent) subscription.EventNumber { return e.Num },
		Logger:   logger.NewTest(t),
	}

	consumer := subscriptiontest.NewFakeConsumer[subscriptiontest.StreamEvent]()
	handle := r.Run(context.Background(), subscription.FromBeginning[subscription.EventNumber](), consumer)
	t.Cleanup(handle.Cancel)

	require.Eventually(t, consumer.Completed, waitFor, tick)
}
