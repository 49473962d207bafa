// Package activity records who did what to which entry. Recording is
// best-effort: failures are logged and never reach the caller's decision.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/example/formflow/internal/metrics"
	"github.com/example/formflow/internal/models"
	"github.com/example/formflow/internal/mq"
	"github.com/example/formflow/internal/repository"
)

// RoutingPrefix prefixes the routing key of published activity events.
const RoutingPrefix = "activity."

// RoutingKey returns the topic routing key for a record, e.g. "activity.form_entry.delete".
func RoutingKey(log *models.ActivityLog) string {
	return RoutingPrefix + log.ResourceType + "." + log.Action
}

// Notifier delivers one activity record.
type Notifier interface {
	Notify(ctx context.Context, log *models.ActivityLog) error
}

// MQNotifier publishes records to the activity exchange.
type MQNotifier struct {
	publisher mq.Publisher
}

// NewMQNotifier wraps a publisher.
func NewMQNotifier(publisher mq.Publisher) *MQNotifier {
	return &MQNotifier{publisher: publisher}
}

func (n *MQNotifier) Notify(ctx context.Context, log *models.ActivityLog) error {
	return n.publisher.Publish(ctx, RoutingKey(log), log)
}

// StoreNotifier writes records straight to the activity table.
type StoreNotifier struct {
	store repository.ActivityStore
}

// NewStoreNotifier wraps an activity store.
func NewStoreNotifier(store repository.ActivityStore) *StoreNotifier {
	return &StoreNotifier{store: store}
}

func (n *StoreNotifier) Notify(ctx context.Context, log *models.ActivityLog) error {
	return n.store.Create(ctx, log)
}

// Recorder sends records in the background with a bounded timeout.
type Recorder struct {
	notifier Notifier
	sink     string
	timeout  time.Duration
	inflight sync.WaitGroup
	// done, when set, is called after each delivery attempt.
	done func()
}

// NewRecorder builds a recorder. sink labels metrics and logs.
func NewRecorder(notifier Notifier, sink string, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{notifier: notifier, sink: sink, timeout: timeout}
}

// Record delivers log asynchronously and returns immediately.
func (r *Recorder) Record(log models.ActivityLog) {
	if r == nil || r.notifier == nil {
		return
	}
	if log.OccurredAt.IsZero() {
		log.OccurredAt = time.Now().UTC()
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		if r.done != nil {
			defer r.done()
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.notifier.Notify(ctx, &log); err != nil {
			metrics.ActivityEventsTotal.WithLabelValues(r.sink, "failed").Inc()
			logrus.WithError(err).WithFields(logrus.Fields{
				"sink":       r.sink,
				"action":     log.Action,
				"resourceId": log.ResourceID,
			}).Warn("record activity failed")
			return
		}
		metrics.ActivityEventsTotal.WithLabelValues(r.sink, "delivered").Inc()
	}()
}

// Drain waits for pending deliveries until ctx ends. Records made after the
// producers have stopped are not expected.
func (r *Recorder) Drain(ctx context.Context) error {
	if r == nil {
		return nil
	}
	drained := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "drain activity records")
	}
}
