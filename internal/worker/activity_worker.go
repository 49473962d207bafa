package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/example/formflow/internal/metrics"
	"github.com/example/formflow/internal/models"
	"github.com/example/formflow/internal/mq"
	"github.com/example/formflow/internal/repository"
)

// ActivityWorker drains the activity queue into the activity log table.
type ActivityWorker struct {
	consumer mq.Consumer
	store    repository.ActivityStore
	timeout  time.Duration
}

// NewActivityWorker creates the worker.
func NewActivityWorker(consumer mq.Consumer, store repository.ActivityStore, timeout time.Duration) *ActivityWorker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ActivityWorker{consumer: consumer, store: store, timeout: timeout}
}

// Run consumes until ctx is cancelled and should be launched in its own goroutine.
func (w *ActivityWorker) Run(ctx context.Context) {
	if err := w.consumer.Consume(ctx, w.handle); err != nil {
		logrus.WithError(err).Error("activity worker could not start consuming")
		return
	}
	logrus.Info("activity worker started")
	<-ctx.Done()
	if err := w.consumer.Close(); err != nil {
		logrus.WithError(err).Warn("close activity consumer")
	}
	logrus.Info("activity worker shutting down")
}

func (w *ActivityWorker) handle(msg amqp091.Delivery) {
	var log models.ActivityLog
	if err := json.Unmarshal(msg.Body, &log); err != nil || log.Action == "" || log.ResourceID == "" {
		logrus.WithError(err).WithField("routingKey", msg.RoutingKey).Warn("dropping malformed activity message")
		metrics.ActivityEventsTotal.WithLabelValues("queue", "malformed").Inc()
		if err := msg.Reject(false); err != nil {
			logrus.WithError(err).Warn("reject activity message")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.store.Create(ctx, &log); err != nil {
		logrus.WithError(err).WithField("resourceId", log.ResourceID).Error("store activity message")
		metrics.ActivityEventsTotal.WithLabelValues("queue", "failed").Inc()
		// redelivered messages have already failed once; park them instead of looping
		if err := msg.Nack(false, !msg.Redelivered); err != nil {
			logrus.WithError(err).Warn("nack activity message")
		}
		return
	}
	metrics.ActivityEventsTotal.WithLabelValues("queue", "stored").Inc()
	if err := msg.Ack(false); err != nil {
		logrus.WithError(err).Warn("ack activity message")
	}
}
