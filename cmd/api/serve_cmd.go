package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/example/formflow/internal/activity"
	"github.com/example/formflow/internal/config"
	"github.com/example/formflow/internal/db"
	"github.com/example/formflow/internal/folio"
	httpserver "github.com/example/formflow/internal/http"
	"github.com/example/formflow/internal/mq"
	"github.com/example/formflow/internal/repository"
	"github.com/example/formflow/internal/service"
	"github.com/example/formflow/internal/worker"
	"github.com/example/formflow/internal/workflow"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the activity worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply schema migrations before serving")
	return cmd
}

func serve(parent context.Context, cfg config.Config, migrate bool) error {
	database, err := db.New(cfg.DatabaseURL, cfg.DBLogLevel)
	if err != nil {
		return errors.Wrap(err, "connect database")
	}
	if migrate {
		if err := db.Migrate(database); err != nil {
			return err
		}
	}

	store, closeFolios, err := buildStore(parent, cfg, database)
	if err != nil {
		return err
	}
	defer closeFolios()

	evaluator, err := buildEvaluator(cfg)
	if err != nil {
		return err
	}

	var publisher *mq.RabbitPublisher
	var notifier activity.Notifier
	sink := "mq"
	publisher, err = mq.NewRabbitPublisher(cfg.MQURL, cfg.MQExchange)
	if err != nil {
		logrus.WithError(err).Warn("rabbitmq unavailable, writing activity directly")
		notifier = activity.NewStoreNotifier(store.Activities())
		sink = "store"
	} else {
		notifier = activity.NewMQNotifier(publisher)
	}
	recorder := activity.NewRecorder(notifier, sink, cfg.ActivityTimeout)

	forms := service.NewFormService(store, workflow.NewTransitionService(evaluator, nil), recorder)
	apiServer := httpserver.NewServer(forms, cfg.MetricsPath)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var workers sync.WaitGroup
	if publisher != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			runWorker(ctx, cfg, store.Activities())
		}()
	}

	srv := &http.Server{
		Addr:    cfg.HTTPPort,
		Handler: apiServer.Engine,
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.WithField("addr", cfg.HTTPPort).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logrus.Info("shutdown initiated")
	case err := <-serveErr:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownDeadline)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("server shutdown error")
	}
	if err := recorder.Drain(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("activity records still pending at shutdown")
	}
	workers.Wait()

	if publisher != nil {
		_ = publisher.Close()
	}
	logrus.Info("bye")
	return nil
}

// buildStore wires the repository store to the configured folio backend.
func buildStore(ctx context.Context, cfg config.Config, database *gorm.DB) (*repository.GormStore, func(), error) {
	switch cfg.FolioBackend {
	case config.FolioBackendRedis:
		counters, err := folio.NewRedisStore(cfg.RedisURL, "")
		if err != nil {
			return nil, nil, err
		}
		if err := counters.Ping(ctx); err != nil {
			_ = counters.Close()
			return nil, nil, errors.Wrap(err, "ping redis")
		}
		return repository.NewStore(database, repository.WithFolioStore(counters)), func() { _ = counters.Close() }, nil
	case config.FolioBackendMemory:
		logrus.Warn("folio counters kept in memory; numbering restarts with the process")
		return repository.NewStore(database, repository.WithFolioStore(folio.NewMemoryStore())), func() {}, nil
	default:
		return repository.NewStore(database), func() {}, nil
	}
}

func runWorker(ctx context.Context, cfg config.Config, store repository.ActivityStore) {
	consumer, err := mq.NewRabbitConsumer(cfg.MQURL, cfg.MQExchange, cfg.MQQueue, activity.RoutingPrefix+"#")
	if err != nil {
		logrus.WithError(err).Error("activity consumer unavailable")
		return
	}
	worker.NewActivityWorker(consumer, store, cfg.ActivityTimeout).Run(ctx)
}
