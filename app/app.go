package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pedronora/internum-api/config"
	"github.com/pedronora/internum-api/internal/handler"
	"github.com/pedronora/internum-api/internal/notify"
	"github.com/pedronora/internum-api/internal/repository"
	"github.com/pedronora/internum-api/internal/server"
	"github.com/pedronora/internum-api/internal/service"
	"github.com/pedronora/internum-api/migrations"
	"github.com/pedronora/internum-api/pkg/breaker"
	"github.com/pedronora/internum-api/pkg/kafka"
	"github.com/pedronora/internum-api/pkg/logger"
	"github.com/pedronora/internum-api/pkg/postgres"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "internum")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		log.Fatal("kafka.NewProducer", zap.Error(err))
	}
	dispatcher := notify.NewBreakerDispatcher(
		notify.NewKafkaDispatcher(producer, kafka.NotificationsTopic, log),
		breaker.New(20, 30*time.Second, 0.5, 3),
	)

	svc := service.NewService(repo, dispatcher, log)

	h := handler.New(svc, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run()
	})
	g.Go(func() error {
		runOverdueSweeper(gCtx, svc, cfg.Sweep, log)
		return nil
	})

	<-ctx.Done()
	log.Debug("Graceful shutdown")

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	if err = g.Wait(); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	if err = producer.Close(); err != nil {
		log.Error("producer.Close", zap.Error(err))
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}

// runOverdueSweeper triggers the reconciliation sweep on a fixed interval
// until the context is cancelled. A failed sweep is logged and retried on
// the next tick.
func runOverdueSweeper(ctx context.Context, svc *service.Service, cfg config.Sweep, log *zap.Logger) {
	sweep := func() {
		count, err := svc.SweepOverdue(ctx)
		if err != nil {
			log.Error("overdue sweep", zap.Error(err))
			return
		}
		log.Debug("overdue sweep done", zap.Int("transitioned", count))
	}

	if cfg.OnStart {
		sweep()
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep()
		case <-ctx.Done():
			return
		}
	}
}
