package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"CryptoScanner/internal/domain/repository"
	"CryptoScanner/internal/handler/api"
	"CryptoScanner/internal/usecase"
	pkgch "CryptoScanner/pkg/clickhouse"
	"CryptoScanner/pkg/config"
	xhttp "CryptoScanner/pkg/http"
	pkgkafka "CryptoScanner/pkg/kafka"
	applogger "CryptoScanner/pkg/logger"
	"CryptoScanner/pkg/queue"
)

// App encapsulates the application lifecycle: intake (stream or
// Kafka), the scheduled scan pipeline, and the HTTP API.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	handler    *api.SignalsHandler
	collector  *usecase.EventCollector
	consumer   *pkgkafka.Consumer
	kh         *usecase.KafkaEventsHandler
	rq         *queue.RedisQueue
	scheduler  *usecase.RunScheduler
	pub        repository.SignalPublisher
	chClient   *pkgch.Client
	httpServer *xhttp.Server
}

// New creates a new App instance. The collector, consumer and Redis
// queue may be nil depending on configuration.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	handler *api.SignalsHandler,
	collector *usecase.EventCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaEventsHandler,
	rq *queue.RedisQueue,
	scheduler *usecase.RunScheduler,
	pub repository.SignalPublisher,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		l:         l,
		handler:   handler,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		rq:        rq,
		scheduler: scheduler,
		pub:       pub,
		chClient:  chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	switch a.cfg.Intake.Type {
	case "websocket":
		if a.collector != nil {
			go func() {
				if err := a.collector.Start(ctx); err != nil {
					a.l.Error("event collector error", applogger.Error(err))
				}
			}()
			a.l.Info("event collector started",
				applogger.Strings("channels", a.cfg.Collector.Channels))
		}
	case "kafka":
		if a.consumer != nil && a.kh != nil {
			a.consumer.RegisterHandler(a.kh)
			go func() {
				if err := a.consumer.Start(); err != nil {
					a.l.Error("kafka consumer error", applogger.Error(err))
				}
			}()
			a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
		}
	default:
		a.l.Info("no intake configured, api and pipeline only")
	}

	if a.rq != nil {
		if err := a.rq.Start(); err != nil {
			a.l.Error("redis queue start error", applogger.Error(err))
			return err
		}
	}
	a.scheduler.Start(ctx)
	a.l.Info("run scheduler started",
		applogger.Duration("interval", a.cfg.Pipeline.Interval))

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops all services in reverse start order.
func (a *App) shutdown(ctx context.Context) error {
	a.scheduler.Stop()

	if a.rq != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.rq.Stop(stopCtx); err != nil {
			a.l.Warn("redis queue stop error", applogger.Error(err))
		}
		cancel()
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.l.Warn("event collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			a.l.Warn("signal publisher close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
