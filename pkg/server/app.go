package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "TruthGate/internal/middleware"
	"TruthGate/internal/usecase"
	pkgcache "TruthGate/pkg/cache"
	pkgch "TruthGate/pkg/clickhouse"
	"TruthGate/pkg/config"
	xhttp "TruthGate/pkg/http"
	pkgkafka "TruthGate/pkg/kafka"
	applogger "TruthGate/pkg/logger"
	"TruthGate/pkg/queue"
)

// App owns the application lifecycle: the HTTP server, the Kafka intake
// consumer, the job queue and the periodic evaluation and calibration
// sweeps.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server

	consumer *pkgkafka.Consumer
	producer *pkgkafka.Producer
	intake   pkgkafka.MessageHandler
	jobQueue *queue.RedisQueue
	feed     *mid.DecisionFeed

	truthRunner *usecase.TruthRunner
	calibration *usecase.CalibrationRunner

	chClient *pkgch.Client
	cache    *pkgcache.RedisCache
}

func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpHandler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	intake pkgkafka.MessageHandler,
	jobQueue *queue.RedisQueue,
	feed *mid.DecisionFeed,
	truthRunner *usecase.TruthRunner,
	calibration *usecase.CalibrationRunner,
	chClient *pkgch.Client,
	cache *pkgcache.RedisCache,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		httpHandler: httpHandler,
		consumer:    consumer,
		producer:    producer,
		intake:      intake,
		jobQueue:    jobQueue,
		feed:        feed,
		truthRunner: truthRunner,
		calibration: calibration,
		chClient:    chClient,
		cache:       cache,
	}
}

// Run starts every component and blocks until an interrupt arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// warm shrink lookups from the last published snapshot before intake starts
	if err := a.calibration.Warm(ctx); err != nil {
		a.log.Warn("calibration warm failed", applogger.Error(err))
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.consumer != nil && a.intake != nil {
		a.consumer.RegisterHandler(a.intake)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.intake.Topic()))
	}

	if a.jobQueue != nil {
		if err := a.jobQueue.Start(); err != nil {
			a.log.Error("job queue start error", applogger.Error(err))
		} else {
			a.log.Info("job queue started")
		}
	}

	go a.runTicker(ctx, "truth", a.cfg.Evaluator.Interval, func(tctx context.Context) {
		if _, err := a.truthRunner.RunOnce(tctx); err != nil {
			a.log.Error("scheduled truth run failed", applogger.Error(err))
		}
	})
	go a.runTicker(ctx, "calibration", a.cfg.Calibration.Interval, func(tctx context.Context) {
		if err := a.calibration.RunOnce(tctx); err != nil {
			a.log.Error("scheduled calibration run failed", applogger.Error(err))
		}
	})

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

func (a *App) runTicker(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	a.log.Info("scheduler started",
		applogger.String("task", name),
		applogger.Duration("interval_ms", interval),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.feed != nil {
		a.feed.Stop()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.jobQueue != nil {
		if err := a.jobQueue.Stop(shutdownCtx); err != nil {
			a.log.Warn("job queue stop error", applogger.Error(err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
