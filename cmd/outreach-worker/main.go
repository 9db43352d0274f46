// cmd/outreach-worker/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"outreach-engine/internal/api"
	"outreach-engine/internal/app"
	"outreach-engine/internal/common/camunda"
	"outreach-engine/internal/common/config"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/common/observability"
	"outreach-engine/internal/trigger"
	rc "outreach-engine/internal/workers/outreach/run-campaign"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "console").Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if err := run(cfg, log); err != nil {
		zapLog.Fatal("worker exited", zap.Error(err))
	}
	log.Info("worker stopped", nil)
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting outreach worker", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	obs, err := observability.New(cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer obs.Shutdown(context.Background())

	engine, err := app.Build(ctx, cfg, log, app.WithConnectRetries(15, 2*time.Second))
	if err != nil {
		return err
	}
	defer engine.Close()

	g, gctx := errgroup.WithContext(ctx)
	checks := engine.Checks

	// --- Zeebe run-campaign worker ---
	if cfg.Camunda.Enabled {
		client, err := camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
		if err != nil {
			return err
		}
		defer client.Close()
		checks = append(checks, api.Check{Name: "zeebe", Ping: client.HealthCheck})

		wcfg := rc.LoadConfig(cfg)
		if err := wcfg.Validate(); err != nil {
			return err
		}
		handler := rc.NewHandler(wcfg, engine.Dispatcher, log, rc.WithCommandRetry(client))
		jw := camunda.StartWorker(client.GetClient(), rc.TaskType, config.GetWorkerConfig(cfg, rc.TaskType), instrument(obs, handler.Handle), log)
		if jw != nil {
			g.Go(func() error {
				<-gctx.Done()
				jw.Close()
				jw.AwaitClose()
				return nil
			})
		}
	}

	// --- AMQP trigger ---
	if cfg.Integrations.AMQP.Enabled {
		conn, ch, err := trigger.Dial(cfg.Integrations.AMQP.URL)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer ch.Close()

		consumer := trigger.NewConsumer(ch, trigger.Config{
			Queue:    cfg.Integrations.AMQP.Queue,
			Prefetch: cfg.Integrations.AMQP.Prefetch,
		}, engine.Dispatcher, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	// --- HTTP: API, health and metrics ---
	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      api.NewServer(engine.Dispatcher, log, checks...).Router(nil),
			ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
			WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
		}
		g.Go(func() error {
			log.Info("http server listening", map[string]interface{}{"address": srv.Addr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, stopping", nil)
		return nil
	})

	return g.Wait()
}

// instrument records job counts and latency through the otel meter.
func instrument(obs *observability.Observability, next worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		next(client, job)
		obs.RecordJobProcessed(context.Background(), job.Type, "handled")
		obs.RecordJobDuration(context.Background(), job.Type, time.Since(start), "handled")
	}
}
