// Package server owns the application lifecycle: it starts the trading
// engine, the optional Kafka ticks consumer, and the HTTP status server,
// then tears everything down on SIGINT/SIGTERM.
package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "PulseTrade/internal/domain/repository"
	"PulseTrade/internal/engine"
	pkgch "PulseTrade/pkg/clickhouse"
	"PulseTrade/pkg/config"
	xhttp "PulseTrade/pkg/http"
	pkgkafka "PulseTrade/pkg/kafka"
	applogger "PulseTrade/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	engine     *engine.Engine
	handler    xhttp.Handler
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	chClient   *pkgch.Client
	sink       domrepo.EventSink
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	eng *engine.Engine,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	sink domrepo.EventSink,
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		engine:   eng,
		handler:  handler,
		consumer: consumer,
		kh:       kh,
		chClient: chClient,
		sink:     sink,
	}
}

// Run starts the application and blocks until interrupted or until the
// engine stops on its own.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(a.log, time.Second),
	)

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- a.engine.Run(ctx)
	}()
	a.log.Info("engine started", applogger.Strings("symbols", a.cfg.Engine.Symbols))

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))
	case err := <-engineDone:
		if err != nil {
			a.log.Error("engine stopped", applogger.Error(err))
		} else {
			a.log.Info("engine stopped")
		}
	}

	cancel()
	return a.shutdown(context.Background())
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Collector flushes through the producer, so it goes before the sink.
	a.log.RemoveCollector()

	// Sink close flushes and closes the Kafka producer when one is wired.
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Warn("event sink close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
