package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/dexbook/internal/config"
	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/efreitasn/dexbook/internal/engine"
	"github.com/efreitasn/dexbook/internal/feed"
	"github.com/efreitasn/dexbook/internal/handler"
	"github.com/efreitasn/dexbook/internal/service"
	"github.com/efreitasn/dexbook/internal/sink"
	"github.com/efreitasn/dexbook/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With(slog.String("symbol", cfg.Symbol))
	slog.SetDefault(logger)

	tradeStore := store.NewTradeStore()
	f := feed.New(cfg.Symbol, cfg.PriceScale, logger)

	// Local sinks always see every trade. Announcers sit behind the
	// journal when one is configured, so a trade the journal failed to
	// store is never published.
	local := sink.Fanout{sink.NewLogger(logger, cfg.Symbol), tradeStore}
	announcers := sink.Fanout{f}
	var journal *sink.Journal
	var closers []io.Closer
	var lastTimestamp uint64

	if cfg.JournalDir != "" {
		journal, err = sink.OpenJournal(cfg.JournalDir)
		if err != nil {
			logger.Error("failed to open journal", slog.String("error", err.Error()))
			os.Exit(1)
		}
		err = journal.Scan(func(e sink.JournalEntry) error {
			tradeStore.Append(e.Trade, e.RecordedAt)
			lastTimestamp = max(lastTimestamp, e.Trade.Timestamp)
			return nil
		})
		if err != nil {
			logger.Error("failed to replay journal", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("journal replayed",
			slog.String("dir", cfg.JournalDir),
			slog.Uint64("trades", journal.Len()),
		)
		closers = append(closers, journal)
	}

	if cfg.RedisAddr != "" {
		p := sink.NewRedisPublisher(sink.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Channel:  cfg.RedisChannel,
			Symbol:   cfg.Symbol,
			Timeout:  cfg.SinkTimeout,
		})
		announcers = append(announcers, p)
		closers = append(closers, p)
	}

	if len(cfg.KafkaBrokers) > 0 {
		p := sink.NewKafkaPublisher(sink.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Symbol:  cfg.Symbol,
			Timeout: cfg.SinkTimeout,
		})
		announcers = append(announcers, p)
		closers = append(closers, p)
	}

	if cfg.PostgresDSN != "" {
		archive, err := sink.OpenPostgresArchive(cfg.PostgresDSN, cfg.Symbol, cfg.SinkTimeout)
		if err != nil {
			logger.Error("failed to open trade archive", slog.String("error", err.Error()))
			os.Exit(1)
		}
		announcers = append(announcers, archive)
		closers = append(closers, archive)
	}

	if cfg.WebhookURL != "" {
		announcers = append(announcers, sink.NewWebhook(cfg.WebhookURL, cfg.Symbol, cfg.SinkTimeout))
	}

	var listener domain.TradeListener = append(local, announcers)
	if journal != nil {
		listener = append(local, sink.Gated{Gate: journal, Next: announcers})
	}
	eng := engine.NewMatchingEngine(engine.NewOrderBook(), listener,
		engine.WithSequencer(engine.NewSequencer(lastTimestamp)),
	)

	orderSvc := service.NewOrderService(eng, f, cfg.Symbol, cfg.PriceScale, logger)
	marketSvc := service.NewMarketService(eng, tradeStore, cfg.VWAPWindow, cfg.Symbol)

	router := handler.NewRouter(orderSvc, marketSvc, http.HandlerFunc(f.ServeWS), cfg.PriceScale, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.Int("announcers", len(announcers)),
			slog.Bool("journal", journal != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, disconnect feed subscribers,
	// then release the sinks.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	f.Close()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("sink close error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}
