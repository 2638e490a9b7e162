package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/internal/engine/budget"
	"github.com/radieske/live-odds-engine/internal/engine/detector"
	"github.com/radieske/live-odds-engine/internal/engine/history"
	"github.com/radieske/live-odds-engine/internal/engine/httpapi"
	"github.com/radieske/live-odds-engine/internal/engine/notify"
	"github.com/radieske/live-odds-engine/internal/engine/provider"
	"github.com/radieske/live-odds-engine/internal/engine/pubsub"
	"github.com/radieske/live-odds-engine/internal/engine/scheduler"
	"github.com/radieske/live-odds-engine/internal/engine/sink"
	"github.com/radieske/live-odds-engine/internal/engine/store"
	"github.com/radieske/live-odds-engine/internal/engine/ws"
	"github.com/radieske/live-odds-engine/internal/shared/cache"
	"github.com/radieske/live-odds-engine/internal/shared/config"
	"github.com/radieske/live-odds-engine/internal/shared/db"
	"github.com/radieske/live-odds-engine/internal/shared/logger"
	"github.com/radieske/live-odds-engine/internal/shared/metrics"
)

func main() {
	// .env é conveniência de dev local; em prod as variáveis vêm do ambiente
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// núcleo do motor
	tracker := budget.NewTracker(log)
	st := store.NewEventStore(log)
	det := detector.New(detector.DefaultEpsilon)
	broker := pubsub.NewBroker(log)

	mock := provider.NewMockAdapter()
	var primary provider.Adapter
	if cfg.OddsAPIKey != "" {
		primary = provider.NewOddsAPIAdapter(cfg.OddsAPIBaseURL, cfg.OddsAPIKey, cfg.ProviderTimeout, log)
		log.Info("primary provider enabled", zap.String("provider", primary.Key()))
	} else {
		log.Warn("ODDS_API_KEY not set, running with mock provider only")
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.OddsInterval = cfg.OddsInterval
	schedCfg.ScoresInterval = cfg.ScoresInterval
	schedCfg.DiscoveryInterval = cfg.DiscoveryInterval
	schedCfg.CallTimeout = cfg.ProviderTimeout
	schedCfg.Retention = cfg.Retention

	sched := scheduler.New(schedCfg, log, primary, mock, tracker, st, det, broker)
	sched.Start(ctx)

	// hub WebSocket
	hub := ws.NewHub(log, broker, st, nil)
	go hub.Run(ctx)

	// sinks opcionais, cada um ligado só quando configurado
	if cfg.KafkaBrokers != "" {
		ks := sink.NewKafkaSink(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic, broker, log)
		defer ks.Close()
		go ks.Run(ctx)
		log.Info("kafka sink enabled", zap.String("topic", cfg.KafkaTopic))
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		rs := sink.NewRedisSink(rdb, broker, st, cfg.RedisSnapshotTTL, log)
		go rs.Run(ctx)
		log.Info("redis sink enabled", zap.String("addr", cfg.RedisAddr))
	}

	if cfg.PostgresDSN != "" {
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		repo := history.NewPostgresRepo(pg, log)
		go repo.Run(ctx, broker)
		log.Info("odds history sink enabled")
	}

	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tn, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.TelegramMoveThreshold, st, log)
		if err != nil {
			log.Error("telegram notifier init failed, continuing without it", zap.Error(err))
		} else {
			go tn.Run(ctx, broker)
			log.Info("telegram notifier enabled")
		}
	}

	// métricas e health em porta separada
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if !sched.Running() {
			return errors.New("scheduler stopped")
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("port", cfg.MetricsPort))

	// API REST + WebSocket
	api := &httpapi.API{
		Log:       log,
		Store:     st,
		Tracker:   tracker,
		Engine:    sched,
		WSHandler: hub.HandleWS,
	}
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	cancel()
	sched.Stop()
	broker.Close()
}
