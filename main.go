package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"signal-engine/internal/api"
	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/gateway"
	"signal-engine/internal/monitor"
	"signal-engine/internal/notify"
	"signal-engine/internal/order"
	"signal-engine/internal/reconciliation"
	"signal-engine/internal/risk"
	"signal-engine/internal/scheduler"
	sig "signal-engine/internal/signal"
	"signal-engine/internal/strategy"
	"signal-engine/pkg/cache"
	"signal-engine/pkg/config"
	"signal-engine/pkg/crypto"
	"signal-engine/pkg/db"
	"signal-engine/pkg/exchanges/upbit"
	"signal-engine/pkg/i18n"
	"signal-engine/pkg/logger"
	market "signal-engine/pkg/market/upbit"
)

func main() {
	genKey := flag.Bool("gen-key", false, "print a new base64 MASTER_ENCRYPTION_KEY and exit")
	operatorToken := flag.String("operator-token", "", "print a 24h operator token for the given name and exit")
	flag.Parse()

	boot := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Msgf(i18n.M().ConfigLoadFailed, err)
	}

	switch {
	case *genKey:
		key, err := crypto.GenerateKey()
		if err != nil {
			boot.Fatal().Err(err).Msg("generate key")
		}
		fmt.Println(key)
		return
	case *operatorToken != "":
		token, err := api.GenerateOperatorToken(*operatorToken, cfg.OperatorSecret, time.Now().Add(24*time.Hour))
		if err != nil {
			boot.Fatal().Err(err).Msg("operator token")
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg); err != nil {
		boot.Fatal().Err(err).Msg("signal engine stopped")
	}
}

func run(cfg *config.Config) error {
	i18n.SetLanguage(i18n.Language(cfg.Language))
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	msg := i18n.M()

	log.Info().Msg(msg.Starting)
	log.Info().Msgf(msg.ConfigLoaded, cfg.Port)
	log.Info().Msgf(msg.UsingDBPath, cfg.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf(msg.DBInitFailed, err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		return fmt.Errorf(msg.DBMigrationsFailed, err)
	}

	keyring, err := crypto.KeyringFromEnv(cfg.DryRun)
	if err != nil {
		return fmt.Errorf(msg.KeyringFailed, err)
	}

	if cfg.BotsFile != "" {
		n, err := syncBots(ctx, database, keyring, cfg.BotsFile)
		if err != nil {
			log.Error().Msgf(msg.BotsSyncFailed, cfg.BotsFile, err)
		} else {
			log.Info().Msgf(msg.BotsSynced, n, cfg.BotsFile)
		}
	}

	// Observability
	instanceID := monitor.InstanceID()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitor.NewMetrics(registry, instanceID)
	bus := events.NewBus()

	var sink monitor.AlertSink = notify.LogSink{Log: log}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("telegram disabled")
		} else {
			sink = tg
		}
	}
	(&monitor.Monitor{Bus: bus, Sink: sink, Log: logger.Component(log, "monitor")}).Start(ctx)

	// Market data
	candles := market.NewClient(cfg.UpbitAPIURL, float64(cfg.RequestsPerSec))
	var stream *market.StreamClient
	if cfg.StreamTickers {
		stream = market.NewStreamClient(cfg.UpbitWSURL, log)
	}
	prices := market.NewPriceSource(candles, stream, cache.NewPriceCache(), 10*time.Second, log)
	if active, err := database.FindActiveUsers(ctx, time.Now()); err == nil {
		go prices.Run(ctx, tradedMarkets(active))
	} else {
		log.Warn().Err(err).Msg("ticker stream not started")
	}

	// Exchange gateways
	venue := "upbit"
	factory := gateway.UpbitFactory(upbit.Config{
		BaseURL:        cfg.UpbitAPIURL,
		RequestsPerSec: float64(cfg.RequestsPerSec),
		Timeout:        cfg.ExchangeTimeout,
	}, log)
	if cfg.DryRun {
		venue = "upbit-simulated"
		factory = gateway.SimulatorFactory(gateway.SimulatorConfig{})
		log.Warn().Msg(msg.DryRunMode)
	}
	gateways := gateway.NewManager(database, keyring, factory, gateway.DefaultConfig())
	gateways.Start(ctx)
	defer gateways.Stop()

	// Decision pipeline
	detector := sig.NewDetector(database, cache.NewKeyedMutex(), sig.Config{}, logger.Component(log, "detector"))
	strategies := strategy.NewRegistry()
	coordinator := order.NewCoordinator(gateways, database, bus, metrics, cfg.ExchangeTimeout, log)
	riskMgr := risk.NewManager(gateways, prices, database, coordinator, detector, bus, metrics, cfg.ExchangeTimeout, log)
	recon := reconciliation.NewService(database, gateways, bus, metrics, cfg.WorkerCount, cfg.ExchangeTimeout, log)

	signalPass := &engine.SignalPass{
		Users:      database,
		Builder:    sig.NewBuilder(candles, cfg.CandleUnit, cfg.CandleCount),
		Detector:   detector,
		Strategies: strategies,
		Orders:     coordinator,
		Prices:     prices,
		Bus:        bus,
		Metrics:    metrics,
		Workers:    cfg.WorkerCount,
		Timeout:    cfg.ExchangeTimeout,
		Log:        logger.Component(log, "signal"),
	}
	if cfg.InfluxURL != "" {
		rec := monitor.NewInfluxRecorder(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		defer rec.Close()
		go func() {
			for err := range rec.Errors() {
				log.Warn().Err(err).Msg("influx write failed")
			}
		}()
		signalPass.Recorder = rec
	}
	riskPass := &engine.RiskPass{Users: database, Risk: riskMgr, Workers: cfg.WorkerCount}

	jobs := engine.Jobs(engine.Intervals{
		Reconcile: cfg.ReconcileInterval,
		Risk:      cfg.RiskInterval,
		Signal:    cfg.SignalInterval,
	}, recon, riskPass, signalPass)
	sched := scheduler.New(metrics, log, jobs...)

	engService := engine.NewImpl(engine.Config{
		Detector:   detector,
		Store:      database,
		Strategies: strategies,
		Jobs:       sched,
		Gateways:   gateways,
		Bus:        bus,
		Metrics:    metrics,
		Meta: engine.SystemStatus{
			InstanceID: instanceID,
			DryRun:     cfg.DryRun,
			Venue:      venue,
			Version:    buildVersion(),
		},
	})

	// Servers
	server := api.NewServer(engService, bus, registry, cfg.OperatorSecret, log)
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		log.Info().Msgf(msg.ServerListening, cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf(msg.APIServerError, err)
		}
	}()

	health := api.NewHealthServer(log)
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("grpc health listen: %w", err)
		}
		go func() {
			if err := health.Serve(ctx, lis); err != nil {
				errCh <- fmt.Errorf("grpc health: %w", err)
			}
		}()
	}

	sched.Start(ctx)
	health.SetServing(true)
	log.Info().Msgf(msg.SchedulerStarted, cfg.ReconcileInterval, cfg.RiskInterval, cfg.SignalInterval)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info().Msg(msg.ShuttingDown)
	health.SetServing(false)
	stop()
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	return runErr
}

func syncBots(ctx context.Context, database *db.Database, kr *crypto.Keyring, path string) (int, error) {
	bots, err := strategy.LoadBots(path)
	if err != nil {
		return 0, err
	}
	return len(bots), strategy.SyncBots(ctx, database, kr, bots)
}

func tradedMarkets(users []db.ActiveUser) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, u := range users {
		for _, m := range u.Setting.Markets {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				out = append(out, m)
			}
		}
	}
	return out
}

func buildVersion() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "dev"
}
