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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"propdesk/internal/alert"
	"propdesk/internal/analytics"
	"propdesk/internal/audit"
	"propdesk/internal/auth"
	"propdesk/internal/cache"
	"propdesk/internal/config"
	cronrunner "propdesk/internal/cron"
	"propdesk/internal/db"
	"propdesk/internal/execution"
	"propdesk/internal/handler"
	"propdesk/internal/keylock"
	"propdesk/internal/ledger"
	"propdesk/internal/logger"
	"propdesk/internal/marketdata"
	"propdesk/internal/monitor"
	"propdesk/internal/repository"
	gormrepository "propdesk/internal/repository/gorm"
	memrepository "propdesk/internal/repository/memory"
	"propdesk/internal/risk"
	"propdesk/internal/service"
	"propdesk/internal/strategy"

	_ "propdesk/docs"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfgPath := os.Getenv("PD_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PD_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		log.Fatal("auth.jwt_secret is required")
	}

	var (
		store  repository.Repository
		health = &handler.HealthHandler{}
	)
	if strings.EqualFold(cfg.DB.Driver, "memory") {
		log.Warn("using in-memory repository; data is lost on exit")
		store = memrepository.New()
	} else {
		dbConn, err := db.Open(cfg.DB)
		if err != nil {
			log.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)
		if cfg.DB.AutoMigrate {
			if err := db.AutoMigrate(dbConn); err != nil {
				log.Fatal("auto-migrate failed", zap.Error(err))
			}
		}
		store = gormrepository.New(dbConn.Gorm)
		health.DB = dbConn.Gorm
	}

	cacheStore, err := cache.New(cfg.Cache)
	if err != nil {
		log.Fatal("cache init failed", zap.Error(err))
	}
	if p, ok := cacheStore.(handler.Pinger); ok {
		health.Cache = p
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	locks := keylock.New()

	settingsSvc := &service.SystemSettingsService{
		Repo:   store,
		Clock:  clock,
		Cipher: service.NewSettingsCipher(cfg.Settings.EncryptionKey, cfg.Settings.PreviousEncryptionKey),
	}
	if err := settingsSvc.EnsureDefaultSwitches(ctx); err != nil {
		log.Warn("init default system switches failed", zap.Error(err))
	}

	hub := audit.NewHub()
	sinks := audit.Multi{audit.ZapSink{Logger: logger.Named(log, "audit")}, hub}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		kafkaSink := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	var events audit.Sink = sinks

	accounts := &ledger.AccountLedger{Repo: store, Locks: locks, Clock: clock, Events: events, Logger: logger.Named(log, "accounts")}
	trades := &ledger.TradeLedger{Repo: store, Locks: locks, Clock: clock, Events: events, Logger: logger.Named(log, "trades"), Accounts: accounts}
	validator := &risk.Validator{Config: cfg.Risk, Repo: store, Clock: clock, Logger: logger.Named(log, "risk")}
	analyzer := &analytics.Analyzer{Repo: store}
	alertStore := alert.NewStore()

	dashboardSvc := &service.DashboardService{
		Repo:           store,
		Accounts:       accounts,
		Trades:         trades,
		Analyzer:       analyzer,
		Risk:           validator,
		AlertStore:     alertStore,
		Cache:          cacheStore,
		Logger:         logger.Named(log, "dashboard"),
		AccountTTL:     cfg.Cache.AccountTTL,
		PerformanceTTL: cfg.Cache.PerformanceTTL,
	}
	accounts.OnChange = dashboardSvc.Invalidate
	trades.OnChange = dashboardSvc.Invalidate

	registry := strategy.DefaultRegistry()
	strategySvc := &service.StrategyService{
		Repo:     store,
		Accounts: accounts,
		Registry: registry,
		Locks:    locks,
		Clock:    clock,
		Events:   events,
		Logger:   logger.Named(log, "strategies"),
		Defaults: cfg.StrategyDefaults,
		Symbols:  cfg.StrategyEngine.Symbols,
	}

	feed, err := marketdata.New(cfg.MarketData, cacheStore, clock)
	if err != nil {
		log.Fatal("market data init failed", zap.Error(err))
	}
	gateway, err := execution.New(cfg.Execution, cfg.Risk.PipSize)
	if err != nil {
		log.Fatal("execution gateway init failed", zap.Error(err))
	}

	engine := &strategy.Engine{
		Repo:             store,
		Accounts:         accounts,
		Trades:           trades,
		Risk:             validator,
		Feed:             feed,
		Gateway:          gateway,
		Registry:         registry,
		Clock:            clock,
		Events:           events,
		Logger:           logger.Named(log, "engine"),
		Interval:         cfg.StrategyEngine.TickInterval,
		FeedTimeout:      cfg.StrategyEngine.FeedTimeout,
		ExecTimeout:      cfg.StrategyEngine.ExecTimeout,
		StrategyDefaults: cfg.StrategyDefaults,
		Symbols:          cfg.StrategyEngine.Symbols,
		Enabled:          settingsSvc.Switch(service.FeatureStrategyEngine, true),
	}

	generator := &alert.Generator{
		Repo:       store,
		Analyzer:   analyzer,
		Store:      alertStore,
		Notifier:   alert.NewNotifier(settingsSvc.NotifyConfig(ctx, cfg.Notify)),
		Events:     events,
		Thresholds: analytics.Thresholds{MinWinRate: cfg.Performance.MinWinRate, MinProfitFactor: cfg.Performance.MinProfitFactor, MaxDrawdown: cfg.Performance.MaxDrawdown, MinSharpe: cfg.Performance.MinSharpe},
		MinTrades:  cfg.Performance.MinTrades,
		Clock:      clock,
		Logger:     logger.Named(log, "alerts"),
		Timeout:    cfg.Notify.Timeout,
		Notify:     settingsSvc.Switch(service.FeatureNotifier, true),
	}

	scheduler := monitor.NewScheduler(cfg.Monitoring, monitor.Deps{
		Performance: &strategy.PerformanceUpdater{Repo: store, Locks: locks, Clock: clock, Logger: logger.Named(log, "performance")},
		Risk:        &monitor.RiskWatcher{Accounts: accounts, Risk: validator, AutoFail: cfg.Monitoring.AutoFailOnDrawdown, Logger: logger.Named(log, "risk-watch")},
		Alerts:      generator,
		Housekeeper: &monitor.Housekeeper{
			Repo:               store,
			Alerts:             alertStore,
			Clock:              clock,
			Logger:             logger.Named(log, "cleanup"),
			CancelledRetention: cfg.Monitoring.CancelledRetention,
			SnapshotRetention:  cfg.Monitoring.SnapshotRetention,
		},
	}, clock, logger.Named(log, "monitor"))
	scheduler.Enabled = settingsSvc.Switch(service.FeatureMonitoring, true)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handler.RequestID())
	r.Use(handler.CORS(cfg.Server.CORSOrigin))
	r.Use(handler.AccessLog(logger.Named(log, "http")))
	jwt := auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), TokenTTL: cfg.Auth.TokenTTL, Issuer: cfg.Auth.Issuer}
	r.Use(auth.Middleware(jwt))
	r.Use(handler.WriteAudit(events, log))

	health.Register(r)
	handler.RegisterDocs(r)
	authHandler := &handler.AuthHandler{Service: &auth.Service{
		Repo:       store,
		JWT:        jwt,
		Events:     events,
		Logger:     logger.Named(log, "auth"),
		BcryptCost: cfg.Auth.BcryptCost,
	}}
	authHandler.Register(r)
	accountHandler := &handler.AccountHandler{Accounts: accounts, Risk: validator}
	accountHandler.Register(r)
	tradeHandler := &handler.TradeHandler{Trades: trades, Risk: validator}
	tradeHandler.Register(r)
	strategyHandler := &handler.StrategyHandler{Service: strategySvc}
	strategyHandler.Register(r)
	dashboardHandler := &handler.DashboardHandler{Service: dashboardSvc}
	dashboardHandler.Register(r)
	settingsHandler := &handler.SettingsHandler{Service: settingsSvc}
	settingsHandler.Register(r)
	streamHandler := &handler.StreamHandler{Hub: hub, Accounts: accounts, OriginPatterns: originPatterns(cfg.Server.CORSOrigin), Logger: logger.Named(log, "stream")}
	streamHandler.Register(r)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: r,
	}

	var cronRunner *cronrunner.Runner
	if cfg.Cron.Enabled {
		cronRunner = cronrunner.New(log, ctx)
		snapshots := &service.SnapshotService{Repo: store, Clock: clock, Logger: logger.Named(log, "snapshots")}
		if _, err := cronRunner.Add("daily_snapshot", cfg.Cron.DailySnapshot, func(ctx context.Context) {
			if err := snapshots.TakeDaily(ctx); err != nil {
				log.Warn("daily snapshot failed", zap.Error(err))
			}
		}); err != nil {
			log.Fatal("cron schedule invalid", zap.String("spec", cfg.Cron.DailySnapshot), zap.Error(err))
		}
		cronRunner.Start()
	}

	if cfg.StrategyEngine.Enabled {
		engine.Start(ctx)
	}
	if cfg.Monitoring.Enabled {
		scheduler.Start(ctx)
	}

	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	engine.Stop()
	scheduler.Stop()
	if cronRunner != nil {
		cronRunner.Stop()
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", zap.Error(err))
	}
}

func originPatterns(origin string) []string {
	origin = strings.TrimSpace(origin)
	if origin == "" || origin == "*" {
		return []string{"*"}
	}
	origin = strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return []string{origin}
}
