package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grocery-price/internal/api"
	"grocery-price/internal/config"
	"grocery-price/internal/matcher"
	"grocery-price/internal/model"
	"grocery-price/internal/notify"
	"grocery-price/internal/pricing"
	"grocery-price/internal/ratelimit"
	"grocery-price/internal/scrape"
	"grocery-price/internal/scraper"
	"grocery-price/internal/store"

	"github.com/gin-gonic/gin"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedStores(ctx, repo, cfg.StoresFile, logger); err != nil {
		return err
	}

	// One limiter throttles every outbound fetch
	limiter := ratelimit.New(cfg.RateLimitPermits, cfg.RateLimitPeriod, cfg.RateLimitTimeout)
	client := scraper.NewClient(cfg.ScraperUserAgent, cfg.ScraperTimeout, limiter)

	priceSmart := scraper.NewPriceSmartStrategy(client, cfg.BrowserBin, 0, logger)
	defer priceSmart.Close()

	registry := scraper.NewRegistry(
		scraper.NewTNTStrategy(client, logger),
		scraper.NewSuperstoreStrategy(client, cfg.SuperstoreAPIKey, logger),
		scraper.NewWalmartStrategy(client, cfg.ScraperTimeout, logger),
		priceSmart,
	)

	dispatcher := newDispatcher(cfg, repo, logger)
	analyzer := pricing.NewAnalyzer(repo, logger)

	orch := scrape.New(scrape.Deps{
		Repo:     repo,
		Registry: registry,
		Matcher:  matcher.New(repo, logger),
		Recorder: pricing.NewRecorder(repo),
		Analyzer: analyzer,
		Notifier: dispatcher,
		Runner:   scrape.NewRunner(logger),
		Logger:   logger,
	})
	if _, err := orch.RecoverStaleJobs(ctx); err != nil {
		logger.Error("stale job recovery failed", "error", err)
	}

	scheduler := scraper.NewScheduler(orch, cfg.ScraperInterval, logger)
	if cfg.ScraperInterval > 0 {
		scheduler.Start(ctx)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.CORS(cfg.CORSOrigins))
	api.SetupRoutes(r, api.Deps{
		Repo:      repo,
		Jobs:      orch,
		Reports:   analyzer,
		Scheduler: scheduler,
		Notifier:  dispatcher,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "db", cfg.DBDriver, "stores", registry.Codes())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	// Let running scrapes reach a terminal state before closing the repository
	orch.Stop()
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func openRepository(cfg *config.Config) (store.Repository, error) {
	switch cfg.DBDriver {
	case "json":
		s, err := store.New(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open json store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		s, err := store.NewSQLite(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	}
}

// seedStores upserts the configured catalogue, keyed by store code
func seedStores(ctx context.Context, repo store.Repository, path string, logger *slog.Logger) error {
	stores, err := config.LoadStores(path)
	if err != nil {
		return err
	}
	for _, st := range stores {
		if err := repo.SaveStore(ctx, st); err != nil {
			return fmt.Errorf("seed store %s: %w", st.Code, err)
		}
	}
	if s, ok := repo.(interface{ Save() error }); ok {
		if err := s.Save(); err != nil {
			return fmt.Errorf("persist stores: %w", err)
		}
	}
	logger.Info("stores loaded", "count", len(stores), "file", path)
	return nil
}

func newDispatcher(cfg *config.Config, repo store.Repository, logger *slog.Logger) *notify.Dispatcher {
	d := notify.NewDispatcher(repo, logger)
	d.Register(model.ChannelBark, notify.NewBarkService(cfg.BarkServer))

	if tg := notify.NewTelegramService(cfg.TelegramAPIURL, cfg.TelegramBotToken); tg.IsEnabled() {
		d.Register(model.ChannelTelegram, tg)
	} else {
		logger.Warn("telegram notifications disabled: TELEGRAM_BOT_TOKEN not set")
	}

	email := notify.NewEmailService(cfg.SMTPHost, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom, cfg.SMTPPort)
	if email.IsEnabled() {
		d.Register(model.ChannelEmail, email)
	} else {
		logger.Warn("email notifications disabled: SMTP credentials not set")
	}
	return d
}
