package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"golang.org/x/sync/errgroup"

	"github.com/pavelc4/aether-fetch/config"
	"github.com/pavelc4/aether-fetch/internal/bot"
	"github.com/pavelc4/aether-fetch/internal/cache"
	"github.com/pavelc4/aether-fetch/internal/handler"
	"github.com/pavelc4/aether-fetch/internal/metrics"
	"github.com/pavelc4/aether-fetch/internal/provider"
	"github.com/pavelc4/aether-fetch/internal/ratelimit"
	"github.com/pavelc4/aether-fetch/internal/resource"
	"github.com/pavelc4/aether-fetch/internal/stats"
	"github.com/pavelc4/aether-fetch/internal/supervisor"
	"github.com/pavelc4/aether-fetch/internal/telegram"
	"github.com/pavelc4/aether-fetch/pkg/logger"
	"github.com/pavelc4/aether-fetch/pkg/utils"
)

const shutdownGrace = 15 * time.Second

// Core is the download machinery shared by the bot and the fetch command.
type Core struct {
	Cfg        *config.Config
	Limiter    *ratelimit.Limiter
	Slots      *resource.Manager
	YtDlp      *provider.YtDlp
	Supervisor *supervisor.Supervisor
	Metrics    *metrics.Metrics
	Stats      *stats.BotStats
}

func NewCore(cfg *config.Config) *Core {
	limiter := ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitPeriod)
	slots := resource.NewManager(cfg.MaxConcurrentDownloads, cfg.MaxDownloadsPerUser)

	m := metrics.New()
	slots.SetObserver(m)

	ytdlp := provider.NewYtDlp(provider.YtDlpOptions{
		Path:       cfg.YtDlpPath,
		Cookies:    cfg.YtDlpCookies,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	})
	registry := provider.NewRegistry(
		provider.NewTikWM(provider.TikWMOptions{MaxRetries: cfg.MaxRetries}),
		ytdlp,
	)

	botStats := stats.New()
	sup := supervisor.New(
		supervisor.Config{
			MaxFileSize:     cfg.MaxFileSize,
			TransportLimit:  cfg.TelegramFileLimit,
			DownloadTimeout: cfg.DownloadTimeout,
			WorkDir:         cfg.DownloadDir,
		},
		limiter,
		slots,
		registry,
		supervisor.WithRecorder(m),
		supervisor.WithRecorder(botStats),
	)

	return &Core{
		Cfg:        cfg,
		Limiter:    limiter,
		Slots:      slots,
		YtDlp:      ytdlp,
		Supervisor: sup,
		Metrics:    m,
		Stats:      botStats,
	}
}

type App struct {
	core       *Core
	bot        *bot.Bot
	sweepEvery time.Duration
}

func New(cfg *config.Config) (*App, error) {
	if err := cfg.RequireTelegram(); err != nil {
		return nil, err
	}

	core := NewCore(cfg)
	a := &App{core: core, sweepEvery: config.DefaultRateWindowSweep}

	dispatcher := tg.NewUpdateDispatcher()
	client, err := telegram.NewClient(cfg, dispatcher)
	if err != nil {
		return nil, err
	}

	sender := telegram.NewSender(client.API())
	dlHandler := handler.NewDownloadHandler(cfg, sender, telegram.NewUploader(client.API()), core.YtDlp, core.Supervisor, core.Limiter, cache.New(cache.DefaultTTL, cache.DefaultMaxEntries))
	adminHandler := handler.NewAdminHandler(cfg, sender, core.Supervisor, core.Limiter, core.Slots, core.Stats, stats.NewSystemProbe(cfg.DownloadDir))
	basicHandler := handler.NewBasicHandler(sender)

	router := bot.NewRouter(dlHandler, adminHandler, basicHandler, client.Username)
	a.bot = bot.New(client, &dispatcher, router)

	logger.Info("Application initialized successfully",
		"max_downloads", cfg.MaxConcurrentDownloads,
		"per_user", cfg.MaxDownloadsPerUser,
		"rate", cfg.RateLimitRequests,
		"period", cfg.RateLimitPeriod,
	)
	return a, nil
}

// Start runs the bot, the metrics server and the rate window sweeper until
// ctx is done or one of them fails.
func (a *App) Start(ctx context.Context) error {
	cfg := a.core.Cfg

	if n := utils.CleanupStaleDirs(ctx, cfg.DownloadDir); n > 0 {
		logger.Info("Removed stale work dirs", "count", n)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.bot.Run(gctx, cfg.BotToken)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return a.core.Metrics.Serve(gctx, cfg.MetricsAddr)
		})
	}
	g.Go(func() error {
		return a.core.Limiter.Run(gctx, a.sweepEvery, config.DefaultRateWindowMaxIdle)
	})

	err := g.Wait()

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if werr := a.bot.Wait(waitCtx); werr != nil {
		logger.Warn("Handlers still running at shutdown", "error", werr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
