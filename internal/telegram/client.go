package telegram

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/pavelc4/aether-fetch/config"
	"github.com/pavelc4/aether-fetch/pkg/logger"
)

type Client struct {
	client *telegram.Client
	api    *tg.Client
	log    *zap.Logger
	me     atomic.Pointer[tg.User]
}

func NewClient(cfg *config.Config, dispatcher tg.UpdateDispatcher) (*Client, error) {
	if err := os.MkdirAll(cfg.SessionDir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create session dir")
	}

	log := newZapLogger()
	opts := telegram.Options{
		Logger:         log.Named("gotd"),
		SessionStorage: &session.FileStorage{Path: filepath.Join(cfg.SessionDir, "session.json")},
		UpdateHandler:  dispatcher,
		Middlewares: []telegram.Middleware{
			floodwait.NewSimpleWaiter().WithMaxRetries(5),
		},
	}

	client := telegram.NewClient(cfg.AppID, cfg.AppHash, opts)

	return &Client{
		client: client,
		api:    client.API(),
		log:    log,
	}, nil
}

// newZapLogger silences gotd unless the process runs at debug level.
func newZapLogger() *zap.Logger {
	if !logger.IsDebug() {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// Start authenticates as a bot and blocks until ctx is done.
func (c *Client) Start(ctx context.Context, botToken string) error {
	defer func() { _ = c.log.Sync() }()

	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return errors.Wrap(err, "auth status")
		}

		if !status.Authorized {
			if _, err := c.client.Auth().Bot(ctx, botToken); err != nil {
				return errors.Wrap(err, "bot login")
			}
		}

		me, err := c.client.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "get self")
		}
		c.me.Store(me)

		logger.Info("Telegram client connected", "username", me.Username, "id", me.ID)

		<-ctx.Done()
		return nil
	})
}

func (c *Client) API() *tg.Client {
	return c.api
}

// Me is nil until the client has logged in.
func (c *Client) Me() *tg.User {
	return c.me.Load()
}

// Username is the bot's username once connected, used to strip
// "/cmd@bot" suffixes.
func (c *Client) Username() string {
	me := c.me.Load()
	if me == nil {
		return ""
	}
	return me.Username
}
