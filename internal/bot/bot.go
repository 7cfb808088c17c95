package bot

import (
	"context"
	"sync"

	"github.com/gotd/td/tg"

	"github.com/pavelc4/aether-fetch/internal/middleware"
	"github.com/pavelc4/aether-fetch/internal/telegram"
)

// Bot connects the Telegram client to the router. Every update is handled
// in its own goroutine on the context passed to Run, so a download keeps
// going after the dispatcher has moved on.
type Bot struct {
	client  *telegram.Client
	router  *Router
	updates middleware.Group

	mu   sync.RWMutex
	base context.Context
}

func New(client *telegram.Client, dispatcher *tg.UpdateDispatcher, router *Router) *Bot {
	b := &Bot{
		client: client,
		router: router,
		base:   context.Background(),
	}
	b.register(dispatcher)
	return b
}

func (b *Bot) register(d *tg.UpdateDispatcher) {
	d.OnNewMessage(func(_ context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		b.spawn("OnNewMessage", func(ctx context.Context) error {
			return b.router.OnMessage(ctx, e, u)
		})
		return nil
	})
	d.OnNewChannelMessage(func(_ context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		b.spawn("OnNewChannelMessage", func(ctx context.Context) error {
			return b.router.OnChannelMessage(ctx, e, u)
		})
		return nil
	})
	d.OnBotCallbackQuery(func(_ context.Context, e tg.Entities, u *tg.UpdateBotCallbackQuery) error {
		b.spawn("OnBotCallbackQuery", func(ctx context.Context) error {
			return b.router.OnCallback(ctx, e, u)
		})
		return nil
	})
}

func (b *Bot) spawn(name string, h middleware.Handler) {
	b.mu.RLock()
	ctx := b.base
	b.mu.RUnlock()
	b.updates.Go(ctx, name, h)
}

// Run blocks until ctx is done. Handlers started meanwhile are cancelled
// with ctx; use Wait to let them finish.
func (b *Bot) Run(ctx context.Context, token string) error {
	b.mu.Lock()
	b.base = ctx
	b.mu.Unlock()

	return b.client.Start(ctx, token)
}

// Wait blocks until in-flight handlers return or ctx is done.
func (b *Bot) Wait(ctx context.Context) error {
	return b.updates.Wait(ctx)
}
