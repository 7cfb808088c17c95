package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gotd/td/tg"

	"github.com/pavelc4/aether-fetch/config"
	"github.com/pavelc4/aether-fetch/internal/ratelimit"
	"github.com/pavelc4/aether-fetch/internal/resource"
	"github.com/pavelc4/aether-fetch/internal/stats"
	"github.com/pavelc4/aether-fetch/internal/supervisor"
	"github.com/pavelc4/aether-fetch/pkg/logger"
)

type AdminHandler struct {
	cfg     *config.Config
	msg     Messenger
	sup     *supervisor.Supervisor
	limiter *ratelimit.Limiter
	slots   *resource.Manager
	stats   *stats.BotStats
	system  *stats.SystemProbe
}

func NewAdminHandler(
	cfg *config.Config,
	m Messenger,
	sup *supervisor.Supervisor,
	limiter *ratelimit.Limiter,
	slots *resource.Manager,
	botStats *stats.BotStats,
	system *stats.SystemProbe,
) *AdminHandler {
	return &AdminHandler{
		cfg:     cfg,
		msg:     m,
		sup:     sup,
		limiter: limiter,
		slots:   slots,
		stats:   botStats,
		system:  system,
	}
}

func (h *AdminHandler) HandleStats(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	if !h.cfg.IsAdmin(getSenderID(msg)) {
		return nil // Ignore non-admins
	}
	peer, err := resolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}

	v := statsView{
		System: h.system.Collect(ctx),
		Slots:  h.slots.Snapshot(),
		Bot:    h.stats.Snapshot(),
		Today:  h.stats.Period("today"),
		Week:   h.stats.Period("week"),
		Month:  h.stats.Period("month"),
		Active: h.sup.Active(),
		Rate:   h.limiter.Tracked(),
	}
	_, err = h.msg.Reply(ctx, peer, msg.ID, statsText(v), nil)
	return err
}

// HandleReset clears the rate window of the user named in "/reset <id>".
func (h *AdminHandler) HandleReset(ctx context.Context, e tg.Entities, msg *tg.Message, args []string) error {
	adminID := getSenderID(msg)
	if !h.cfg.IsAdmin(adminID) {
		return nil
	}
	peer, err := resolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		_, err = h.msg.Reply(ctx, peer, msg.ID, "Usage: <code>/reset &lt;user id&gt;</code>", nil)
		return err
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		_, err = h.msg.Reply(ctx, peer, msg.ID, "⚠️ Not a valid user ID.", nil)
		return err
	}

	h.limiter.Reset(userID)
	logger.Info("Rate limit reset", "user", userID, "admin", adminID)

	_, err = h.msg.Reply(ctx, peer, msg.ID, fmt.Sprintf("✅ Rate limit reset for <code>%d</code>.", userID), nil)
	return err
}
