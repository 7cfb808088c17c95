package handler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gotd/td/tg"

	"github.com/pavelc4/aether-fetch/config"
	"github.com/pavelc4/aether-fetch/internal/cache"
	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/internal/provider"
	"github.com/pavelc4/aether-fetch/internal/ratelimit"
	"github.com/pavelc4/aether-fetch/internal/supervisor"
	"github.com/pavelc4/aether-fetch/internal/telegram"
	"github.com/pavelc4/aether-fetch/pkg/logger"
)

const (
	probeTimeout    = 45 * time.Second
	maxFilenameLen  = 100
	expiredMenuText = "This menu has expired. Send the link again."
)

type DownloadHandler struct {
	cfg       *config.Config
	msg       Messenger
	uploader  Uploader
	prober    Prober
	sup       *supervisor.Supervisor
	limiter   *ratelimit.Limiter
	menus     *SelectionStore
	sent      *cache.Cache
	editEvery time.Duration
}

func NewDownloadHandler(
	cfg *config.Config,
	m Messenger,
	up Uploader,
	prober Prober,
	sup *supervisor.Supervisor,
	limiter *ratelimit.Limiter,
	sent *cache.Cache,
) *DownloadHandler {
	return &DownloadHandler{
		cfg:       cfg,
		msg:       m,
		uploader:  up,
		prober:    prober,
		sup:       sup,
		limiter:   limiter,
		menus:     NewSelectionStore(DefaultSelectionTTL),
		sent:      sent,
		editEvery: telegram.DefaultEditInterval,
	}
}

// Handle starts a download for rawURL. An empty quality on a YouTube link
// shows the quality menu instead; otherwise it means 360p.
func (h *DownloadHandler) Handle(ctx context.Context, e tg.Entities, msg *tg.Message, rawURL string, quality provider.Quality) error {
	peer, err := resolvePeer(msg.PeerID, e)
	if err != nil {
		return fmt.Errorf("failed to resolve peer: %w", err)
	}
	userID := getSenderID(msg)

	if quality == "" && platform.Classify(rawURL) == platform.YouTube {
		return h.showMenu(ctx, peer, msg.ID, userID, rawURL)
	}
	if quality == "" {
		quality = provider.Quality360p
	}

	h.runDownload(ctx, peer, msg.ID, 0, userID, rawURL, quality)
	return nil
}

func (h *DownloadHandler) showMenu(ctx context.Context, peer tg.InputPeerClass, replyTo int, userID int64, rawURL string) error {
	statusID, err := h.msg.Reply(ctx, peer, replyTo, "🔎 Fetching video info...", nil)
	if err != nil {
		return err
	}

	info := h.probe(ctx, rawURL)
	token := h.menus.Put(Selection{
		UserID:  userID,
		URL:     rawURL,
		Peer:    peer,
		ReplyTo: replyTo,
		Info:    info,
	})
	return h.msg.Edit(ctx, peer, statusID, menuText(info, h.cfg.TelegramFileLimit), menuMarkup(token))
}

// probe returns nil when metadata is unavailable; the menu still works
// without estimates.
func (h *DownloadHandler) probe(ctx context.Context, rawURL string) *provider.Info {
	if h.prober == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	info, err := h.prober.Probe(ctx, rawURL)
	if err != nil {
		logger.Warn("Probe failed", "url", rawURL, "error", err)
		return nil
	}
	return info
}

func (h *DownloadHandler) HandleCallback(ctx context.Context, u *tg.UpdateBotCallbackQuery) error {
	cb, err := ParseCallback(u.Data)
	if err != nil {
		return h.msg.Answer(ctx, u.QueryID, "Unknown action.", false)
	}

	switch cb.Action {
	case ActionCancel:
		return h.cancelTask(ctx, u, cb.Key)

	case ActionInfo:
		sel, ok := h.menus.Peek(cb.Key, u.UserID)
		if !ok {
			return h.msg.Answer(ctx, u.QueryID, expiredMenuText, true)
		}
		return h.msg.Answer(ctx, u.QueryID, infoText(sel.Info), true)

	case ActionRefresh:
		sel, ok := h.menus.Peek(cb.Key, u.UserID)
		if !ok {
			return h.msg.Answer(ctx, u.QueryID, expiredMenuText, true)
		}
		if err := h.msg.Answer(ctx, u.QueryID, "Refreshing...", false); err != nil {
			logger.Warn("Callback answer failed", "error", err)
		}
		info := h.probe(ctx, sel.URL)
		if info == nil {
			info = sel.Info
		}
		h.menus.Update(cb.Key, u.UserID, info)
		return h.msg.Edit(ctx, sel.Peer, u.MsgID, menuText(info, h.cfg.TelegramFileLimit), menuMarkup(cb.Key))

	case ActionClose:
		sel, ok := h.menus.Take(cb.Key, u.UserID)
		if !ok {
			return h.msg.Answer(ctx, u.QueryID, expiredMenuText, true)
		}
		if err := h.msg.Answer(ctx, u.QueryID, "", false); err != nil {
			logger.Warn("Callback answer failed", "error", err)
		}
		return h.msg.Delete(ctx, sel.Peer, u.MsgID)

	case ActionQuality:
		sel, ok := h.menus.Take(cb.Key, u.UserID)
		if !ok {
			return h.msg.Answer(ctx, u.QueryID, expiredMenuText, true)
		}
		if err := h.msg.Answer(ctx, u.QueryID, cb.Quality.Label(), false); err != nil {
			logger.Warn("Callback answer failed", "error", err)
		}
		h.runDownload(ctx, sel.Peer, sel.ReplyTo, u.MsgID, u.UserID, sel.URL, cb.Quality)
	}
	return nil
}

func (h *DownloadHandler) cancelTask(ctx context.Context, u *tg.UpdateBotCallbackQuery, taskID string) error {
	t, ok := h.sup.Get(taskID)
	if !ok || t.Snapshot().UserID != u.UserID {
		return h.msg.Answer(ctx, u.QueryID, "Nothing to cancel.", false)
	}
	h.sup.Cancel(taskID)
	return h.msg.Answer(ctx, u.QueryID, "Cancelling...", false)
}

func (h *DownloadHandler) HandleStatus(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	peer, err := resolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}
	userID := getSenderID(msg)

	maxRequests, period := h.limiter.Limits()
	text := statusText(h.limiter.Status(userID), maxRequests, period, h.sup.ActiveFor(userID), h.cfg.MaxDownloadsPerUser)
	_, err = h.msg.Reply(ctx, peer, msg.ID, text, nil)
	return err
}

func (h *DownloadHandler) HandleCancel(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	peer, err := resolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}

	text := "Nothing to cancel."
	if n := h.sup.CancelUser(getSenderID(msg)); n > 0 {
		text = fmt.Sprintf("🛑 Cancelling %d download(s).", n)
	}
	_, err = h.msg.Reply(ctx, peer, msg.ID, text, nil)
	return err
}

// runDownload submits the task, mirrors its progress into a status message
// and delivers the artifact. statusID is reused when non-zero.
func (h *DownloadHandler) runDownload(ctx context.Context, peer tg.InputPeerClass, replyTo, statusID int, userID int64, rawURL string, quality provider.Quality) {
	key := cache.Key(rawURL, quality)
	if h.sendCached(ctx, peer, replyTo, statusID, userID, key) {
		return
	}

	task := h.sup.Submit(ctx, userID, rawURL, quality)
	markup := cancelMarkup(task.ID())

	edit := func(m *tg.ReplyInlineMarkup) telegram.EditFunc {
		return func(ctx context.Context, text string) error {
			if statusID == 0 {
				return nil
			}
			return h.msg.Edit(ctx, peer, statusID, text, m)
		}
	}
	editor := telegram.NewProgressEditor(edit(markup), h.editEvery)

	first := progressText(task.Snapshot())
	if statusID == 0 {
		id, err := h.msg.Reply(ctx, peer, replyTo, first, markup)
		if err != nil {
			logger.Error("Failed to send status message", "error", err)
		}
		statusID = id
		editor.Mark(first)
	} else if err := editor.Force(ctx, first); err != nil {
		logger.Warn("Failed to edit status message", "error", err)
	}

	for snap := range task.Updates() {
		if snap.State.IsTerminal() {
			break
		}
		editor.Update(ctx, progressText(snap))
	}
	<-task.Done()

	final := telegram.NewProgressEditor(edit(nil), h.editEvery)
	art, fail := task.Result()
	if fail != nil {
		if err := final.Force(ctx, failureText(fail)); err != nil {
			logger.Warn("Failed to edit status message", "error", err)
		}
		return
	}
	defer func() {
		if err := art.Cleanup(); err != nil {
			logger.Warn("Failed to remove work dir", "dir", art.Dir, "error", err)
		}
	}()

	elapsed := task.Snapshot().Elapsed()
	doc, err := h.deliver(ctx, peer, replyTo, art, elapsed, final)
	if err != nil {
		logger.Error("Delivery failed", "task", task.ID(), "error", err)
		if err := final.Force(ctx, "❌ Could not send the file. Please try again."); err != nil {
			logger.Warn("Failed to edit status message", "error", err)
		}
		return
	}

	if doc != nil && h.sent != nil {
		h.sent.Set(key, cache.CachedMedia{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
			MimeType:      art.MimeType,
			Title:         art.Title,
			Size:          art.SizeBytes,
			Platform:      art.Platform,
			Quality:       art.Quality,
		})
	}

	if err := h.msg.Delete(ctx, peer, statusID); err != nil {
		logger.Warn("Failed to delete status message", "error", err)
	}
}

// sendCached answers from the delivery cache. A cached answer still counts
// against the rate limit. It reports false when the caller should download.
func (h *DownloadHandler) sendCached(ctx context.Context, peer tg.InputPeerClass, replyTo, statusID int, userID int64, key string) bool {
	if h.sent == nil {
		return false
	}
	hit, ok := h.sent.Get(key)
	if !ok {
		return false
	}

	if d := h.limiter.Check(userID); !d.Allowed {
		text := failureText(supervisor.RateLimited(d.RetryAfter))
		var err error
		if statusID != 0 {
			err = h.msg.Edit(ctx, peer, statusID, text, nil)
		} else {
			_, err = h.msg.Reply(ctx, peer, replyTo, text, nil)
		}
		if err != nil {
			logger.Warn("Failed to report rate limit", "error", err)
		}
		return true
	}

	caption := captionText(&supervisor.Artifact{
		Title:     hit.Title,
		Platform:  hit.Platform,
		Quality:   hit.Quality,
		SizeBytes: hit.Size,
	}, 0)
	doc := &tg.InputDocument{ID: hit.ID, AccessHash: hit.AccessHash, FileReference: hit.FileReference}
	if err := h.msg.SendDocument(ctx, peer, replyTo, doc, caption); err != nil {
		// Usually an expired file reference.
		logger.Warn("Cached media rejected, downloading again", "key", key, "error", err)
		h.sent.Delete(key)
		return false
	}

	logger.Info("Served from cache", "key", key, "user", userID)
	if statusID != 0 {
		if err := h.msg.Delete(ctx, peer, statusID); err != nil {
			logger.Warn("Failed to delete menu message", "error", err)
		}
	}
	return true
}

func (h *DownloadHandler) deliver(ctx context.Context, peer tg.InputPeerClass, replyTo int, art *supervisor.Artifact, elapsed time.Duration, editor *telegram.ProgressEditor) (*tg.Document, error) {
	if err := editor.Force(ctx, uploadText(0, art.SizeBytes)); err != nil {
		logger.Warn("Failed to edit status message", "error", err)
	}

	file, err := h.uploader.Upload(ctx, art.Path, func(uploaded, total int64) {
		editor.Update(ctx, uploadText(uploaded, total))
	})
	if err != nil {
		return nil, err
	}

	return h.msg.SendMedia(ctx, peer, replyTo, telegram.Media{
		File:     file,
		Name:     mediaFilename(art),
		MimeType: art.MimeType,
		Audio:    art.MediaKind == provider.MediaAudio,
		Title:    art.Title,
		Caption:  captionText(art, elapsed),
	})
}

func mediaFilename(art *supervisor.Artifact) string {
	ext := filepath.Ext(art.Path)
	if art.Title == "" {
		return filepath.Base(art.Path)
	}
	return platform.SanitizeFilename(art.Title, maxFilenameLen) + ext
}

func menuMarkup(token string) *tg.ReplyInlineMarkup {
	button := func(text string, cb Callback) tg.KeyboardButtonClass {
		return &tg.KeyboardButtonCallback{Text: text, Data: cb.Encode()}
	}
	quality := func(q provider.Quality) tg.KeyboardButtonClass {
		return button(q.Label(), Callback{Action: ActionQuality, Key: token, Quality: q})
	}

	return &tg.ReplyInlineMarkup{
		Rows: []tg.KeyboardButtonRow{
			{Buttons: []tg.KeyboardButtonClass{quality(provider.Quality360p), quality(provider.Quality480p)}},
			{Buttons: []tg.KeyboardButtonClass{quality(provider.QualityAudio)}},
			{Buttons: []tg.KeyboardButtonClass{
				button("ℹ️ Info", Callback{Action: ActionInfo, Key: token}),
				button("🔄 Refresh", Callback{Action: ActionRefresh, Key: token}),
				button("✖️ Close", Callback{Action: ActionClose, Key: token}),
			}},
		},
	}
}

func cancelMarkup(taskID string) *tg.ReplyInlineMarkup {
	return &tg.ReplyInlineMarkup{
		Rows: []tg.KeyboardButtonRow{
			{Buttons: []tg.KeyboardButtonClass{
				&tg.KeyboardButtonCallback{
					Text: "✖️ Cancel",
					Data: Callback{Action: ActionCancel, Key: taskID}.Encode(),
				},
			}},
		},
	}
}
