package bot

import (
	"context"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/pavelc4/aether-fetch/internal/handler"
	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/internal/provider"
	"github.com/pavelc4/aether-fetch/pkg/logger"
)

// Command is a parsed "/name@bot arg..." message.
type Command struct {
	Name string
	Args []string
}

// parseCommand splits a bot command. Commands addressed to another bot
// ("/start@other_bot") are not ours and report false.
func parseCommand(text, botUsername string) (Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Command{}, false
	}

	name := strings.TrimPrefix(fields[0], "/")
	if idx := strings.Index(name, "@"); idx != -1 {
		target := name[idx+1:]
		name = name[:idx]
		if botUsername != "" && !strings.EqualFold(target, botUsername) {
			return Command{}, false
		}
	}
	if name == "" {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(name), Args: fields[1:]}, true
}

type Router struct {
	download *handler.DownloadHandler
	admin    *handler.AdminHandler
	basic    *handler.BasicHandler
	username func() string
}

func NewRouter(dl *handler.DownloadHandler, adm *handler.AdminHandler, basic *handler.BasicHandler, username func() string) *Router {
	return &Router{
		download: dl,
		admin:    adm,
		basic:    basic,
		username: username,
	}
}

// OnMessage is the main entry point for updates
func (r *Router) OnMessage(ctx context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
	msg, ok := update.Message.(*tg.Message)
	if !ok {
		return nil
	}
	return r.HandleMessage(ctx, e, msg)
}

func (r *Router) OnChannelMessage(ctx context.Context, e tg.Entities, update *tg.UpdateNewChannelMessage) error {
	msg, ok := update.Message.(*tg.Message)
	if !ok {
		return nil
	}
	return r.HandleMessage(ctx, e, msg)
}

func (r *Router) OnCallback(ctx context.Context, e tg.Entities, update *tg.UpdateBotCallbackQuery) error {
	return r.download.HandleCallback(ctx, update)
}

func (r *Router) HandleMessage(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	if msg.Out {
		return nil
	}
	logger.Debug("HandleMessage called", "id", msg.ID, "text", msg.Message)

	username := ""
	if r.username != nil {
		username = r.username()
	}

	cmd, ok := parseCommand(msg.Message, username)
	if !ok {
		url := platform.ExtractURL(msg.Message)
		if url == "" || platform.Classify(url) == platform.Unknown {
			return nil
		}
		return r.download.Handle(ctx, e, msg, url, "")
	}

	switch cmd.Name {
	case "start":
		return r.basic.HandleStart(ctx, e, msg)
	case "help":
		return r.basic.HandleHelp(ctx, e, msg)
	case "status":
		return r.download.HandleStatus(ctx, e, msg)
	case "cancel":
		return r.download.HandleCancel(ctx, e, msg)
	case "stats":
		return r.admin.HandleStats(ctx, e, msg)
	case "reset":
		return r.admin.HandleReset(ctx, e, msg, cmd.Args)
	case "dl", "video", "mp":
		url := firstURL(cmd.Args)
		if url == "" {
			return r.basic.HandleUsage(ctx, e, msg, cmd.Name)
		}
		var quality provider.Quality
		if cmd.Name == "mp" {
			quality = provider.QualityAudio
		}
		return r.download.Handle(ctx, e, msg, url, quality)
	default:
		return r.basic.HandleUnknown(ctx, e, msg)
	}
}

func firstURL(args []string) string {
	return platform.ExtractURL(strings.Join(args, " "))
}
