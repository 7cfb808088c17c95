package handler

import (
	"context"

	"github.com/gotd/td/tg"
)

type BasicHandler struct {
	msg Messenger
}

func NewBasicHandler(m Messenger) *BasicHandler {
	return &BasicHandler{msg: m}
}

func (h *BasicHandler) HandleStart(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	peer, err := resolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}
	_, err = h.msg.Reply(ctx, peer, 0, startText, nil)
	return err
}

func (h *BasicHandler) HandleHelp(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	peer, err := resolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}

	markup := &tg.ReplyInlineMarkup{
		Rows: []tg.KeyboardButtonRow{
			{
				Buttons: []tg.KeyboardButtonClass{
					&tg.KeyboardButtonURL{
						Text: "Developer",
						URL:  "https://t.me/pavellc",
					},
					&tg.KeyboardButtonURL{
						Text: "Source",
						URL:  "https://github.com/pavelc4/aether-fetch",
					},
				},
			},
		},
	}
	_, err = h.msg.Reply(ctx, peer, msg.ID, helpText, markup)
	return err
}

func (h *BasicHandler) HandleUnknown(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	peer, err := resolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}
	_, err = h.msg.Reply(ctx, peer, msg.ID, "🤔 Unknown command. Send /help for the list.", nil)
	return err
}

func (h *BasicHandler) HandleUsage(ctx context.Context, e tg.Entities, msg *tg.Message, command string) error {
	peer, err := resolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}
	_, err = h.msg.Reply(ctx, peer, msg.ID, "Usage: <code>/"+command+" &lt;link&gt;</code>", nil)
	return err
}
