package handler

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"

	"github.com/pavelc4/aether-fetch/internal/provider"
	"github.com/pavelc4/aether-fetch/internal/telegram"
)

// Messenger is the outbound side of the Telegram transport.
type Messenger interface {
	Reply(ctx context.Context, peer tg.InputPeerClass, replyTo int, text string, markup *tg.ReplyInlineMarkup) (int, error)
	Edit(ctx context.Context, peer tg.InputPeerClass, msgID int, text string, markup *tg.ReplyInlineMarkup) error
	Delete(ctx context.Context, peer tg.InputPeerClass, msgID int) error
	Answer(ctx context.Context, queryID int64, text string, alert bool) error
	SendMedia(ctx context.Context, peer tg.InputPeerClass, replyTo int, m telegram.Media) (*tg.Document, error)
	SendDocument(ctx context.Context, peer tg.InputPeerClass, replyTo int, doc *tg.InputDocument, caption string) error
}

type Uploader interface {
	Upload(ctx context.Context, path string, progress func(uploaded, total int64)) (tg.InputFileClass, error)
}

type Prober interface {
	Probe(ctx context.Context, url string) (*provider.Info, error)
}

// resolvePeer converts a PeerClass to InputPeerClass using the provided entities.
func resolvePeer(peer tg.PeerClass, entities tg.Entities) (tg.InputPeerClass, error) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		user, ok := entities.Users[p.UserID]
		if !ok {
			return nil, errors.Errorf("user %d not found in entities", p.UserID)
		}
		return &tg.InputPeerUser{
			UserID:     user.ID,
			AccessHash: user.AccessHash,
		}, nil
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}, nil
	case *tg.PeerChannel:
		channel, ok := entities.Channels[p.ChannelID]
		if !ok {
			return nil, errors.Errorf("channel %d not found in entities", p.ChannelID)
		}
		return &tg.InputPeerChannel{
			ChannelID:  channel.ID,
			AccessHash: channel.AccessHash,
		}, nil
	default:
		return nil, errors.Errorf("unknown peer type: %T", peer)
	}
}

func getSenderID(msg *tg.Message) int64 {
	if from, ok := msg.GetFromID(); ok {
		if user, ok := from.(*tg.PeerUser); ok {
			return user.UserID
		}
	}
	if peer, ok := msg.PeerID.(*tg.PeerUser); ok {
		return peer.UserID
	}
	return 0
}
