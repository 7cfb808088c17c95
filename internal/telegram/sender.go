package telegram

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/html"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/pavelc4/aether-fetch/pkg/logger"
)

// Media describes an uploaded file to attach to a reply.
type Media struct {
	File     tg.InputFileClass
	Name     string
	MimeType string
	Audio    bool
	Title    string
	Caption  string
}

// Sender wraps the message builders for HTML replies, edits and media.
type Sender struct {
	api    *tg.Client
	sender *message.Sender
}

func NewSender(api *tg.Client) *Sender {
	return &Sender{api: api, sender: message.NewSender(api)}
}

// Reply sends an HTML message in reply to replyTo (0 for none) and returns
// the new message ID.
func (s *Sender) Reply(ctx context.Context, peer tg.InputPeerClass, replyTo int, text string, markup *tg.ReplyInlineMarkup) (int, error) {
	b := s.builder(peer, replyTo)
	if markup != nil {
		b = b.Markup(markup)
	}
	updates, err := b.StyledText(ctx, html.String(nil, text))
	if err != nil {
		return 0, errors.Wrap(err, "send message")
	}
	return MessageID(updates), nil
}

// Edit replaces the text and keyboard of msgID. Edits that change nothing
// are not errors.
func (s *Sender) Edit(ctx context.Context, peer tg.InputPeerClass, msgID int, text string, markup *tg.ReplyInlineMarkup) error {
	b := s.builder(peer, 0)
	if markup != nil {
		b = b.Markup(markup)
	}
	_, err := b.Edit(msgID).StyledText(ctx, html.String(nil, text))
	if err != nil && !tgerr.Is(err, "MESSAGE_NOT_MODIFIED") {
		return errors.Wrap(err, "edit message")
	}
	return nil
}

func (s *Sender) Delete(ctx context.Context, peer tg.InputPeerClass, msgID int) error {
	if msgID == 0 {
		return nil
	}
	if channel, ok := peer.(*tg.InputPeerChannel); ok {
		_, err := s.api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
			Channel: &tg.InputChannel{
				ChannelID:  channel.ChannelID,
				AccessHash: channel.AccessHash,
			},
			ID: []int{msgID},
		})
		return errors.Wrap(err, "delete channel message")
	}
	_, err := s.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
		ID:     []int{msgID},
		Revoke: true,
	})
	return errors.Wrap(err, "delete message")
}

// Answer acknowledges a callback query, optionally as an alert popup.
func (s *Sender) Answer(ctx context.Context, queryID int64, text string, alert bool) error {
	_, err := s.api.MessagesSetBotCallbackAnswer(ctx, &tg.MessagesSetBotCallbackAnswerRequest{
		QueryID: queryID,
		Message: text,
		Alert:   alert,
	})
	if err != nil && !tgerr.Is(err, "QUERY_ID_INVALID") {
		return errors.Wrap(err, "answer callback")
	}
	return nil
}

// SendMedia replies with an uploaded document and returns the stored
// document, if Telegram reported one. Video is marked streamable; audio
// carries its title.
func (s *Sender) SendMedia(ctx context.Context, peer tg.InputPeerClass, replyTo int, m Media) (*tg.Document, error) {
	var caption []message.StyledTextOption
	if m.Caption != "" {
		caption = append(caption, html.String(nil, m.Caption))
	}

	doc := message.UploadedDocument(m.File, caption...).
		MIME(m.MimeType).
		Filename(m.Name)

	switch {
	case m.Audio:
		doc = doc.Attributes(&tg.DocumentAttributeAudio{Title: m.Title})
	case strings.HasPrefix(m.MimeType, "video/"):
		doc = doc.Attributes(&tg.DocumentAttributeVideo{SupportsStreaming: true})
	}

	updates, err := s.builder(peer, replyTo).Media(ctx, doc)
	if err != nil {
		logger.Error("Failed to send media", "file", m.Name, "error", err)
		return nil, errors.Wrap(err, "send media")
	}
	return SentDocument(updates), nil
}

// SendDocument resends a document Telegram already stores.
func (s *Sender) SendDocument(ctx context.Context, peer tg.InputPeerClass, replyTo int, doc *tg.InputDocument, caption string) error {
	media := message.Media(&tg.InputMediaDocument{ID: doc}, html.String(nil, caption))
	if _, err := s.builder(peer, replyTo).Media(ctx, media); err != nil {
		return errors.Wrap(err, "send cached document")
	}
	return nil
}

func (s *Sender) builder(peer tg.InputPeerClass, replyTo int) *message.Builder {
	b := &s.sender.To(peer).Builder
	if replyTo != 0 {
		b = b.Reply(replyTo)
	}
	return b
}

// MessageID extracts the ID of the message created by a send request.
func MessageID(updates tg.UpdatesClass) int {
	switch u := updates.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		for _, update := range u.Updates {
			switch m := update.(type) {
			case *tg.UpdateNewMessage:
				if msg, ok := m.Message.(*tg.Message); ok {
					return msg.ID
				}
			case *tg.UpdateNewChannelMessage:
				if msg, ok := m.Message.(*tg.Message); ok {
					return msg.ID
				}
			case *tg.UpdateMessageID:
				return m.ID
			}
		}
	}
	return 0
}

// SentDocument finds the document attached to a freshly sent message.
func SentDocument(updates tg.UpdatesClass) *tg.Document {
	u, ok := updates.(*tg.Updates)
	if !ok {
		return nil
	}
	for _, update := range u.Updates {
		var msg tg.MessageClass
		switch m := update.(type) {
		case *tg.UpdateNewMessage:
			msg = m.Message
		case *tg.UpdateNewChannelMessage:
			msg = m.Message
		default:
			continue
		}
		mm, ok := msg.(*tg.Message)
		if !ok {
			continue
		}
		if media, ok := mm.Media.(*tg.MessageMediaDocument); ok {
			if doc, ok := media.Document.(*tg.Document); ok {
				return doc
			}
		}
	}
	return nil
}
