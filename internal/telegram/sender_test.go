package telegram

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageID(t *testing.T) {
	tests := []struct {
		name    string
		updates tg.UpdatesClass
		want    int
	}{
		{"short", &tg.UpdateShortSentMessage{ID: 5}, 5},
		{"new message", &tg.Updates{Updates: []tg.UpdateClass{
			&tg.UpdateNewMessage{Message: &tg.Message{ID: 7}},
		}}, 7},
		{"channel", &tg.Updates{Updates: []tg.UpdateClass{
			&tg.UpdateNewChannelMessage{Message: &tg.Message{ID: 9}},
		}}, 9},
		{"message id", &tg.Updates{Updates: []tg.UpdateClass{
			&tg.UpdateMessageID{ID: 11, RandomID: 1},
		}}, 11},
		{"nothing", &tg.Updates{}, 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageID(tt.updates))
		})
	}
}

func TestSentDocument(t *testing.T) {
	doc := &tg.Document{ID: 1, AccessHash: 2, FileReference: []byte{3}}
	updates := &tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateMessageID{ID: 4},
		&tg.UpdateNewMessage{Message: &tg.Message{ID: 4, Media: &tg.MessageMediaDocument{Document: doc}}},
	}}

	got := SentDocument(updates)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.AccessHash)

	assert.Nil(t, SentDocument(&tg.UpdateShortSentMessage{ID: 1}))
	assert.Nil(t, SentDocument(&tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateNewMessage{Message: &tg.Message{ID: 4}},
	}}))
}
