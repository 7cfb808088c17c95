package handler

import (
	"errors"
	"strings"

	"github.com/pavelc4/aether-fetch/internal/provider"
)

// Action is the first field of inline button data.
type Action string

const (
	ActionQuality Action = "q"
	ActionInfo    Action = "i"
	ActionRefresh Action = "r"
	ActionClose   Action = "x"
	ActionCancel  Action = "c"
)

// Telegram rejects callback data longer than this.
const maxCallbackData = 64

var ErrBadCallback = errors.New("malformed callback data")

// Callback is decoded button data. Key is a selection token, or a task ID
// for ActionCancel.
type Callback struct {
	Action  Action
	Key     string
	Quality provider.Quality
}

func (c Callback) Encode() []byte {
	parts := []string{string(c.Action), c.Key}
	if c.Action == ActionQuality {
		parts = append(parts, string(c.Quality))
	}
	return []byte(strings.Join(parts, ":"))
}

func ParseCallback(data []byte) (Callback, error) {
	if len(data) == 0 || len(data) > maxCallbackData {
		return Callback{}, ErrBadCallback
	}
	parts := strings.Split(string(data), ":")
	if len(parts) < 2 || parts[1] == "" {
		return Callback{}, ErrBadCallback
	}

	c := Callback{Action: Action(parts[0]), Key: parts[1]}
	switch c.Action {
	case ActionQuality:
		if len(parts) != 3 {
			return Callback{}, ErrBadCallback
		}
		q, ok := provider.ParseQuality(parts[2])
		if !ok || parts[2] == "" {
			return Callback{}, ErrBadCallback
		}
		c.Quality = q
	case ActionInfo, ActionRefresh, ActionClose, ActionCancel:
		if len(parts) != 2 {
			return Callback{}, ErrBadCallback
		}
	default:
		return Callback{}, ErrBadCallback
	}
	return c, nil
}
