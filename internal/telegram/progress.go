package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/pavelc4/aether-fetch/pkg/logger"
)

const DefaultEditInterval = 2 * time.Second

// EditFunc rewrites the status message.
type EditFunc func(ctx context.Context, text string) error

// ProgressEditor rate-limits edits of a single status message. Updates that
// arrive too soon, repeat the previous text or overlap an edit in flight
// are dropped.
type ProgressEditor struct {
	edit     EditFunc
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	last     time.Time
	lastText string
	inflight bool
}

func NewProgressEditor(edit EditFunc, interval time.Duration) *ProgressEditor {
	if interval <= 0 {
		interval = DefaultEditInterval
	}
	return &ProgressEditor{edit: edit, interval: interval, now: time.Now}
}

// Update edits the message if the throttle allows it and reports whether
// an edit was made. Safe for concurrent use.
func (p *ProgressEditor) Update(ctx context.Context, text string) bool {
	p.mu.Lock()
	now := p.now()
	if p.inflight || text == p.lastText || (!p.last.IsZero() && now.Sub(p.last) < p.interval) {
		p.mu.Unlock()
		return false
	}
	p.inflight = true
	p.last = now
	p.lastText = text
	p.mu.Unlock()

	err := p.edit(ctx, text)

	p.mu.Lock()
	p.inflight = false
	p.mu.Unlock()

	if err != nil {
		logger.Debug("Progress edit failed", "error", err)
		return false
	}
	return true
}

// Mark records text as already shown, as when the message was just sent
// with it.
func (p *ProgressEditor) Mark(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = p.now()
	p.lastText = text
}

// Force edits regardless of the throttle, skipping only identical text.
func (p *ProgressEditor) Force(ctx context.Context, text string) error {
	p.mu.Lock()
	if text == p.lastText {
		p.mu.Unlock()
		return nil
	}
	p.last = p.now()
	p.lastText = text
	p.mu.Unlock()

	return p.edit(ctx, text)
}
