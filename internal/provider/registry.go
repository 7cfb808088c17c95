package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/pkg/logger"
)

// Registry keeps backends in registration order. For a given platform the
// first backend that succeeds wins; later ones act as fallbacks.
type Registry struct {
	mu       sync.RWMutex
	backends []Backend
}

func NewRegistry(backends ...Backend) *Registry {
	return &Registry{backends: backends}
}

func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, b)
}

func (r *Registry) For(p platform.Platform) []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Backend
	for _, b := range r.backends {
		if b.Supports(p) {
			out = append(out, b)
		}
	}
	return out
}

func (r *Registry) Extract(ctx context.Context, job Job, progress ProgressFunc) (*Result, error) {
	targets := r.For(job.Platform)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, job.Platform)
	}

	var errs []error
	for i, b := range targets {
		if i > 0 {
			// Each attempt starts from an empty directory.
			if err := clearDir(job.Dir); err != nil {
				return nil, err
			}
		}

		res, err := b.Extract(ctx, job, progress)
		if err == nil {
			return res, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))

		if ctx.Err() != nil {
			break
		}
		logger.Warn("Backend failed", "backend", b.Name(), "platform", job.Platform, "error", err)
	}
	return nil, errors.Join(errs...)
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
