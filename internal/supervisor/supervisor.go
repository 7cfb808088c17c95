package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/internal/provider"
	"github.com/pavelc4/aether-fetch/internal/ratelimit"
	"github.com/pavelc4/aether-fetch/internal/resource"
	"github.com/pavelc4/aether-fetch/pkg/logger"
)

var (
	errFileTooLarge   = errors.New("size ceiling exceeded")
	errInvalidQuality = errors.New("unknown quality")
)

type Limiter interface {
	Check(userID int64) ratelimit.Decision
}

type Slots interface {
	Acquire(userID int64) (*resource.Slot, error)
}

type Extractor interface {
	Extract(ctx context.Context, job provider.Job, progress provider.ProgressFunc) (*provider.Result, error)
}

// Outcome describes a finished task for metrics and statistics.
type Outcome struct {
	UserID   int64
	Platform platform.Platform
	Quality  provider.Quality
	State    State
	Kind     Kind
	Bytes    int64
	Elapsed  time.Duration
}

type Recorder interface {
	TaskFinished(o Outcome)
}

type Config struct {
	MaxFileSize     int64
	TransportLimit  int64
	DownloadTimeout time.Duration
	// WorkDir is the parent of per-task temp directories. Empty means the
	// OS temp dir.
	WorkDir string
}

type Option func(*Supervisor)

func WithRecorder(r Recorder) Option {
	return func(s *Supervisor) {
		if r != nil {
			s.recorders = append(s.recorders, r)
		}
	}
}

type Supervisor struct {
	cfg       Config
	limiter   Limiter
	slots     Slots
	extractor Extractor
	recorders []Recorder

	mu    sync.RWMutex
	tasks map[string]*Task
}

func New(cfg Config, limiter Limiter, slots Slots, extractor Extractor, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:       cfg,
		limiter:   limiter,
		slots:     slots,
		extractor: extractor,
		tasks:     make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit starts a download in its own goroutine and returns immediately.
// The task stays registered until it reaches a terminal state.
func (s *Supervisor) Submit(ctx context.Context, userID int64, rawURL string, quality provider.Quality) *Task {
	ctx, cancel := context.WithCancel(ctx)

	t := newTask(uuid.NewString(), Request{UserID: userID, URL: rawURL, Quality: quality}, time.Now())
	t.cancel = cancel

	s.mu.Lock()
	s.tasks[t.id] = t
	s.mu.Unlock()

	go func() {
		defer cancel()
		defer s.forget(t.id)
		s.execute(ctx, t)
	}()
	return t
}

// Run executes a request and blocks until it is terminal. Cancelling ctx
// cancels the download; Run still waits for the cleanup to finish.
func (s *Supervisor) Run(ctx context.Context, req Request) (*Artifact, *Failure) {
	t := s.Submit(ctx, req.UserID, req.URL, req.Quality)
	<-t.Done()
	return t.Result()
}

func (s *Supervisor) Get(taskID string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	return t, ok
}

func (s *Supervisor) Cancel(taskID string) bool {
	t, ok := s.Get(taskID)
	if !ok {
		return false
	}
	t.Cancel()
	return true
}

// CancelUser cancels every running task of a user and returns how many
// were signalled.
func (s *Supervisor) CancelUser(userID int64) int {
	s.mu.RLock()
	var targets []*Task
	for _, t := range s.tasks {
		if t.Snapshot().UserID == userID {
			targets = append(targets, t)
		}
	}
	s.mu.RUnlock()

	for _, t := range targets {
		t.Cancel()
	}
	return len(targets)
}

// Active returns snapshots of all registered tasks, oldest first.
func (s *Supervisor) Active() []Snapshot {
	return s.collect(func(Snapshot) bool { return true })
}

func (s *Supervisor) ActiveFor(userID int64) []Snapshot {
	return s.collect(func(snap Snapshot) bool { return snap.UserID == userID })
}

func (s *Supervisor) collect(keep func(Snapshot) bool) []Snapshot {
	s.mu.RLock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(tasks))
	for _, t := range tasks {
		if snap := t.Snapshot(); keep(snap) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (s *Supervisor) forget(taskID string) {
	s.mu.Lock()
	delete(s.tasks, taskID)
	s.mu.Unlock()
}

func (s *Supervisor) execute(ctx context.Context, t *Task) {
	start := time.Now()

	var (
		a *Artifact
		f *Failure
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Task panicked", "task", t.id, "panic", r)
				a, f = nil, extractionFailed(fmt.Errorf("panic: %v", r))
			}
		}()
		a, f = s.run(ctx, t)
	}()

	state := StateCompleted
	if f != nil {
		state = stateFor(f.Kind)
	}
	t.finish(state, a, f)

	snap := t.Snapshot()
	elapsed := time.Since(start)
	if f != nil {
		logger.Warn("Download failed", "task", t.id, "user", snap.UserID, "platform", snap.Platform,
			"kind", f.Kind, "error", f.Unwrap(), "duration", elapsed.Round(time.Millisecond))
	} else {
		logger.InfoWithDuration("Download completed", start, "task", t.id, "user", snap.UserID,
			"platform", snap.Platform, "size", a.SizeBytes)
	}

	o := Outcome{
		UserID:   snap.UserID,
		Platform: snap.Platform,
		Quality:  snap.Quality,
		State:    state,
		Kind:     snap.ErrorKind,
		Bytes:    snap.BytesTransferred,
		Elapsed:  elapsed,
	}
	for _, r := range s.recorders {
		r.TaskFinished(o)
	}
}

func stateFor(k Kind) State {
	switch k {
	case KindCancelled:
		return StateCancelled
	case KindTimedOut:
		return StateTimedOut
	default:
		return StateFailed
	}
}

// run walks a task through admission and download. The slot and the work
// directory are released by defers, so they are gone before the caller
// publishes the terminal state.
func (s *Supervisor) run(ctx context.Context, t *Task) (*Artifact, *Failure) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	req := t.Snapshot()

	t.transition(StateValidating)
	p, err := platform.Validate(req.URL)
	if err != nil {
		return nil, invalidInput(err)
	}
	quality, ok := provider.ParseQuality(string(req.Quality))
	if !ok {
		return nil, invalidInput(fmt.Errorf("%w: %q", errInvalidQuality, req.Quality))
	}
	url := platform.Sanitize(req.URL)
	t.setPlatform(p, url, quality)

	if d := s.limiter.Check(req.UserID); !d.Allowed {
		return nil, rateLimited(d.RetryAfter)
	}

	t.transition(StateQueued)
	slot, err := s.slots.Acquire(req.UserID)
	if err != nil {
		return nil, resourceExhausted(err)
	}
	defer slot.Release()

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	t.transition(StateDownloading)

	dir, err := os.MkdirTemp(s.cfg.WorkDir, "aether-*")
	if err != nil {
		return nil, extractionFailed(fmt.Errorf("create work dir: %w", err))
	}
	keep := false
	defer func() {
		if !keep {
			if err := os.RemoveAll(dir); err != nil {
				logger.Warn("Failed to remove work dir", "dir", dir, "error", err)
			}
		}
	}()

	job := provider.Job{URL: url, Platform: p, Quality: quality, Dir: dir}
	res, f := s.download(ctx, t, job)
	if f != nil {
		return nil, f
	}

	t.transition(StateFinalizing)
	size := res.Size
	if info, err := os.Stat(res.Path); err == nil {
		size = info.Size()
	} else {
		return nil, extractionFailed(fmt.Errorf("stat result: %w", err))
	}

	if s.cfg.MaxFileSize > 0 && size > s.cfg.MaxFileSize {
		return nil, fileTooLarge(size, s.cfg.MaxFileSize)
	}
	if s.cfg.TransportLimit > 0 && size > s.cfg.TransportLimit {
		return nil, exceedsTransportLimit(size, s.cfg.TransportLimit, quality)
	}

	keep = true
	return &Artifact{
		Path:      res.Path,
		SizeBytes: size,
		MediaKind: res.MediaKind,
		MimeType:  res.MimeType,
		Title:     platform.SanitizeText(res.Title, 256),
		Duration:  res.Duration,
		Platform:  p,
		Quality:   quality,
		Dir:       dir,
	}, nil
}

// download invokes the backend under the wall-clock timeout and aborts it
// as soon as a progress report crosses the size ceiling.
func (s *Supervisor) download(ctx context.Context, t *Task, job provider.Job) (*provider.Result, *Failure) {
	timeoutCtx, cancelTimeout := context.WithCancel(ctx)
	if s.cfg.DownloadTimeout > 0 {
		timeoutCtx, cancelTimeout = context.WithTimeout(ctx, s.cfg.DownloadTimeout)
	}
	defer cancelTimeout()
	dctx, abort := context.WithCancelCause(timeoutCtx)
	defer abort(nil)

	var exceeded atomic.Int64
	progress := func(done, total int64) {
		if s.cfg.MaxFileSize > 0 && done > s.cfg.MaxFileSize {
			if exceeded.CompareAndSwap(0, done) {
				abort(errFileTooLarge)
			}
			return
		}
		t.progress(done, total)
	}

	res, err := s.extract(dctx, job, progress)

	if n := exceeded.Load(); n > 0 {
		return nil, fileTooLarge(n, s.cfg.MaxFileSize)
	}
	if ctx.Err() != nil {
		return nil, cancelled(ctx.Err())
	}
	if err == nil && res != nil {
		return res, nil
	}
	if errors.Is(context.Cause(dctx), context.DeadlineExceeded) {
		return nil, timedOut(s.cfg.DownloadTimeout, err)
	}
	if err == nil {
		err = provider.ErrNoMediaFound
	}
	return nil, extractionFailed(err)
}

func (s *Supervisor) extract(ctx context.Context, job provider.Job, progress provider.ProgressFunc) (res *provider.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("backend panic: %v", r)
		}
	}()
	return s.extractor.Extract(ctx, job, progress)
}
