package supervisor

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/internal/provider"
)

type Request struct {
	UserID  int64
	URL     string
	Quality provider.Quality
}

// Artifact is a completed download. The caller owns Dir and must call
// Cleanup once the file has been delivered.
type Artifact struct {
	Path      string
	SizeBytes int64
	MediaKind provider.MediaKind
	MimeType  string
	Title     string
	Duration  int
	Platform  platform.Platform
	Quality   provider.Quality
	Dir       string
}

func (a *Artifact) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

// Snapshot is a point-in-time copy of a task. It holds no references into
// the task and is safe to keep.
type Snapshot struct {
	ID               string
	UserID           int64
	URL              string
	Platform         platform.Platform
	Quality          provider.Quality
	State            State
	BytesTransferred int64
	SizeEstimate     int64
	StartedAt        time.Time
	UpdatedAt        time.Time
	ErrorKind        Kind
}

// Elapsed is the time since the task was created, as of the snapshot.
func (s Snapshot) Elapsed() time.Duration {
	return s.UpdatedAt.Sub(s.StartedAt)
}

type Task struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	snap     Snapshot
	subs     []chan Snapshot
	artifact *Artifact
	failure  *Failure
}

func newTask(id string, req Request, now time.Time) *Task {
	return &Task{
		id:   id,
		done: make(chan struct{}),
		snap: Snapshot{
			ID:        id,
			UserID:    req.UserID,
			URL:       req.URL,
			Quality:   req.Quality,
			State:     StatePending,
			StartedAt: now,
			UpdatedAt: now,
		},
	}
}

func (t *Task) ID() string {
	return t.id
}

func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Updates returns a new subscription primed with the current snapshot.
// Unread snapshots are replaced by newer ones, except that the terminal
// snapshot is always the last value before the channel is closed. Calling
// Updates again restarts observation from the current state.
func (t *Task) Updates() <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	ch <- t.snap
	if t.snap.State.IsTerminal() {
		close(ch)
		return ch
	}
	t.subs = append(t.subs, ch)
	return ch
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result returns the outcome once Done is closed. Before that both values
// are nil.
func (t *Task) Result() (*Artifact, *Failure) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.artifact, t.failure
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (*Artifact, *Failure, error) {
	select {
	case <-t.done:
		a, f := t.Result()
		return a, f, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Cancel requests cooperative cancellation. The task still reports its own
// terminal state once the backend has stopped.
func (t *Task) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Task) transition(to State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !canTransition(t.snap.State, to) {
		return false
	}
	t.snap.State = to
	t.snap.UpdatedAt = time.Now()
	t.publish()
	return true
}

func (t *Task) setPlatform(p platform.Platform, url string, q provider.Quality) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Platform = p
	t.snap.URL = url
	t.snap.Quality = q
}

func (t *Task) progress(done, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.State.IsTerminal() {
		return
	}
	t.snap.BytesTransferred = done
	if total > 0 {
		t.snap.SizeEstimate = total
	}
	t.snap.UpdatedAt = time.Now()
	t.publish()
}

// finish moves the task into a terminal state, delivers the final snapshot
// and closes every subscription. It is a no-op once terminal.
func (t *Task) finish(state State, a *Artifact, f *Failure) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.State.IsTerminal() {
		return false
	}
	t.snap.State = state
	t.snap.UpdatedAt = time.Now()
	if f != nil {
		t.snap.ErrorKind = f.Kind
	}
	if a != nil {
		t.snap.BytesTransferred = a.SizeBytes
		t.snap.SizeEstimate = a.SizeBytes
	}
	t.artifact, t.failure = a, f

	t.publish()
	for _, ch := range t.subs {
		close(ch)
	}
	t.subs = nil
	close(t.done)
	return true
}

// publish must be called with t.mu held. Each subscriber channel has a
// single sender (this method, under the lock), so after draining a stale
// value the send cannot block.
func (t *Task) publish() {
	for _, ch := range t.subs {
		select {
		case ch <- t.snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- t.snap
		}
	}
}
