package resource

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkInvariant(snap Snapshot) error {
	sum := 0
	for user, n := range snap.PerUser {
		if n <= 0 || n > snap.MaxPerUser {
			return fmt.Errorf("user %d holds %d slots", user, n)
		}
		sum += n
	}
	if snap.GlobalInUse < 0 || snap.GlobalInUse > snap.MaxGlobal {
		return fmt.Errorf("global counter out of range: %d", snap.GlobalInUse)
	}
	if sum != snap.GlobalInUse {
		return fmt.Errorf("global %d != sum of per-user %d", snap.GlobalInUse, sum)
	}
	return nil
}

func assertInvariant(t *testing.T, snap Snapshot) {
	t.Helper()
	require.NoError(t, checkInvariant(snap))
}

func rejectionReason(t *testing.T, err error) Reason {
	t.Helper()
	var rej *Rejection
	require.True(t, errors.As(err, &rej), "expected *Rejection, got %v", err)
	return rej.Reason
}

func TestUserLimitReached(t *testing.T) {
	m := NewManager(10, 2)

	s1, err := m.Acquire(1)
	require.NoError(t, err)
	s2, err := m.Acquire(1)
	require.NoError(t, err)

	_, err = m.Acquire(1)
	assert.Equal(t, UserLimitReached, rejectionReason(t, err))

	snap := m.Snapshot()
	assert.Equal(t, 2, snap.GlobalInUse)
	assert.Equal(t, map[int64]int{1: 2}, snap.PerUser)

	s1.Release()
	s2.Release()
	assert.Equal(t, 0, m.Snapshot().GlobalInUse)
	assert.Empty(t, m.Snapshot().PerUser)
}

func TestGlobalLimitReached(t *testing.T) {
	m := NewManager(10, 2)

	for user := int64(1); user <= 5; user++ {
		for i := 0; i < 2; i++ {
			_, err := m.Acquire(user)
			require.NoError(t, err)
		}
	}

	_, err := m.Acquire(6)
	assert.Equal(t, GlobalLimitReached, rejectionReason(t, err))
	assert.Zero(t, m.ActiveFor(6))
	assertInvariant(t, m.Snapshot())
}

func TestGlobalCheckedBeforeUser(t *testing.T) {
	m := NewManager(1, 1)
	_, err := m.Acquire(1)
	require.NoError(t, err)

	_, err = m.Acquire(1)
	assert.Equal(t, GlobalLimitReached, rejectionReason(t, err))
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := NewManager(3, 3)

	keep, err := m.Acquire(1)
	require.NoError(t, err)
	s, err := m.Acquire(1)
	require.NoError(t, err)

	assert.True(t, s.Release())
	assert.False(t, s.Release())
	assert.False(t, m.Release(s))

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.GlobalInUse)
	assert.Equal(t, 1, snap.PerUser[1])

	assert.True(t, keep.Release())
	assert.Equal(t, 0, m.Snapshot().GlobalInUse)
}

func TestReleaseForeignOrNilSlot(t *testing.T) {
	a := NewManager(2, 2)
	b := NewManager(2, 2)

	s, err := a.Acquire(1)
	require.NoError(t, err)

	assert.False(t, b.Release(s))
	assert.False(t, b.Release(nil))
	assert.False(t, (*Slot)(nil).Release())
	assert.False(t, (&Slot{userID: 1}).Release())
	assert.Equal(t, 1, a.Snapshot().GlobalInUse)
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewManager(2, 2)
	_, err := m.Acquire(1)
	require.NoError(t, err)

	snap := m.Snapshot()
	snap.PerUser[1] = 99
	assert.Equal(t, 1, m.ActiveFor(1))
}

func TestConcurrentBursts(t *testing.T) {
	m := NewManager(10, 2)

	var wg sync.WaitGroup
	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			var held []*Slot
			for i := 0; i < 500; i++ {
				if len(held) > 0 && rng.Intn(2) == 0 {
					idx := rng.Intn(len(held))
					held[idx].Release()
					held = append(held[:idx], held[idx+1:]...)
					continue
				}
				s, err := m.Acquire(rng.Int63n(8))
				if err == nil {
					held = append(held, s)
				}
				if err := checkInvariant(m.Snapshot()); err != nil {
					t.Error(err)
					return
				}
			}
			for _, s := range held {
				s.Release()
			}
		}(int64(g))
	}

	// Observe while the bursts run.
	stop := make(chan struct{})
	observed := make(chan struct{})
	go func() {
		defer close(observed)
		for {
			select {
			case <-stop:
				return
			default:
				if err := checkInvariant(m.Snapshot()); err != nil {
					t.Error(err)
					return
				}
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-observed

	snap := m.Snapshot()
	assert.Equal(t, 0, snap.GlobalInUse)
	assert.Empty(t, snap.PerUser)
}

type recordingObserver struct {
	mu       sync.Mutex
	inUse    []int
	rejected []Reason
}

func (o *recordingObserver) SlotsChanged(globalInUse, users int) {
	o.mu.Lock()
	o.inUse = append(o.inUse, globalInUse)
	o.mu.Unlock()
}

func (o *recordingObserver) SlotRejected(r Reason) {
	o.mu.Lock()
	o.rejected = append(o.rejected, r)
	o.mu.Unlock()
}

func TestObserver(t *testing.T) {
	m := NewManager(1, 1)
	obs := &recordingObserver{}
	m.SetObserver(obs)

	s, err := m.Acquire(1)
	require.NoError(t, err)
	_, err = m.Acquire(2)
	require.Error(t, err)
	s.Release()
	s.Release()

	assert.Equal(t, []int{1, 0}, obs.inUse)
	assert.Equal(t, []Reason{GlobalLimitReached}, obs.rejected)
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "global_limit_reached", GlobalLimitReached.String())
	assert.Equal(t, "user_limit_reached", UserLimitReached.String())
	assert.Equal(t, "unknown", Reason(0).String())
	assert.Contains(t, (&Rejection{Reason: UserLimitReached, InUse: 2, Limit: 2}).Error(), "2/2")
}

func TestSlotReleasesItsOwner(t *testing.T) {
	m := NewManager(4, 2)
	mine, err := m.Acquire(1)
	require.NoError(t, err)
	_, err = m.Acquire(2)
	require.NoError(t, err)

	assert.Equal(t, int64(1), mine.UserID())
	require.True(t, mine.Release())

	snap := m.Snapshot()
	assert.Equal(t, map[int64]int{2: 1}, snap.PerUser)
	assert.Equal(t, 1, snap.GlobalInUse)
}
