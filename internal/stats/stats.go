package stats

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pavelc4/aether-fetch/internal/provider"
	"github.com/pavelc4/aether-fetch/internal/supervisor"
)

// BotStats aggregates finished tasks in memory. Counters start from zero
// on every process start.
type BotStats struct {
	mu  sync.RWMutex
	now func() time.Time

	startTime time.Time

	total          int64
	completed      int64
	cancelled      int64
	timedOut       int64
	failed         int64
	audioDownloads int64
	videoDownloads int64
	totalBytes     int64
	lastDownload   time.Time

	failures    map[supervisor.Kind]int64
	platforms   map[string]int64
	uniqueUsers map[int64]struct{}

	daily   map[string]*PeriodStats // YYYY-MM-DD
	weekly  map[string]*PeriodStats // YYYY-Www
	monthly map[string]*PeriodStats // YYYY-MM
}

type PeriodStats struct {
	Downloads int64
	Bytes     int64
	Users     int
	users     map[int64]struct{}
}

type Snapshot struct {
	StartTime      time.Time
	Uptime         time.Duration
	Total          int64
	Completed      int64
	Failed         int64
	Cancelled      int64
	TimedOut       int64
	AudioDownloads int64
	VideoDownloads int64
	TotalBytes     int64
	UniqueUsers    int
	LastDownload   time.Time
	Failures       map[supervisor.Kind]int64
	Platforms      []PlatformCount
}

type PlatformCount struct {
	Platform string
	Count    int64
}

func New() *BotStats {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *BotStats {
	return &BotStats{
		now:         now,
		startTime:   now(),
		failures:    make(map[supervisor.Kind]int64),
		platforms:   make(map[string]int64),
		uniqueUsers: make(map[int64]struct{}),
		daily:       make(map[string]*PeriodStats),
		weekly:      make(map[string]*PeriodStats),
		monthly:     make(map[string]*PeriodStats),
	}
}

// TaskFinished implements supervisor.Recorder.
func (s *BotStats) TaskFinished(o supervisor.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.uniqueUsers[o.UserID] = struct{}{}

	switch o.State {
	case supervisor.StateCompleted:
		s.recordCompleted(o)
		return
	case supervisor.StateCancelled:
		s.cancelled++
	case supervisor.StateTimedOut:
		s.timedOut++
	default:
		s.failed++
	}
	if o.Kind != "" {
		s.failures[o.Kind]++
	}
}

func (s *BotStats) recordCompleted(o supervisor.Outcome) {
	now := s.now()

	s.completed++
	s.totalBytes += o.Bytes
	s.lastDownload = now

	if o.Quality.MediaKind() == provider.MediaAudio {
		s.audioDownloads++
	} else {
		s.videoDownloads++
	}
	s.platforms[o.Platform.String()]++

	recordPeriod(s.daily, dayKey(now), o)
	recordPeriod(s.weekly, weekKey(now), o)
	recordPeriod(s.monthly, monthKey(now), o)
}

func recordPeriod(stats map[string]*PeriodStats, key string, o supervisor.Outcome) {
	p := stats[key]
	if p == nil {
		p = &PeriodStats{users: make(map[int64]struct{})}
		stats[key] = p
	}
	p.Downloads++
	p.Bytes += o.Bytes
	p.users[o.UserID] = struct{}{}
	p.Users = len(p.users)
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Period returns completed downloads for "today", "week" or "month".
func (s *BotStats) Period(period string) PeriodStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	strategies := map[string]func() *PeriodStats{
		"today": func() *PeriodStats { return s.daily[dayKey(now)] },
		"week":  func() *PeriodStats { return s.weekly[weekKey(now)] },
		"month": func() *PeriodStats { return s.monthly[monthKey(now)] },
	}

	if strategy, ok := strategies[period]; ok {
		if p := strategy(); p != nil {
			return PeriodStats{Downloads: p.Downloads, Bytes: p.Bytes, Users: p.Users}
		}
	}
	return PeriodStats{}
}

func (s *BotStats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	failures := make(map[supervisor.Kind]int64, len(s.failures))
	for k, n := range s.failures {
		failures[k] = n
	}
	platforms := make([]PlatformCount, 0, len(s.platforms))
	for p, n := range s.platforms {
		platforms = append(platforms, PlatformCount{Platform: p, Count: n})
	}
	sort.Slice(platforms, func(i, j int) bool {
		if platforms[i].Count != platforms[j].Count {
			return platforms[i].Count > platforms[j].Count
		}
		return platforms[i].Platform < platforms[j].Platform
	})

	return Snapshot{
		StartTime:      s.startTime,
		Uptime:         s.now().Sub(s.startTime),
		Total:          s.total,
		Completed:      s.completed,
		Failed:         s.failed,
		Cancelled:      s.cancelled,
		TimedOut:       s.timedOut,
		AudioDownloads: s.audioDownloads,
		VideoDownloads: s.videoDownloads,
		TotalBytes:     s.totalBytes,
		UniqueUsers:    len(s.uniqueUsers),
		LastDownload:   s.lastDownload,
		Failures:       failures,
		Platforms:      platforms,
	}
}

// SuccessRate is the share of finished tasks that completed, in percent.
func (s Snapshot) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}
