package service

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/domain"
)

const (
	// DefaultProgressInterval is the tick cadence of a tracking session.
	DefaultProgressInterval = 500 * time.Millisecond
	// minRemainingTime floors the adaptive remaining-time estimate.
	minRemainingTime = 500 * time.Millisecond
	// overrunRatio is the elapsed/estimate ratio after which progress reads 100.
	overrunRatio = 1.2

	analyzingUntil  = 15.0
	generatingUntil = 85.0

	subscriberBuffer = 16
)

// ProgressAt maps elapsed time onto the three-segment progress curve:
// the first 20% of the estimate covers 0-15%, the next 60% covers 15-85% and
// the final 20% covers 85-100%.
func ProgressAt(elapsed, estimate time.Duration) float64 {
	if estimate <= 0 {
		return 100
	}
	r := elapsed.Seconds() / estimate.Seconds()
	switch {
	case r <= 0:
		return 0
	case r > overrunRatio:
		return 100
	case r < 0.2:
		return r * 75
	case r < 0.8:
		return analyzingUntil + (r-0.2)/0.6*(generatingUntil-analyzingUntil)
	case r <= 1.0:
		return generatingUntil + (r-0.8)/0.2*(100-generatingUntil)
	default:
		return 100
	}
}

// expectedRatio inverts ProgressAt: the elapsed/estimate ratio at which progress is expected.
func expectedRatio(progress float64) float64 {
	switch {
	case progress <= 0:
		return 0
	case progress < analyzingUntil:
		return progress / 75
	case progress < generatingUntil:
		return 0.2 + (progress-analyzingUntil)/(generatingUntil-analyzingUntil)*0.6
	case progress < 100:
		return 0.8 + (progress-generatingUntil)/(100-generatingUntil)*0.2
	default:
		return 1
	}
}

// RemainingTime scales the remaining time expected at progress by the observed pace
// (actual elapsed over expected elapsed), floored at 500ms.
func RemainingTime(progress float64, elapsed, estimate time.Duration) time.Duration {
	expectedElapsed := time.Duration(expectedRatio(progress) * float64(estimate))
	expectedRemaining := estimate - expectedElapsed

	pace := 1.0
	if expectedElapsed > 0 {
		pace = float64(elapsed) / float64(expectedElapsed)
	}

	remaining := time.Duration(float64(expectedRemaining) * pace)
	if remaining < minRemainingTime {
		return minRemainingTime
	}
	return remaining
}

// StageFor derives the progress stage from a percentage.
func StageFor(progress float64) domain.ProgressStage {
	switch {
	case progress < analyzingUntil:
		return domain.StageAnalyzing
	case progress < generatingUntil:
		return domain.StageGenerating
	default:
		return domain.StageRefining
	}
}

type progressSession struct {
	id       string
	estimate time.Duration
	started  time.Time
	last     float64
	stop     chan struct{}
}

// ProgressTracker simulates answer progress for one session at a time and
// broadcasts it to subscribers. Starting a session ends any previous one.
type ProgressTracker struct {
	mu          sync.Mutex
	interval    time.Duration
	now         func() time.Time
	subscribers map[int]chan domain.ProgressEvent
	nextID      int
	session     *progressSession
	logger      *logrus.Logger
}

// NewProgressTracker creates a new progress tracker ticking at interval
func NewProgressTracker(interval time.Duration, logger *logrus.Logger) *ProgressTracker {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ProgressTracker{
		interval:    interval,
		now:         time.Now,
		subscribers: make(map[int]chan domain.ProgressEvent),
		logger:      logger,
	}
}

// Subscribe registers a listener. Events arrive in order; a listener that falls
// behind loses its oldest buffered events. The returned func unsubscribes and
// closes the channel.
func (t *ProgressTracker) Subscribe() (<-chan domain.ProgressEvent, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	ch := make(chan domain.ProgressEvent, subscriberBuffer)
	t.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subscribers, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

// Start begins a tracking session for an answer expected to take estimatedSeconds
// and returns its id.
func (t *ProgressTracker) Start(estimatedSeconds float64) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		t.endLocked(t.event(t.session, t.session.last, RemainingTime(t.session.last, t.now().Sub(t.session.started), t.session.estimate), true))
	}

	s := &progressSession{
		id:       ulid.Make().String(),
		estimate: time.Duration(estimatedSeconds * float64(time.Second)),
		started:  t.now(),
		stop:     make(chan struct{}),
	}
	t.session = s
	t.broadcastLocked(t.event(s, 0, s.estimate, false))

	t.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"estimate_s": estimatedSeconds,
	}).Debug("Progress tracking started")

	go t.run(s)
	return s.id
}

// Complete ends the active session at 100%.
func (t *ProgressTracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return
	}
	t.session.last = 100
	t.endLocked(t.event(t.session, 100, 0, true))
}

// Stop ends the active session at its current progress. It is safe to call at any time.
func (t *ProgressTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return
	}
	s := t.session
	t.endLocked(t.event(s, s.last, RemainingTime(s.last, t.now().Sub(s.started), s.estimate), true))
}

// Active reports whether a session is running.
func (t *ProgressTracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session != nil
}

func (t *ProgressTracker) run(s *progressSession) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			t.tick(s)
		}
	}
}

func (t *ProgressTracker) tick(s *progressSession) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != s {
		return
	}
	elapsed := t.now().Sub(s.started)
	progress := ProgressAt(elapsed, s.estimate)
	if progress < s.last {
		progress = s.last
	}
	s.last = progress
	t.broadcastLocked(t.event(s, progress, RemainingTime(progress, elapsed, s.estimate), false))
}

func (t *ProgressTracker) event(s *progressSession, progress float64, remaining time.Duration, done bool) domain.ProgressEvent {
	return domain.ProgressEvent{
		SessionID:              s.id,
		Progress:               progress,
		EstimatedTimeRemaining: remaining.Seconds(),
		Stage:                  StageFor(progress),
		Done:                   done,
		Timestamp:              t.now(),
	}
}

func (t *ProgressTracker) endLocked(final domain.ProgressEvent) {
	t.broadcastLocked(final)
	close(t.session.stop)
	t.logger.WithFields(logrus.Fields{
		"session_id": t.session.id,
		"progress":   final.Progress,
	}).Debug("Progress tracking ended")
	t.session = nil
}

func (t *ProgressTracker) broadcastLocked(ev domain.ProgressEvent) {
	for _, ch := range t.subscribers {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Full: drop the oldest event so the newest, and the terminal one, always lands.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
