// Package service provides the playback core: queue, session and state projection.
package service

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// QueueService owns the ordered queue, the current pointer and the shuffle/repeat flags.
//
// The queue keeps two orders: the original order tracks were given in, and the
// active order playback walks. The active order is always a permutation of the
// original. The current track is remembered by id; its index is looked up on
// demand, so reordering never leaves the pointer on the wrong track.
//
// All operations are thread-safe via sync.RWMutex. Events are published after
// the lock is released.
type QueueService struct {
	// Dependencies (injected)
	bus    ports.EventBus
	logger *slog.Logger
	rng    *rand.Rand

	// State
	original  []domain.Track
	active    []domain.Track
	currentID string
	context   domain.PlaylistContext
	shuffle   bool
	repeat    domain.RepeatMode

	// Concurrency control
	mu sync.RWMutex
}

// NewQueueService creates an empty queue with shuffle off and repeat Off.
func NewQueueService(bus ports.EventBus, logger *slog.Logger) *QueueService {
	if logger == nil {
		logger = slog.Default()
	}
	seed := uint64(time.Now().UnixNano())
	return &QueueService{
		bus:     bus,
		logger:  logger.With(slog.String("service", "QueueService")),
		rng:     rand.New(rand.NewPCG(seed, seed>>1|1)),
		context: domain.NoContext(),
	}
}

// SetRandom replaces the shuffle source. Tests use it to get reproducible orders.
func (s *QueueService) SetRandom(r *rand.Rand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = r
}

// ReplaceQueue installs a new queue and context and clears the current track.
// Duplicate ids keep their first occurrence; tracks without an id are dropped.
// If shuffle is on, the new queue is shuffled right away.
func (s *QueueService) ReplaceQueue(tracks []domain.Track, ctx domain.PlaylistContext) {
	unique := lo.UniqBy(
		lo.Filter(tracks, func(t domain.Track, _ int) bool { return t.ID != "" }),
		func(t domain.Track) string { return t.ID },
	)
	if dropped := len(tracks) - len(unique); dropped > 0 {
		s.logger.Debug("dropped duplicate or anonymous tracks", slog.Int("count", dropped))
	}

	s.mu.Lock()
	s.original = unique
	s.active = append([]domain.Track(nil), unique...)
	s.currentID = ""
	s.context = ctx
	if s.shuffle {
		s.reshuffleLocked()
	}
	event := s.queueChangedLocked()
	s.mu.Unlock()

	s.logger.Info("queue replaced",
		slog.Int("tracks", len(unique)),
		slog.String("context", ctx.Kind.String()))
	s.publish(event)
}

// SetShuffle turns shuffle on or off.
//
// Enabling always draws a fresh permutation, even when shuffle is already on,
// and moves the current track to the front so the rest of the queue follows it.
// Disabling restores the original order. Disabling while off does nothing.
func (s *QueueService) SetShuffle(enabled bool) {
	s.mu.Lock()
	if !enabled && !s.shuffle {
		s.mu.Unlock()
		return
	}

	s.shuffle = enabled
	if enabled {
		s.reshuffleLocked()
	} else {
		s.active = append([]domain.Track(nil), s.original...)
	}
	events := []domain.Event{
		domain.NewShuffleChangedEvent(enabled),
		s.queueChangedLocked(),
	}
	s.mu.Unlock()

	s.logger.Debug("shuffle changed", slog.Bool("enabled", enabled))
	s.publish(events...)
}

// ToggleShuffle flips shuffle and returns the new value.
func (s *QueueService) ToggleShuffle() bool {
	enabled := !s.Shuffle()
	s.SetShuffle(enabled)
	return enabled
}

// reshuffleLocked permutes the original order and moves the current track to index 0.
func (s *QueueService) reshuffleLocked() {
	perm := append([]domain.Track(nil), s.original...)
	s.rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	if i := indexOfID(perm, s.currentID); i > 0 {
		current := perm[i]
		copy(perm[1:i+1], perm[:i])
		perm[0] = current
	}
	s.active = perm
}

// SetRepeat sets the repeat mode.
func (s *QueueService) SetRepeat(mode domain.RepeatMode) {
	s.mu.Lock()
	changed := s.repeat != mode
	s.repeat = mode
	s.mu.Unlock()

	if changed {
		s.logger.Debug("repeat changed", slog.String("mode", mode.String()))
		s.publish(domain.NewRepeatChangedEvent(mode))
	}
}

// CycleRepeat advances Off -> All -> One -> Off and returns the new mode.
func (s *QueueService) CycleRepeat() domain.RepeatMode {
	s.mu.Lock()
	s.repeat = s.repeat.Next()
	mode := s.repeat
	s.mu.Unlock()

	s.publish(domain.NewRepeatChangedEvent(mode))
	return mode
}

// Next advances to the following track in the active order, wrapping at the end.
// With no current track (or one no longer queued) it starts from index 0.
// An empty queue returns (zero, false).
func (s *QueueService) Next() (domain.Track, bool) {
	return s.step(1)
}

// Previous moves to the preceding track in the active order, wrapping at the start.
// With no current track (or one no longer queued) it starts from index 0.
// An empty queue returns (zero, false).
func (s *QueueService) Previous() (domain.Track, bool) {
	return s.step(-1)
}

func (s *QueueService) step(delta int) (domain.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.neighbourLocked(delta)
	if !ok {
		return domain.Track{}, false
	}
	s.currentID = s.active[i].ID
	return s.active[i], true
}

// PeekNext returns what Next would return without moving the pointer.
func (s *QueueService) PeekNext() (domain.Track, bool) {
	return s.peek(1)
}

// PeekPrevious returns what Previous would return without moving the pointer.
func (s *QueueService) PeekPrevious() (domain.Track, bool) {
	return s.peek(-1)
}

func (s *QueueService) peek(delta int) (domain.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.neighbourLocked(delta)
	if !ok {
		return domain.Track{}, false
	}
	return s.active[i], true
}

func (s *QueueService) neighbourLocked(delta int) (int, bool) {
	n := len(s.active)
	if n == 0 {
		return 0, false
	}
	i := indexOfID(s.active, s.currentID)
	if i < 0 {
		return 0, true
	}
	return ((i+delta)%n + n) % n, true
}

// Select makes trackID current. It returns false when the id is not queued;
// the id is remembered anyway, and Next/Previous then restart from index 0.
func (s *QueueService) Select(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentID = trackID
	return indexOfID(s.active, trackID) >= 0
}

// IndexOf returns the position of trackID in the active order, or -1.
func (s *QueueService) IndexOf(trackID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOfID(s.active, trackID)
}

// Lookup finds a queued track by id.
func (s *QueueService) Lookup(trackID string) (domain.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOfID(s.active, trackID); i >= 0 {
		return s.active[i], true
	}
	return domain.Track{}, false
}

// Current returns the current track if it is queued.
func (s *QueueService) Current() (domain.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOfID(s.active, s.currentID); i >= 0 {
		return s.active[i], true
	}
	return domain.Track{}, false
}

// CurrentID returns the remembered current id, queued or not.
func (s *QueueService) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// CurrentIndex returns the current track's position in the active order, or -1.
func (s *QueueService) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOfID(s.active, s.currentID)
}

// IsAtEnd reports whether the current track is the last in the active order.
func (s *QueueService) IsAtEnd() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.active)
	return n > 0 && indexOfID(s.active, s.currentID) == n-1
}

// Tracks returns a copy of the active order.
func (s *QueueService) Tracks() []domain.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Track(nil), s.active...)
}

// OriginalTracks returns a copy of the original order.
func (s *QueueService) OriginalTracks() []domain.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Track(nil), s.original...)
}

// Len returns the number of queued tracks.
func (s *QueueService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Context returns how the queue was populated.
func (s *QueueService) Context() domain.PlaylistContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.context
}

// Shuffle reports whether shuffle is on.
func (s *QueueService) Shuffle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shuffle
}

// Repeat returns the repeat mode.
func (s *QueueService) Repeat() domain.RepeatMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repeat
}

// Flags returns context, shuffle and repeat under one lock.
func (s *QueueService) Flags() (domain.PlaylistContext, bool, domain.RepeatMode) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.context, s.shuffle, s.repeat
}

func (s *QueueService) queueChangedLocked() domain.Event {
	return domain.NewQueueChangedEvent(
		append([]domain.Track(nil), s.active...),
		s.context,
		indexOfID(s.active, s.currentID),
	)
}

func (s *QueueService) publish(events ...domain.Event) {
	if s.bus == nil {
		return
	}
	for _, e := range events {
		s.bus.Publish(e)
	}
}

func indexOfID(tracks []domain.Track, id string) int {
	if id == "" {
		return -1
	}
	_, i, ok := lo.FindIndexOf(tracks, func(t domain.Track) bool { return t.ID == id })
	if !ok {
		return -1
	}
	return i
}
