package service

import (
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// StateProjector fans snapshots and waveforms out to any number of observers.
//
// Each observer gets a channel with room for one value. When an observer
// falls behind, the pending value is replaced by the newer one, so observers
// always see the latest state and never block the publisher. New observers
// receive the latest value immediately.
//
// Thread-safe: All operations protected by sync.Mutex.
type StateProjector struct {
	bus    ports.EventBus
	logger *slog.Logger

	mu             sync.Mutex
	latest         *domain.PlaybackSnapshot
	latestWaveform *domain.WaveformEnvelope
	snapshotSubs   map[int]chan domain.PlaybackSnapshot
	waveformSubs   map[int]chan domain.WaveformEnvelope
	nextID         int
	closed         bool

	// Event subscriptions
	subs []domain.SubscriptionID
}

// NewStateProjector creates a projector and subscribes it to the bus.
func NewStateProjector(bus ports.EventBus, logger *slog.Logger) *StateProjector {
	if logger == nil {
		logger = slog.Default()
	}
	p := &StateProjector{
		bus:          bus,
		logger:       logger.With(slog.String("service", "StateProjector")),
		snapshotSubs: make(map[int]chan domain.PlaybackSnapshot),
		waveformSubs: make(map[int]chan domain.WaveformEnvelope),
	}

	p.subs = append(p.subs,
		bus.Subscribe(domain.EventSnapshotUpdated, p.handleSnapshot),
		bus.Subscribe(domain.EventWaveformReady, p.handleWaveform),
	)
	return p
}

func (p *StateProjector) handleSnapshot(event domain.Event) {
	e, ok := event.(domain.SnapshotUpdatedEvent)
	if !ok {
		return
	}
	snap := e.Snapshot

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	// Snapshots can race through the bus; never step back in time
	if p.latest != nil && snap.Tick != 0 && snap.Tick < p.latest.Tick {
		return
	}
	p.latest = &snap
	for _, ch := range p.snapshotSubs {
		offer(ch, copySnapshot(snap))
	}
}

func (p *StateProjector) handleWaveform(event domain.Event) {
	e, ok := event.(domain.WaveformReadyEvent)
	if !ok {
		return
	}
	env := e.Envelope.Clone()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.latestWaveform = &env
	for _, ch := range p.waveformSubs {
		offer(ch, env.Clone())
	}
}

// offer delivers v, replacing a value the observer has not read yet.
// Callers hold p.mu, which makes them the only sender.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

func copySnapshot(s domain.PlaybackSnapshot) domain.PlaybackSnapshot {
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		s.CurrentTrack = &t
	}
	return s
}

// SubscribeSnapshots registers an observer. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (p *StateProjector) SubscribeSnapshots() (<-chan domain.PlaybackSnapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan domain.PlaybackSnapshot, 1)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	if p.latest != nil {
		ch <- copySnapshot(*p.latest)
	}

	id := p.nextID
	p.nextID++
	p.snapshotSubs[id] = ch

	return ch, p.canceller(func() {
		if c, ok := p.snapshotSubs[id]; ok {
			delete(p.snapshotSubs, id)
			close(c)
		}
	})
}

// SubscribeWaveforms registers a waveform observer. See SubscribeSnapshots.
func (p *StateProjector) SubscribeWaveforms() (<-chan domain.WaveformEnvelope, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan domain.WaveformEnvelope, 1)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	if p.latestWaveform != nil {
		ch <- p.latestWaveform.Clone()
	}

	id := p.nextID
	p.nextID++
	p.waveformSubs[id] = ch

	return ch, p.canceller(func() {
		if c, ok := p.waveformSubs[id]; ok {
			delete(p.waveformSubs, id)
			close(c)
		}
	})
}

func (p *StateProjector) canceller(remove func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			remove()
		})
	}
}

// Latest returns the most recent snapshot, if any was published.
func (p *StateProjector) Latest() (domain.PlaybackSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.latest == nil {
		return domain.PlaybackSnapshot{}, false
	}
	return copySnapshot(*p.latest), true
}

// LatestWaveform returns the most recent waveform, if any was published.
func (p *StateProjector) LatestWaveform() (domain.WaveformEnvelope, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.latestWaveform == nil {
		return domain.WaveformEnvelope{}, false
	}
	return p.latestWaveform.Clone(), true
}

// ObserverCount returns the number of registered observers of both kinds.
func (p *StateProjector) ObserverCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshotSubs) + len(p.waveformSubs)
}

// Close unsubscribes from the bus and closes every observer channel.
func (p *StateProjector) Close() {
	for _, id := range p.subs {
		p.bus.Unsubscribe(id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.snapshotSubs {
		delete(p.snapshotSubs, id)
		close(ch)
	}
	for id, ch := range p.waveformSubs {
		delete(p.waveformSubs, id)
		close(ch)
	}
	p.logger.Debug("state projector closed")
}
