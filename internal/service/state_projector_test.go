package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gotune-core/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
	"github.com/tejashwikalptaru/gotune-core/internal/testutil"
)

func newTestProjector() (*StateProjector, *eventbus.SyncEventBus) {
	bus := eventbus.NewSyncEventBus()
	return NewStateProjector(bus, logger.NewTestLogger()), bus
}

func publishSnapshot(bus *eventbus.SyncEventBus, tick uint64, trackID string) {
	track := createTestTrack(trackID)
	bus.Publish(domain.NewSnapshotUpdatedEvent(domain.PlaybackSnapshot{
		CurrentTrack: &track,
		DurationMs:   1000,
		Tick:         tick,
		State:        domain.SessionReady,
	}))
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("no value delivered")
	}
	var zero T
	return zero
}

func assertEmpty[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v", v)
	default:
	}
}

func TestStateProjector_LatestWins(t *testing.T) {
	p, bus := newTestProjector()
	defer p.Close()

	ch, cancel := p.SubscribeSnapshots()
	defer cancel()

	// A slow observer only sees the newest value
	for tick := uint64(1); tick <= 5; tick++ {
		publishSnapshot(bus, tick, "t0")
	}

	snap := receive(t, ch)
	assert.Equal(t, uint64(5), snap.Tick)
	assertEmpty(t, ch)
}

func TestStateProjector_NewObserverGetsLatest(t *testing.T) {
	p, bus := newTestProjector()
	defer p.Close()

	_, ok := p.Latest()
	assert.False(t, ok)

	publishSnapshot(bus, 1, "t0")
	publishSnapshot(bus, 2, "t1")

	ch, cancel := p.SubscribeSnapshots()
	defer cancel()

	snap := receive(t, ch)
	assert.Equal(t, "t1", snap.TrackID())

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), latest.Tick)
}

func TestStateProjector_IgnoresOlderTicks(t *testing.T) {
	p, bus := newTestProjector()
	defer p.Close()

	publishSnapshot(bus, 7, "new")
	publishSnapshot(bus, 3, "old")

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, "new", latest.TrackID())
}

func TestStateProjector_DeliversCopies(t *testing.T) {
	p, bus := newTestProjector()
	defer p.Close()

	a, cancelA := p.SubscribeSnapshots()
	defer cancelA()
	b, cancelB := p.SubscribeSnapshots()
	defer cancelB()

	publishSnapshot(bus, 1, "t0")

	first := receive(t, a)
	second := receive(t, b)
	first.CurrentTrack.Title = "changed"

	assert.Equal(t, "Song t0", second.CurrentTrack.Title)
	latest, _ := p.Latest()
	assert.Equal(t, "Song t0", latest.CurrentTrack.Title)
}

func TestStateProjector_Waveforms(t *testing.T) {
	p, bus := newTestProjector()
	defer p.Close()

	amps := make([]uint8, domain.WaveformLength)
	amps[3] = 99
	bus.Publish(domain.NewWaveformReadyEvent(domain.WaveformEnvelope{TrackID: "t0", Amplitudes: amps}, false))

	// Mutating the published buffer does not reach observers
	amps[3] = 0

	ch, cancel := p.SubscribeWaveforms()
	defer cancel()

	env := receive(t, ch)
	assert.Equal(t, "t0", env.TrackID)
	assert.Equal(t, uint8(99), env.Amplitudes[3])

	env.Amplitudes[3] = 1
	latest, ok := p.LatestWaveform()
	require.True(t, ok)
	assert.Equal(t, uint8(99), latest.Amplitudes[3])
}

func TestStateProjector_CancelClosesChannel(t *testing.T) {
	p, bus := newTestProjector()
	defer p.Close()

	ch, cancel := p.SubscribeSnapshots()
	assert.Equal(t, 1, p.ObserverCount())

	cancel()
	cancel()
	assert.Zero(t, p.ObserverCount())

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after cancel must not panic on the closed channel
	publishSnapshot(bus, 1, "t0")
}

func TestStateProjector_Close(t *testing.T) {
	p, bus := newTestProjector()

	snaps, cancelSnaps := p.SubscribeSnapshots()
	waves, cancelWaves := p.SubscribeWaveforms()

	p.Close()
	p.Close()

	_, ok := <-snaps
	assert.False(t, ok)
	_, ok = <-waves
	assert.False(t, ok)
	assert.Zero(t, bus.SubscriberCount())

	// Cancelling after Close is harmless, and late subscribers get a closed channel
	cancelSnaps()
	cancelWaves()
	late, _ := p.SubscribeSnapshots()
	_, ok = <-late
	assert.False(t, ok)
}

func TestStateProjector_FollowsPlaybackService(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	ts := newTestPlaybackService(t, PlaybackOptions{Analyzer: &fakeAnalyzer{level: 40}})
	defer ts.svc.Shutdown()
	p := NewStateProjector(ts.bus, logger.NewTestLogger())
	defer p.Close()

	snaps, cancelSnaps := p.SubscribeSnapshots()
	defer cancelSnaps()
	waves, cancelWaves := p.SubscribeWaveforms()
	defer cancelWaves()

	require.NoError(t, ts.svc.Load(context.Background(), "t2", true))

	require.Eventually(t, func() bool {
		latest, ok := p.Latest()
		return ok && latest.TrackID() == "t2" && latest.State == domain.SessionReady
	}, time.Second, 5*time.Millisecond)
	snap := receive(t, snaps)
	assert.Equal(t, "t2", snap.TrackID())

	env := receive(t, waves)
	assert.Equal(t, "t2", env.TrackID)
	assert.Equal(t, uint8(40), env.Amplitudes[0])
}
