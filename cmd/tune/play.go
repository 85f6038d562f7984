package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/gotune-core/internal/adapter/audio/speaker"
	"github.com/tejashwikalptaru/gotune-core/internal/app"
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/service"
)

type PlayParams struct {
	Files   []string `pos:"true" required:"true" help:"Audio files to queue, in order."`
	Shuffle bool     `short:"s" optional:"true" help:"Play the queue in random order."`
	Repeat  string   `short:"r" optional:"true" help:"Repeat mode (off, all, one)." default:"off" alts:"off,all,one"`
	Resume  bool     `optional:"true" help:"Continue the previous session when its track is queued."`
	Mock    bool     `optional:"true" help:"Use the silent in-memory engine instead of the speaker."`
	Env     string   `short:"e" optional:"true" help:"Settings file to read before the environment." default:".env"`
}

func PlayCmd() *cobra.Command {
	return boa.CmdT[PlayParams]{
		Use:         "play",
		Short:       "Play audio files",
		Long:        "Queue the given files and play them until the queue ends or the command is interrupted. MP3, FLAC, Ogg Vorbis and WAV files are supported.",
		ParamEnrich: paramEnricher(),
		RunFunc: func(params *PlayParams, cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			exitCode := RunPlay(ctx, params, os.Stdout, os.Stderr)
			stop()
			os.Exit(exitCode)
		},
	}.ToCobra()
}

// RunPlay plays params.Files until ctx is done or playback runs off the end of
// the queue, printing a status line per snapshot change.
func RunPlay(ctx context.Context, params *PlayParams, stdout, stderr io.Writer) int {
	repeat, err := domain.ParseRepeatMode(params.Repeat)
	if err != nil {
		fmt.Fprintf(stderr, "play: %v\n", err)
		return 2
	}

	cfg := loadSettings(params.Env, stderr)
	cfg.UseMockAudio = params.Mock
	if !speaker.Available && !cfg.UseMockAudio {
		fmt.Fprintln(stderr, "play: this build has no audio output, using the silent engine")
		cfg.UseMockAudio = true
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "play: %v\n", err)
		return 1
	}
	defer func() {
		if err := application.Shutdown(); err != nil {
			fmt.Fprintf(stderr, "play: shutdown: %v\n", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := application.GetEventBus()
	endSub := bus.SubscribeFiltered(domain.EventPlaybackStopped, func(e domain.Event) bool {
		stopped, ok := e.(domain.PlaybackStoppedEvent)
		return ok && stopped.EndOfQueue
	}, func(domain.Event) {
		cancel()
	})
	defer bus.Unsubscribe(endSub)

	queue, _, projector := application.GetServices()
	snapshots, unsubscribe := projector.SubscribeSnapshots()
	defer unsubscribe()

	tracks, err := application.Enqueue(ctx, params.Files, app.QueueOptions{Shuffle: params.Shuffle, Repeat: repeat})
	if len(tracks) == 0 {
		fmt.Fprintf(stderr, "play: %v\n", err)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "play: some files were skipped: %v\n", err)
	}

	if err := application.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "play: %v\n", err)
		return 1
	}
	if err := application.Begin(ctx, params.Resume); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "play: %v\n", err)
		return 1
	}

	printer := statusPrinter{out: stdout, queue: queue}
	printer.header()
	for {
		select {
		case <-ctx.Done():
			printer.finish()
			return 0
		case snap, ok := <-snapshots:
			if !ok {
				printer.finish()
				return 0
			}
			printer.show(snap)
		}
	}
}

// statusPrinter writes one line per track and rewrites a progress line in place.
type statusPrinter struct {
	out     io.Writer
	queue   *service.QueueService
	trackID string
	line    string
	dirty   bool
}

func (p *statusPrinter) header() {
	n := p.queue.Len()
	noun := "tracks"
	if n == 1 {
		noun = "track"
	}
	if label := p.queue.Context().Label(); label != "" {
		fmt.Fprintf(p.out, "%s, %d %s\n", label, n, noun)
	} else {
		fmt.Fprintf(p.out, "%d %s\n", n, noun)
	}
}

// position renders the queue slot of trackID as "[i/n]", or "[-/n]" when the
// track is not the queue's current one.
func (p *statusPrinter) position(trackID string) string {
	n := p.queue.Len()
	if p.queue.CurrentID() != trackID {
		return fmt.Sprintf("[-/%d]", n)
	}
	if i := p.queue.CurrentIndex(); i >= 0 {
		return fmt.Sprintf("[%d/%d]", i+1, n)
	}
	return fmt.Sprintf("[-/%d]", n)
}

func (p *statusPrinter) show(snap domain.PlaybackSnapshot) {
	if snap.CurrentTrack == nil {
		return
	}
	if id := snap.TrackID(); id != p.trackID {
		p.finish()
		p.trackID = id
		p.line = ""
		track := snap.CurrentTrack
		if track.Artist != "" {
			fmt.Fprintf(p.out, "%s %s - %s\n", p.position(id), track.Title, track.Artist)
		} else {
			fmt.Fprintf(p.out, "%s %s\n", p.position(id), track.Title)
		}
	}

	state := "playing"
	if !snap.IsPlaying {
		state = "paused"
	}
	line := fmt.Sprintf("  %s / %s  %-7s  shuffle:%t repeat:%s",
		formatMs(snap.PositionMs), formatMs(snap.DurationMs), state, snap.Shuffle, snap.Repeat)
	if line == p.line {
		return
	}
	p.line = line
	fmt.Fprint(p.out, "\r"+line)
	p.dirty = true
}

func (p *statusPrinter) finish() {
	if p.dirty {
		fmt.Fprintln(p.out)
		p.dirty = false
	}
}
