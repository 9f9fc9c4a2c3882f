// Package app wires all voxpipe subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture loop and the interaction state
// machine, and Shutdown tears everything down in order.
//
// For testing, pass mock providers in the [Providers] struct; every stage
// of the pipeline sits behind a provider interface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mliane/voxpipe/internal/batch"
	"github.com/mliane/voxpipe/internal/config"
	"github.com/mliane/voxpipe/internal/echo"
	"github.com/mliane/voxpipe/internal/segment"
	"github.com/mliane/voxpipe/internal/session"
	"github.com/mliane/voxpipe/pkg/audio"
	"github.com/mliane/voxpipe/pkg/provider/capture"
	"github.com/mliane/voxpipe/pkg/provider/dispatch"
	"github.com/mliane/voxpipe/pkg/provider/intent"
	"github.com/mliane/voxpipe/pkg/provider/stt"
	"github.com/mliane/voxpipe/pkg/provider/tts"
	"github.com/mliane/voxpipe/pkg/provider/vad"
)

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry (with resilience chains wrapped around
// slots that have fallbacks configured). VAD may be nil; the classifier
// falls back to its built-in energy detector.
type Providers struct {
	STT      stt.Recognizer
	TTS      tts.Synthesizer
	Intent   intent.Extractor
	Dispatch dispatch.Dispatcher
	VAD      vad.Engine
	Capture  capture.Device
}

// App owns all subsystem lifetimes and orchestrates the voxpipe speech
// pipeline: capture → classifier → batcher → state machine.
type App struct {
	cfg       *config.Config
	providers *Providers

	suppressor *echo.Suppressor
	classifier *segment.Classifier
	batcher    *batch.Batcher
	machine    *session.Machine

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSuppressor injects an echo suppressor instead of creating one from
// config.
func WithSuppressor(s *echo.Suppressor) Option {
	return func(a *App) { a.suppressor = s }
}

// WithBatcher injects a batcher instead of creating one from config.
func WithBatcher(b *batch.Batcher) Option {
	return func(a *App) { a.batcher = b }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). New starts the
// batcher's internal goroutines but not the capture loop; call Run.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	for _, req := range []struct {
		name    string
		missing bool
	}{
		{"stt", providers.STT == nil},
		{"tts", providers.TTS == nil},
		{"intent", providers.Intent == nil},
		{"dispatch", providers.Dispatch == nil},
		{"capture", providers.Capture == nil},
	} {
		if req.missing {
			return nil, fmt.Errorf("app: %s provider is required", req.name)
		}
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	sampleRate := cfg.Audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	frameMs := cfg.Audio.FrameMs
	if frameMs <= 0 {
		frameMs = 20
	}

	if a.suppressor == nil {
		a.suppressor = echo.New(cfg.Echo.SuppressorConfig())
	}

	classifier, err := segment.New(segment.Config{
		SampleRate:     sampleRate,
		FrameSizeMs:    frameMs,
		Aggressiveness: cfg.Audio.Aggressiveness(),
		Engine:         providers.VAD,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init classifier: %w", err)
	}
	a.classifier = classifier
	a.closers = append(a.closers, func(context.Context) error {
		return classifier.Close()
	})

	if a.batcher == nil {
		a.batcher = batch.New(cfg.Batching.BatcherConfig(sampleRate), providers.STT)
	}
	a.closers = append(a.closers, a.batcher.Stop)

	a.machine = session.NewMachine(cfg.Session.MachineConfig(), session.Deps{
		Source:     a.batcher,
		Extractor:  providers.Intent,
		Dispatcher: providers.Dispatch,
		Synth:      providers.TTS,
		Echo:       a.suppressor,
	})

	return a, nil
}

// Machine exposes the interaction state machine, e.g. for activation
// triggers and the ops status endpoint.
func (a *App) Machine() *session.Machine {
	return a.machine
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the state machine, the capture loop, and (when configured) the
// ops HTTP server, then blocks until ctx is cancelled or the session
// terminates. The session starts listening immediately.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The machine returning (stop command, closed event stream) ends
		// the whole run, not just this goroutine.
		defer cancel()
		err := a.machine.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.machine.Activate()

	g.Go(func() error {
		// Hold off reading until the session has come up so the first
		// frames are not dropped on a gated microphone.
		for a.machine.State() == session.Idle {
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(time.Millisecond):
			}
		}
		return a.captureLoop(gctx)
	})

	if a.cfg.Server.ListenAddr != "" {
		a.startOpsServer(gctx, g)
	}

	slog.Info("voxpipe running",
		"sample_rate", a.cfg.Audio.SampleRate,
		"ops_addr", a.cfg.Server.ListenAddr,
	)

	return g.Wait()
}

// captureLoop reads frames from the capture device and feeds classified
// segments to the batcher. Frames read while the assistant is speaking or
// the microphone is gated are drained and dropped so the device buffer
// never backs up.
func (a *App) captureLoop(ctx context.Context) error {
	gated := false
	for {
		frame, err := a.providers.Capture.ReadFrame(ctx)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrTimeout):
			continue
		case errors.Is(err, capture.ErrClosed):
			slog.Info("capture device closed")
			return nil
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return fmt.Errorf("app: read frame: %w", err)
		}

		if a.suppressor.Suspended() || !a.machine.MicActive() {
			gated = true
			continue
		}
		if gated {
			// Hysteresis state accumulated before the gap would smear a
			// stale speech verdict onto the first frames after it.
			a.classifier.Reset()
			gated = false
		}

		seg := a.classifier.Classify(frame)
		a.machine.NoteSegment()
		a.batcher.AddSegment(seg)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.machine.Stop()

		// The machine no longer consumes transcriptions; drain the stream
		// so the batcher's shutdown flush can never block on a full
		// channel. Drain returns once Stop closes the events channel.
		go audio.Drain(a.batcher.Events())

		// Close capture first so the loop stops producing segments.
		if err := a.providers.Capture.Close(); err != nil {
			slog.Warn("capture close error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
