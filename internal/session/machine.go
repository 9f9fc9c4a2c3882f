// Package session implements the top-level interaction state machine.
//
// The [Machine] owns microphone activation, routes batcher transcriptions
// through echo suppression and global-command detection, drives the intent
// confirmation dialogue, and dispatches confirmed intents to the command
// executor. It runs a single loop at a fixed tick; all mutable interaction
// state (current intent, collected fragments, pending confirmations) is
// owned by that loop.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mliane/voxpipe/internal/batch"
	"github.com/mliane/voxpipe/internal/echo"
	"github.com/mliane/voxpipe/internal/observe"
	"github.com/mliane/voxpipe/pkg/provider/dispatch"
	"github.com/mliane/voxpipe/pkg/provider/intent"
	"github.com/mliane/voxpipe/pkg/provider/tts"
)

// State is the machine's current interaction phase.
type State int32

const (
	// Idle waits for an activation trigger; the microphone is off.
	Idle State = iota

	// Listening feeds the batcher and waits for a finalized utterance.
	Listening

	// Processing turns collected transcription text into an intent.
	Processing

	// IntentValidation listens for a yes/no/cancel reply to an ambiguous
	// intent.
	IntentValidation

	// AwaitResponse waits for the command executor's result.
	AwaitResponse

	// Terminated is entered by Stop or the stop command; it is permanent.
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case IntentValidation:
		return "intent-validation"
	case AwaitResponse:
		return "await-response"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Spoken prompts. Kept as constants so tests can assert on announcements.
const (
	msgNothingUnderstood = "Sorry, I didn't catch that."
	msgApology           = "Sorry, something went wrong. Please try again."
	msgConfirmStop       = "Do you really want to stop?"
	msgCancelled         = "Okay, cancelled."
	msgClarify           = "Please say yes or no."
	msgCommandFailed     = "Sorry, I couldn't do that."
)

// Config tunes the [Machine]. Zero-value fields get defaults.
type Config struct {
	// Tick is the polling interval of the machine loop. Default: 50ms.
	Tick time.Duration

	// MaxListen bounds a single listening phase. Default: 30s.
	MaxListen time.Duration

	// HighConfidence is the intent confidence at or above which validation
	// is skipped. Default: 0.85.
	HighConfidence float64

	// FuzzyThreshold is the Jaro-Winkler floor for global-command
	// detection. Default: 0.85.
	FuzzyThreshold float64

	// PositionCutoff is the sentence-position ratio at or above which a
	// quit word executes without confirmation. Default: 0.75.
	PositionCutoff float64
}

func (c *Config) applyDefaults() {
	if c.Tick <= 0 {
		c.Tick = 50 * time.Millisecond
	}
	if c.MaxListen <= 0 {
		c.MaxListen = 30 * time.Second
	}
	if c.HighConfidence <= 0 {
		c.HighConfidence = 0.85
	}
}

// EventSource is the batcher surface the machine consumes. *batch.Batcher
// satisfies it. Flush reports whether an in-flight batch was promoted to a
// final transcription; the final then arrives on Events.
type EventSource interface {
	Events() <-chan batch.Event
	Discard()
	Flush() bool
}

// Deps are the collaborators the machine orchestrates.
type Deps struct {
	Source     EventSource
	Extractor  intent.Extractor
	Dispatcher dispatch.Dispatcher
	Synth      tts.Synthesizer
	Echo       *echo.Suppressor
}

// Machine is the interaction state machine. Create with [NewMachine], drive
// with [Machine.Run], terminate with [Machine.Stop].
type Machine struct {
	cfg     Config
	deps    Deps
	matcher *CommandMatcher

	state     atomic.Int32
	micActive atomic.Bool
	paused    atomic.Bool
	stats     Stats

	activate chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// Loop-owned interaction state.
	currentIntent *intent.Intent
	fragments     []string
	listenStart   time.Time
	pendingStop   bool
	flushing      bool
}

// NewMachine creates a Machine. Run must be called for it to make progress.
func NewMachine(cfg Config, deps Deps) *Machine {
	cfg.applyDefaults()
	return &Machine{
		cfg:      cfg,
		deps:     deps,
		matcher:  NewCommandMatcher(cfg.FuzzyThreshold, cfg.PositionCutoff),
		activate: make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// State returns the current interaction phase.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// MicActive reports whether the capture loop should forward frames.
func (m *Machine) MicActive() bool {
	return m.micActive.Load()
}

// Stats returns a snapshot of the session counters.
func (m *Machine) Stats() StatsSnapshot {
	return m.stats.Snapshot()
}

// NoteSegment lets the capture loop report one classified segment for the
// session counters.
func (m *Machine) NoteSegment() {
	m.stats.segments.Add(1)
}

// Activate requests a transition from idle to listening, e.g. from a manual
// trigger or a wake-word detector.
func (m *Machine) Activate() {
	select {
	case m.activate <- struct{}{}:
	default:
	}
}

// Stop terminates the session from any state. Idempotent: a second call is
// a no-op and observes the same terminated state.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() {
		m.setState(Terminated)
		close(m.quit)
	})
}

// Done is closed once the machine loop has exited.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Run drives the machine until Stop is called or ctx is cancelled.
func (m *Machine) Run(ctx context.Context) error {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return ctx.Err()

		case <-m.quit:
			return nil

		case <-m.activate:
			if m.State() == Idle {
				m.toListening()
			}

		case ev, ok := <-m.deps.Source.Events():
			if !ok {
				// Batcher gone; nothing left to listen to.
				m.Stop()
				return nil
			}
			m.handleEvent(ctx, ev)

		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// ─── Transitions ─────────────────────────────────────────────────────────────

func (m *Machine) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	m.refreshMic()
	if old != s {
		slog.Debug("session state changed", "from", old, "to", s)
	}
}

// refreshMic recomputes whether the capture loop should forward frames: on
// only while listening for an utterance or a confirmation reply, and never
// while paused.
func (m *Machine) refreshMic() {
	s := m.State()
	mic := (s == Listening || s == IntentValidation) && !m.paused.Load()
	if mic == m.micActive.Load() {
		return
	}
	m.micActive.Store(mic)
	delta := int64(-1)
	if mic {
		delta = 1
	}
	observe.DefaultMetrics().MicActive.Add(context.Background(), delta)
}

func (m *Machine) toListening() {
	m.listenStart = time.Now()
	m.fragments = nil
	m.flushing = false
	m.setState(Listening)
}

func (m *Machine) toIdle() {
	m.currentIntent = nil
	m.fragments = nil
	m.pendingStop = false
	m.setState(Idle)
}

// tick runs periodic housekeeping for the current state.
func (m *Machine) tick(ctx context.Context) {
	if m.State() != Listening || time.Since(m.listenStart) <= m.cfg.MaxListen {
		return
	}
	if m.flushing {
		// A deadline flush is already in flight; its final lands via the
		// normal listening path.
		return
	}
	slog.Info("maximum listening duration reached")
	if m.deps.Source.Flush() {
		// Speech was still accumulating; finalize it and wait for the
		// transcription instead of processing a truncated utterance.
		m.flushing = true
		return
	}
	m.process(ctx)
}

// ─── Event handling ──────────────────────────────────────────────────────────

func (m *Machine) handleEvent(ctx context.Context, ev batch.Event) {
	if ev.IsFinal {
		m.stats.batches.Add(1)
		// Any final satisfies a pending deadline flush, even one that is
		// suppressed or dropped below; the next tick processes what we have.
		m.flushing = false
	}

	text := strings.TrimSpace(ev.Text)
	if text != "" && m.deps.Echo.ShouldSuppress(text) {
		observe.DefaultMetrics().EchoesSuppressed.Add(ctx, 1)
		slog.Debug("transcription suppressed as self-echo", "text", text)
		return
	}

	// Global commands outrank everything, in every state.
	if text != "" {
		if cmd, immediate := m.matcher.Detect(text); cmd != CmdNone {
			m.handleCommand(ctx, cmd, immediate)
			return
		}
	}

	if m.paused.Load() {
		return
	}

	switch m.State() {
	case Listening:
		if !ev.IsFinal {
			slog.Debug("partial transcription", "text", text)
			return
		}
		if text != "" {
			m.fragments = append(m.fragments, text)
		}
		m.process(ctx)

	case IntentValidation:
		if ev.IsFinal {
			m.handleReply(ctx, text)
		}
	}
}

// handleCommand applies a detected global command. A quit word spotted
// mid-sentence asks for confirmation instead of executing; every other
// command is unconditional.
func (m *Machine) handleCommand(ctx context.Context, cmd Command, immediate bool) {
	slog.Info("global command detected", "command", cmd, "immediate", immediate)

	switch cmd {
	case CmdStop:
		if immediate {
			m.Stop()
			return
		}
		m.pendingStop = true
		m.setState(IntentValidation)
		m.announce(ctx, msgConfirmStop)

	case CmdCancel:
		m.deps.Source.Discard()
		m.announce(ctx, msgCancelled)
		m.toIdle()

	case CmdPause:
		m.paused.Store(true)
		m.refreshMic()

	case CmdResume:
		if m.paused.CompareAndSwap(true, false) {
			m.toListening()
		}

	case CmdRestart:
		m.deps.Source.Discard()
		m.toIdle()
	}
}

// process concatenates the collected fragments and turns them into an
// intent. It is the Processing phase; empty input short-circuits to idle.
func (m *Machine) process(ctx context.Context) {
	m.setState(Processing)

	text := strings.TrimSpace(strings.Join(m.fragments, " "))
	m.fragments = nil

	if text == "" {
		m.announce(ctx, msgNothingUnderstood)
		m.toIdle()
		return
	}

	mtr := observe.DefaultMetrics()
	start := time.Now()
	it, err := m.deps.Extractor.Extract(ctx, text)
	mtr.ExtractDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Error("intent extraction failed", "err", err)
		mtr.RecordProviderError(ctx, "intent", "extract")
		m.announce(ctx, msgApology)
		m.toIdle()
		return
	}

	m.currentIntent = &it
	slog.Info("intent extracted",
		"type", it.Type, "confidence", it.Confidence, "summary", it.Summary)

	if it.Confidence >= m.cfg.HighConfidence {
		m.dispatchIntent(ctx)
		return
	}

	m.setState(IntentValidation)
	m.announce(ctx, confirmPrompt(it))
}

// handleReply interprets a confirmation-dialogue answer.
func (m *Machine) handleReply(ctx context.Context, text string) {
	switch {
	case isAffirmative(text):
		if m.pendingStop {
			m.Stop()
			return
		}
		m.dispatchIntent(ctx)

	case isNegative(text):
		m.announce(ctx, msgCancelled)
		m.toIdle()

	default:
		// Unrecognized reply: ask again and listen for clarification.
		m.announce(ctx, msgClarify)
		m.toListening()
	}
}

// dispatchIntent hands the current intent to the executor and announces the
// outcome. This is the AwaitResponse phase.
func (m *Machine) dispatchIntent(ctx context.Context) {
	it := m.currentIntent
	if it == nil {
		m.toIdle()
		return
	}
	m.setState(AwaitResponse)

	ctx, span := observe.StartSpan(ctx, "dispatch-intent")
	mtr := observe.DefaultMetrics()
	start := time.Now()
	res, err := m.deps.Dispatcher.Dispatch(ctx, *it)
	mtr.DispatchDuration.Record(ctx, time.Since(start).Seconds())
	span.End()

	m.stats.commands.Add(1)
	switch {
	case err != nil:
		slog.Error("command dispatch failed", "type", it.Type, "err", err)
		mtr.RecordCommand(ctx, "error")
		mtr.RecordProviderError(ctx, "dispatch", "command")
		m.announce(ctx, msgApology)
	case !res.Success:
		mtr.RecordCommand(ctx, "failed")
		m.announce(ctx, fallbackMessage(res.Message, msgCommandFailed))
	default:
		mtr.RecordCommand(ctx, "ok")
		m.announce(ctx, fallbackMessage(res.Message, "Done."))
	}

	m.toIdle()
}

// announce speaks text to the user. The active batch is discarded the
// moment speaking starts and the echo window opens once estimated playback
// has elapsed.
func (m *Machine) announce(ctx context.Context, text string) {
	m.deps.Echo.SpeakingStarted(text)
	m.deps.Source.Discard()

	mtr := observe.DefaultMetrics()
	start := time.Now()
	res, err := m.deps.Synth.Synthesize(ctx, text)
	mtr.SynthesizeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Error("speech synthesis failed", "err", err)
		mtr.RecordProviderError(ctx, "tts", "synthesize")
	} else {
		slog.Debug("announcement played", "text", text, "audio", res.AudioDuration)
	}
	m.deps.Echo.SpeakingFinished()
}

// ─── Reply parsing ───────────────────────────────────────────────────────────

var (
	affirmatives = map[string]struct{}{
		"yes": {}, "yeah": {}, "yep": {}, "sure": {}, "okay": {}, "ok": {},
		"correct": {}, "confirm": {}, "affirmative": {},
	}
	negatives = map[string]struct{}{
		"no": {}, "nope": {}, "wrong": {}, "negative": {},
	}
)

func isAffirmative(text string) bool { return anyWordIn(text, affirmatives) }
func isNegative(text string) bool    { return anyWordIn(text, negatives) }

func anyWordIn(text string, set map[string]struct{}) bool {
	for _, w := range tokenize(text) {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

// confirmPrompt phrases the validation question for an ambiguous intent.
func confirmPrompt(it intent.Intent) string {
	if it.Summary != "" {
		return "Did you mean: " + it.Summary
	}
	return "Did you mean: " + it.RawText
}

func fallbackMessage(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}
