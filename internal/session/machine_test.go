package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mliane/voxpipe/internal/batch"
	"github.com/mliane/voxpipe/internal/echo"
	"github.com/mliane/voxpipe/pkg/provider/dispatch"
	dispatchmock "github.com/mliane/voxpipe/pkg/provider/dispatch/mock"
	"github.com/mliane/voxpipe/pkg/provider/intent"
	intentmock "github.com/mliane/voxpipe/pkg/provider/intent/mock"
	ttsmock "github.com/mliane/voxpipe/pkg/provider/tts/mock"
)

// fakeSource is an in-memory EventSource fed directly by the tests.
type fakeSource struct {
	events chan batch.Event

	mu          sync.Mutex
	discards    int
	flushes     int
	flushResult bool
}

var _ EventSource = (*fakeSource)(nil)

func (f *fakeSource) Events() <-chan batch.Event { return f.events }

func (f *fakeSource) Discard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discards++
}

func (f *fakeSource) Discards() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discards
}

func (f *fakeSource) Flush() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return f.flushResult
}

func (f *fakeSource) Flushes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

func (f *fakeSource) setFlushResult(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushResult = v
}

type harness struct {
	m     *Machine
	src   *fakeSource
	ext   *intentmock.Extractor
	disp  *dispatchmock.Dispatcher
	synth *ttsmock.Synthesizer
	echo  *echo.Suppressor
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		src:   &fakeSource{events: make(chan batch.Event, 16)},
		ext:   &intentmock.Extractor{},
		disp:  &dispatchmock.Dispatcher{},
		synth: &ttsmock.Synthesizer{},
		echo:  echo.New(echo.Config{}),
	}
	h.m = NewMachine(cfg, Deps{
		Source:     h.src,
		Extractor:  h.ext,
		Dispatcher: h.disp,
		Synth:      h.synth,
		Echo:       h.echo,
	})

	go h.m.Run(context.Background())
	t.Cleanup(func() {
		h.m.Stop()
		<-h.m.Done()
	})
	return h
}

// listening activates the machine and waits for the listening state.
func (h *harness) listening(t *testing.T) {
	t.Helper()
	h.m.Activate()
	h.waitState(t, Listening)
}

func (h *harness) final(text string) {
	h.src.events <- batch.Event{Text: text, IsFinal: true}
}

func (h *harness) partial(text string) {
	h.src.events <- batch.Event{Text: text, IsFinal: false}
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return h.m.State() == want })
}

func (h *harness) waitSpoken(t *testing.T, want string) {
	t.Helper()
	waitFor(t, "announcement "+want, func() bool {
		return slices.Contains(h.synth.SpokenSnapshot(), want)
	})
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestMachine_ActivateOnlyFromIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	if h.m.State() != Idle {
		t.Fatalf("initial state = %v, want %v", h.m.State(), Idle)
	}
	if h.m.MicActive() {
		t.Error("mic active while idle")
	}

	h.listening(t)
	waitFor(t, "mic on", h.m.MicActive)
}

func TestMachine_HighConfidenceSkipsValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.ext.Result = intent.Intent{Type: "set_timer", Confidence: 0.95, Summary: "set a timer"}
	h.disp.Result = dispatch.CommandResult{Success: true, Message: "Timer set."}

	h.listening(t)
	h.final("set a timer for five minutes")

	h.waitSpoken(t, "Timer set.")
	h.waitState(t, Idle)

	dispatched := h.disp.DispatchedSnapshot()
	if len(dispatched) != 1 || dispatched[0].Type != "set_timer" {
		t.Fatalf("dispatched = %+v, want one set_timer intent", dispatched)
	}
	for _, s := range h.synth.SpokenSnapshot() {
		if s == confirmPrompt(h.ext.Result) {
			t.Error("high-confidence intent asked for confirmation")
		}
	}
}

func TestMachine_LowConfidenceAsksConfirmation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.ext.Result = intent.Intent{Type: "set_timer", Confidence: 0.4, Summary: "set a timer"}
	h.disp.Result = dispatch.CommandResult{Success: true, Message: "Timer set."}

	h.listening(t)
	h.final("set a timer")
	h.waitState(t, IntentValidation)
	h.waitSpoken(t, "Did you mean: set a timer")

	if len(h.disp.DispatchedSnapshot()) != 0 {
		t.Fatal("intent dispatched before confirmation")
	}

	h.final("yes")
	h.waitSpoken(t, "Timer set.")
	h.waitState(t, Idle)
	if len(h.disp.DispatchedSnapshot()) != 1 {
		t.Fatalf("dispatched %d intents, want 1", len(h.disp.DispatchedSnapshot()))
	}
}

func TestMachine_NegativeReplyCancelsIntent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.ext.Result = intent.Intent{Type: "set_timer", Confidence: 0.4, Summary: "set a timer"}

	h.listening(t)
	h.final("set a timer")
	h.waitState(t, IntentValidation)

	h.final("no")
	h.waitSpoken(t, msgCancelled)
	h.waitState(t, Idle)
	if len(h.disp.DispatchedSnapshot()) != 0 {
		t.Fatal("rejected intent was dispatched")
	}
}

func TestMachine_UnrecognizedReplyAsksAgain(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.ext.Result = intent.Intent{Type: "set_timer", Confidence: 0.4, Summary: "set a timer"}

	h.listening(t)
	h.final("set a timer")
	h.waitState(t, IntentValidation)

	h.final("banana")
	h.waitSpoken(t, msgClarify)
	h.waitState(t, Listening)
}

func TestMachine_EmptyTranscription(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})

	h.listening(t)
	h.final("")

	h.waitSpoken(t, msgNothingUnderstood)
	h.waitState(t, Idle)
	if got := h.ext.TextsSnapshot(); len(got) != 0 {
		t.Fatalf("extractor called with %v for empty transcription", got)
	}
}

func TestMachine_ExtractorFailureApologizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.ext.Err = errors.New("backend down")

	h.listening(t)
	h.final("turn on the lights")

	h.waitSpoken(t, msgApology)
	h.waitState(t, Idle)
	if len(h.disp.DispatchedSnapshot()) != 0 {
		t.Fatal("intent dispatched despite extraction failure")
	}
}

func TestMachine_DispatcherFailureApologizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.ext.Result = intent.Intent{Type: "lights_on", Confidence: 0.95}
	h.disp.Err = errors.New("device unreachable")

	h.listening(t)
	h.final("turn on the lights")

	h.waitSpoken(t, msgApology)
	h.waitState(t, Idle)
}

func TestMachine_StopCommandTerminatesImmediately(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.listening(t)

	h.final("stop")

	h.waitState(t, Terminated)
	<-h.m.Done()
	if spoken := h.synth.SpokenSnapshot(); slices.Contains(spoken, msgConfirmStop) {
		t.Error("lone stop command asked for confirmation")
	}
	if h.m.MicActive() {
		t.Error("mic still active after termination")
	}
}

func TestMachine_StopDuringValidationBypassesConfirmation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.ext.Result = intent.Intent{Type: "set_timer", Confidence: 0.4, Summary: "set a timer"}

	h.listening(t)
	h.final("set a timer")
	h.waitState(t, IntentValidation)

	h.final("stop")
	h.waitState(t, Terminated)
	<-h.m.Done()
	if len(h.disp.DispatchedSnapshot()) != 0 {
		t.Fatal("pending intent dispatched after stop")
	}
}

func TestMachine_MidSentenceStopRequiresConfirmation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.listening(t)

	h.final("could you stop the music")
	h.waitSpoken(t, msgConfirmStop)
	h.waitState(t, IntentValidation)

	h.final("yes")
	h.waitState(t, Terminated)
	<-h.m.Done()
}

func TestMachine_MidSentenceStopDeclined(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.listening(t)

	h.final("could you stop the music")
	h.waitState(t, IntentValidation)

	h.final("no")
	h.waitState(t, Idle)
	if h.m.State() == Terminated {
		t.Fatal("declined stop still terminated the session")
	}
}

func TestMachine_StopIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.listening(t)

	h.m.Stop()
	h.m.Stop()
	<-h.m.Done()
	if h.m.State() != Terminated {
		t.Fatalf("state = %v, want %v", h.m.State(), Terminated)
	}
}

func TestMachine_CancelCommandClearsIntent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.ext.Result = intent.Intent{Type: "set_timer", Confidence: 0.4, Summary: "set a timer"}

	h.listening(t)
	h.final("set a timer")
	h.waitState(t, IntentValidation)

	h.final("cancel")
	h.waitSpoken(t, msgCancelled)
	h.waitState(t, Idle)
	if len(h.disp.DispatchedSnapshot()) != 0 {
		t.Fatal("cancelled intent was dispatched")
	}
	if h.src.Discards() == 0 {
		t.Error("cancel did not discard the active batch")
	}
}

func TestMachine_PauseAndResume(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.listening(t)

	h.final("pause")
	waitFor(t, "mic off", func() bool { return !h.m.MicActive() })

	// Non-command speech is ignored while paused.
	h.final("turn on the lights")
	time.Sleep(20 * time.Millisecond)
	if got := h.ext.TextsSnapshot(); len(got) != 0 {
		t.Fatalf("extractor called while paused: %v", got)
	}

	h.final("resume")
	h.waitState(t, Listening)
	waitFor(t, "mic on", h.m.MicActive)
}

func TestMachine_RestartReturnsToIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.ext.Result = intent.Intent{Type: "set_timer", Confidence: 0.4, Summary: "set a timer"}

	h.listening(t)
	h.final("set a timer")
	h.waitState(t, IntentValidation)

	h.final("restart")
	h.waitState(t, Idle)
	if h.src.Discards() == 0 {
		t.Error("restart did not discard the active batch")
	}
	if len(h.disp.DispatchedSnapshot()) != 0 {
		t.Fatal("pending intent dispatched after restart")
	}
}

func TestMachine_EchoSuppressedTranscription(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.listening(t)

	// The assistant just said this; the recognizer hears it back 0.8s later.
	h.echo.SpeakingStarted("Vous avez dit bonjour")
	h.echo.SpeakingFinished()
	h.final("vous avez dit bonjour")

	time.Sleep(20 * time.Millisecond)
	if got := h.ext.TextsSnapshot(); len(got) != 0 {
		t.Fatalf("self-echo reached the extractor: %v", got)
	}
	if h.m.State() != Listening {
		t.Fatalf("state = %v, want %v", h.m.State(), Listening)
	}
}

func TestMachine_PartialsDoNotTriggerProcessing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.listening(t)

	h.partial("set a")
	h.partial("set a timer")
	time.Sleep(20 * time.Millisecond)
	if got := h.ext.TextsSnapshot(); len(got) != 0 {
		t.Fatalf("extractor called for partial transcriptions: %v", got)
	}
	if h.m.State() != Listening {
		t.Fatalf("state = %v, want %v", h.m.State(), Listening)
	}
}

func TestMachine_MaxListenTimesOut(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Tick: 5 * time.Millisecond, MaxListen: 30 * time.Millisecond})
	h.listening(t)

	// No speech at all: the listening phase expires on its own.
	h.waitSpoken(t, msgNothingUnderstood)
	h.waitState(t, Idle)
}

func TestMachine_MaxListenWaitsForFlushedFinal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Tick: 5 * time.Millisecond, MaxListen: 30 * time.Millisecond})
	h.src.setFlushResult(true) // speech still in flight at the deadline
	h.ext.Result = intent.Intent{Type: "lights_on", Confidence: 0.95}
	h.disp.Result = dispatch.CommandResult{Success: true, Message: "Done."}

	h.listening(t)
	waitFor(t, "flush request", func() bool { return h.src.Flushes() > 0 })

	if h.m.State() != Listening {
		t.Fatalf("state = %v, want %v while awaiting the flushed final", h.m.State(), Listening)
	}

	// The flushed batch's transcription arrives and is processed in full.
	h.final("turn on the lights")
	h.waitSpoken(t, "Done.")
	h.waitState(t, Idle)

	if got := h.ext.TextsSnapshot(); len(got) != 1 || got[0] != "turn on the lights" {
		t.Fatalf("extracted texts = %v, want the flushed utterance", got)
	}
	if slices.Contains(h.synth.SpokenSnapshot(), msgNothingUnderstood) {
		t.Error("tail utterance discarded instead of awaited")
	}
}

func TestMachine_StatsCounters(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.ext.Result = intent.Intent{Type: "set_timer", Confidence: 0.95}
	h.disp.Result = dispatch.CommandResult{Success: true, Message: "Done."}

	h.m.NoteSegment()
	h.m.NoteSegment()
	h.m.NoteSegment()

	h.listening(t)
	h.final("set a timer")
	h.waitState(t, Idle)

	got := h.m.Stats()
	want := StatsSnapshot{Segments: 3, Batches: 1, Commands: 1}
	if got != want {
		t.Fatalf("Stats() = %+v, want %+v", got, want)
	}
}
