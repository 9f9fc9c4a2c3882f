package batch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/mliane/voxpipe/internal/observe"
	"github.com/mliane/voxpipe/pkg/audio"
	"github.com/mliane/voxpipe/pkg/provider/stt"
)

// Event is one transcription outcome delivered to the consumer. A final
// event always reflects the complete accumulated audio of its batch at
// finalization time; partial events carry no ordering guarantee and may be
// dropped when superseded.
type Event struct {
	// BatchID identifies the batch the transcription belongs to.
	BatchID uint64

	// Text is the recognized text. Empty when the recognizer failed or
	// produced nothing.
	Text string

	// Confidence is the recognizer's confidence in Text, in [0, 1].
	Confidence float64

	// IsFinal distinguishes final transcriptions from partials.
	IsFinal bool
}

// Config tunes the [Batcher]. Zero-value fields get defaults.
type Config struct {
	// SampleRate is the pipeline sample rate in Hz. Default: 16000.
	SampleRate int

	// ShortPause is the silence gap that finalizes a batch which already
	// has enough content. Default: 1s.
	ShortPause time.Duration

	// LongPauseBase is the base silence gap that finalizes any batch. The
	// effective threshold scales up with batch duration. Default: 2s.
	LongPauseBase time.Duration

	// PauseScale controls how much the long-pause threshold grows with
	// batch duration. Default: 1.0.
	PauseScale float64

	// MinSegment is the floor below which a lone speech segment cannot
	// start a batch on its own; shorter segments are carried over and
	// merged into the batch once enough audio has arrived. Default: 100ms.
	MinSegment time.Duration

	// MaxBatch is the hard cap on accumulated audio; reaching it finalizes
	// immediately. Default: 8s.
	MaxBatch time.Duration

	// PartialEvery schedules a partial transcription after this many
	// speech segments. Default: 3.
	PartialEvery int

	// PartialWindow bounds how much trailing audio a partial uses.
	// Default: 2s.
	PartialWindow time.Duration

	// QueueSize is the segment queue depth between the capture loop and
	// the run loop. Default: 256.
	QueueSize int

	// Workers bounds concurrently running partial transcriptions.
	// Default: 2.
	Workers int

	// Tick is the housekeeping interval for pause detection when no
	// segment arrives. Default: 100ms.
	Tick time.Duration
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.ShortPause <= 0 {
		c.ShortPause = time.Second
	}
	if c.LongPauseBase <= 0 {
		c.LongPauseBase = 2 * time.Second
	}
	if c.PauseScale <= 0 {
		c.PauseScale = 1.0
	}
	if c.MinSegment <= 0 {
		c.MinSegment = 100 * time.Millisecond
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 8 * time.Second
	}
	if c.PartialEvery <= 0 {
		c.PartialEvery = 3
	}
	if c.PartialWindow <= 0 {
		c.PartialWindow = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Tick <= 0 {
		c.Tick = 100 * time.Millisecond
	}
}

// contentSegments and contentAudio are the minimums a batch needs before
// the short-pause shortcut may finalize it.
const (
	contentSegments = 2
	contentAudio    = 500 * time.Millisecond
)

// Batcher accumulates speech segments into batches and drives partial and
// final transcriptions. AddSegment never blocks; all heuristics run on a
// single internal loop.
type Batcher struct {
	cfg Config
	rec stt.Recognizer

	segs    chan audio.Segment
	discard chan struct{}
	flush   chan chan bool
	events  chan Event
	quit    chan struct{}
	done    chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	dropped atomic.Int64

	// Partial supersession: seq numbers increase per scheduled partial;
	// results older than the last delivered one are discarded. finalized
	// tracks the highest finalized batch ID so stale partials for closed
	// batches are dropped too.
	partialSeq atomic.Uint64
	delivered  atomic.Uint64
	finalized  atomic.Uint64

	pool *errgroup.Group

	// Run-loop state, touched only by run().
	active       *Batch
	carry        []audio.Segment
	carryDur     time.Duration
	sincePartial int
	nextID       uint64

	finals  chan *Batch
	finalWG sync.WaitGroup
}

// New creates a Batcher and starts its run loop. Call [Batcher.Stop] to
// shut it down.
func New(cfg Config, rec stt.Recognizer) *Batcher {
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	pool := &errgroup.Group{}
	pool.SetLimit(cfg.Workers)

	b := &Batcher{
		cfg:     cfg,
		rec:     rec,
		segs:    make(chan audio.Segment, cfg.QueueSize),
		discard: make(chan struct{}, 1),
		flush:   make(chan chan bool),
		events:  make(chan Event, 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		pool:    pool,
		finals:  make(chan *Batch, 8),
	}

	b.finalWG.Add(1)
	go b.finalLoop()
	go b.run()
	return b
}

// Events returns the transcription event stream. The channel is closed
// after Stop completes.
func (b *Batcher) Events() <-chan Event {
	return b.events
}

// AddSegment hands a classified segment to the batcher. It never blocks:
// when the queue is full the segment is dropped and counted as a transient
// loss. Segments added after Stop are discarded.
func (b *Batcher) AddSegment(seg audio.Segment) {
	select {
	case <-b.quit:
		return
	default:
	}
	select {
	case b.segs <- seg:
	default:
		n := b.dropped.Add(1)
		observe.DefaultMetrics().SegmentsDropped.Add(context.Background(), 1)
		if n == 1 || n%100 == 0 {
			slog.Warn("segment queue full, dropping", "dropped_total", n)
		}
	}
}

// Discard asks the run loop to throw away the active batch without
// transcribing it, e.g. because the assistant started speaking.
func (b *Batcher) Discard() {
	select {
	case b.discard <- struct{}{}:
	default:
	}
}

// Flush asks the run loop to finalize the active batch immediately, without
// waiting for a pause, e.g. because the listening deadline expired with
// speech still in flight. It reports whether a batch was promoted to a
// final; when true, the final event arrives on Events once transcription
// completes. After Stop, Flush reports false.
func (b *Batcher) Flush() bool {
	reply := make(chan bool, 1)
	select {
	case b.flush <- reply:
	case <-b.done:
		return false
	}
	select {
	case flushed := <-reply:
		return flushed
	case <-b.done:
		return false
	}
}

// Dropped reports how many segments were lost to queue overflow.
func (b *Batcher) Dropped() int64 {
	return b.dropped.Load()
}

// Stop shuts the batcher down: the active batch, if any, is flushed as a
// final transcription, workers are joined, and the events channel is
// closed. Stop is idempotent. If ctx expires before shutdown completes,
// in-flight recognizer calls are cancelled and ctx's error is returned.
func (b *Batcher) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.quit) })
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		b.cancel()
		<-b.done
		return ctx.Err()
	}
}

// ─── Run loop ────────────────────────────────────────────────────────────────

func (b *Batcher) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-b.quit:
			// Drain segments that raced with the stop signal, then flush.
		drain:
			for {
				select {
				case seg := <-b.segs:
					b.handleSegment(seg)
				default:
					break drain
				}
			}
			if b.active != nil {
				b.finalize("flush")
			}
			close(b.finals)
			b.finalWG.Wait()
			_ = b.pool.Wait()
			b.cancel()
			close(b.events)
			return

		case <-b.discard:
			b.dropActive()

		case reply := <-b.flush:
			// Carried micro-segments are promoted so a short trailing
			// utterance is not silently lost at the deadline.
			if b.active == nil && len(b.carry) > 0 {
				b.openBatch()
			}
			flushed := b.active != nil
			if flushed {
				b.finalize("deadline")
			}
			reply <- flushed

		case seg := <-b.segs:
			b.handleSegment(seg)

		case <-ticker.C:
			if b.active != nil {
				b.checkPause(time.Now())
			}
		}
	}
}

func (b *Batcher) handleSegment(seg audio.Segment) {
	observe.DefaultMetrics().RecordSegment(b.ctx, seg.HasSpeech)

	if !seg.HasSpeech {
		if b.active != nil {
			b.checkPause(seg.Timestamp.Add(seg.Duration))
		}
		return
	}

	if b.active == nil {
		// Degenerate micro-segments are carried until enough audio exists
		// to open a batch, so the first phoneme of an utterance is never
		// lost.
		b.carry = append(b.carry, seg)
		b.carryDur += seg.Duration
		if b.carryDur < b.cfg.MinSegment {
			return
		}
		b.openBatch()
		return
	}

	b.active.add(seg)
	b.active.State = Active
	b.sincePartial++

	if b.active.Duration() >= b.cfg.MaxBatch {
		b.finalize("cap")
		return
	}
	if b.sincePartial >= b.cfg.PartialEvery {
		b.schedulePartial()
		b.sincePartial = 0
	}
}

// openBatch promotes the carried segments into a new active batch.
func (b *Batcher) openBatch() {
	b.nextID++
	b.active = &Batch{ID: b.nextID, State: Active}
	for _, seg := range b.carry {
		b.active.add(seg)
	}
	b.sincePartial = len(b.carry)
	b.carry = nil
	b.carryDur = 0

	observe.DefaultMetrics().ActiveBatches.Add(b.ctx, 1)
	slog.Debug("batch opened", "batch_id", b.active.ID)

	if b.active.Duration() >= b.cfg.MaxBatch {
		b.finalize("cap")
	}
}

// checkPause applies the pause heuristics as of the given instant.
func (b *Batcher) checkPause(now time.Time) {
	pause := now.Sub(b.active.LastActivity)
	if pause <= 0 {
		return
	}

	hasContent := len(b.active.Segments) >= contentSegments &&
		b.active.Duration() >= contentAudio

	switch {
	case hasContent && pause > b.cfg.ShortPause:
		b.finalize("short_pause")
	case pause > b.longPause():
		b.finalize("long_pause")
	case pause > b.cfg.ShortPause/2:
		b.active.State = Paused
	}
}

// longPause is the adaptive finalization threshold: longer batches tolerate
// longer mid-sentence pauses, up to 3× the base.
func (b *Batcher) longPause() time.Duration {
	ratio := float64(b.active.Duration()) / float64(b.cfg.MaxBatch)
	scaled := time.Duration(float64(b.cfg.LongPauseBase) * (1 + ratio*b.cfg.PauseScale))
	if limit := 3 * b.cfg.LongPauseBase; scaled > limit {
		return limit
	}
	return scaled
}

// recognizeKind tags a RecognizeDuration sample as partial or final.
func recognizeKind(kind string) metric.RecordOption {
	return metric.WithAttributes(observe.Attr("kind", kind))
}

func (b *Batcher) finalize(reason string) {
	batch := b.active
	batch.State = Completed
	b.active = nil
	b.sincePartial = 0
	b.finalized.Store(batch.ID)

	m := observe.DefaultMetrics()
	m.RecordBatch(b.ctx, reason)
	m.ActiveBatches.Add(b.ctx, -1)
	slog.Debug("batch finalized",
		"batch_id", batch.ID,
		"reason", reason,
		"segments", len(batch.Segments),
		"duration", batch.Duration(),
	)

	// The final loop owns the batch from here; ordering of finals is
	// preserved by the single channel.
	select {
	case b.finals <- batch:
	case <-b.ctx.Done():
	}
}

func (b *Batcher) dropActive() {
	if b.active == nil {
		return
	}
	slog.Debug("batch discarded", "batch_id", b.active.ID, "segments", len(b.active.Segments))
	b.finalized.Store(b.active.ID)
	observe.DefaultMetrics().ActiveBatches.Add(b.ctx, -1)
	b.active = nil
	b.sincePartial = 0
	b.carry = nil
	b.carryDur = 0
}

// ─── Transcription workers ───────────────────────────────────────────────────

// schedulePartial transcribes the trailing window of the active batch on
// the worker pool. A partial that loses the race against a newer partial,
// or whose batch is already finalized, is dropped.
func (b *Batcher) schedulePartial() {
	window := int(b.cfg.PartialWindow.Seconds() * float64(b.cfg.SampleRate))
	samples := b.active.Samples
	if len(samples) > window {
		samples = samples[len(samples)-window:]
	}
	cp := make([]float32, len(samples))
	copy(cp, samples)

	batchID := b.active.ID
	seq := b.partialSeq.Add(1)

	b.pool.Go(func() error {
		m := observe.DefaultMetrics()
		start := time.Now()
		tr, err := b.rec.Recognize(b.ctx, cp, stt.RecognizeOptions{})
		m.RecognizeDuration.Record(b.ctx, time.Since(start).Seconds(),
			recognizeKind("partial"))
		if err != nil {
			if b.ctx.Err() == nil {
				slog.Warn("partial transcription failed", "batch_id", batchID, "err", err)
				m.RecordProviderError(b.ctx, "stt", "partial")
			}
			return nil
		}
		b.deliverPartial(batchID, seq, tr)
		return nil
	})
}

// deliverPartial publishes a partial result unless it was superseded.
func (b *Batcher) deliverPartial(batchID, seq uint64, tr stt.Transcript) {
	if batchID <= b.finalized.Load() {
		observe.DefaultMetrics().PartialsSuperseded.Add(b.ctx, 1)
		return
	}
	for {
		last := b.delivered.Load()
		if seq <= last {
			observe.DefaultMetrics().PartialsSuperseded.Add(b.ctx, 1)
			return
		}
		if b.delivered.CompareAndSwap(last, seq) {
			break
		}
	}

	ev := Event{BatchID: batchID, Text: tr.Text, Confidence: tr.Confidence}
	select {
	case b.events <- ev:
	default:
		// Consumer stalled; partials are best-effort.
	}
}

// finalLoop serializes final transcriptions so final results preserve batch
// order.
func (b *Batcher) finalLoop() {
	defer b.finalWG.Done()

	for batch := range b.finals {
		ctx, span := observe.StartSpan(b.ctx, "finalize-batch")
		m := observe.DefaultMetrics()

		start := time.Now()
		tr, err := b.rec.Recognize(ctx, batch.Samples, stt.RecognizeOptions{Alignment: true})
		m.RecognizeDuration.Record(ctx, time.Since(start).Seconds(),
			recognizeKind("final"))
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("final transcription failed", "batch_id", batch.ID, "err", err)
				m.RecordProviderError(ctx, "stt", "final")
			}
			tr = stt.Transcript{}
		}
		span.End()

		ev := Event{BatchID: batch.ID, Text: tr.Text, Confidence: tr.Confidence, IsFinal: true}
		select {
		case b.events <- ev:
		case <-b.ctx.Done():
			return
		}
	}
}
