// Package whisper implements stt.Recognizer on top of the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all Recognize
// calls; each call creates its own whisper context, so partial and final
// recognitions can run concurrently.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/mliane/voxpipe/pkg/provider/stt"
)

const defaultLanguage = "en"

// Recognizer implements [stt.Recognizer] using whisper.cpp.
type Recognizer struct {
	model    whisperlib.Model
	language string
}

var _ stt.Recognizer = (*Recognizer)(nil)

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the default transcription language code (e.g., "en",
// "fr"). A per-request language in RecognizeOptions takes precedence.
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// New creates a Recognizer that loads the whisper.cpp model from the given
// file path. The caller must call Close when the recognizer is no longer
// needed.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Recognize runs whisper.cpp inference over the given mono float32 samples.
// Whisper expects 16 kHz input; the caller is responsible for resampling.
//
// Each call creates a fresh whisper context — contexts are not thread-safe
// but the model can be shared, so concurrent Recognize calls are allowed.
func (r *Recognizer) Recognize(ctx context.Context, samples []float32, opts stt.RecognizeOptions) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(samples) == 0 {
		return stt.Transcript{IsFinal: opts.Alignment}, nil
	}

	wctx, err := r.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = r.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts      []string
		words      []stt.WordTiming
		confSum    float64
		tokenCount int
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)

		for _, tok := range segment.Tokens {
			confSum += float64(tok.P)
			tokenCount++
		}
		if opts.Alignment {
			words = append(words, stt.WordTiming{
				Word:  text,
				Start: segment.Start.Seconds(),
				End:   segment.End.Seconds(),
			})
		}
	}

	tr := stt.Transcript{
		Text:    strings.Join(parts, " "),
		IsFinal: opts.Alignment,
		Words:   words,
	}
	if tokenCount > 0 {
		tr.Confidence = confSum / float64(tokenCount)
	}
	return tr, nil
}
