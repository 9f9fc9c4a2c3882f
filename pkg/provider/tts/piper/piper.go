// Package piper implements tts.Synthesizer backed by a locally-running
// Piper HTTP server.
//
// Synthesis is one POST per utterance: the server returns a complete WAV
// file, whose header gives the exact play time fed back to the echo
// suppression window. Playback is delegated to an external player command
// (aplay by default) that reads the WAV from stdin; Synthesize blocks until
// the player exits, matching the tts.Synthesizer contract.
package piper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/mliane/voxpipe/pkg/provider/tts"
)

const (
	defaultTimeout = 30 * time.Second
	defaultPlayer  = "aplay -q -"

	// maxResponseBytes caps the WAV size read from the server (~5 min of
	// 22.05 kHz mono PCM).
	maxResponseBytes = 16 << 20
)

// Option is a functional option for configuring a piper Synthesizer.
type Option func(*Synthesizer)

// WithVoice sets the voice model name sent to the server. When empty, the
// server's default voice is used.
func WithVoice(voice string) Option {
	return func(s *Synthesizer) { s.voice = voice }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.httpClient.Timeout = d }
}

// WithPlayer sets the playback command the WAV is piped into. An empty
// command disables playback; Synthesize then returns as soon as the audio
// has been received. Defaults to "aplay -q -".
func WithPlayer(command string) Option {
	return func(s *Synthesizer) { s.player = command }
}

// Synthesizer is a Piper-server-backed speech synthesizer. Safe for
// concurrent use; each call is an independent HTTP request.
type Synthesizer struct {
	serverURL  string
	voice      string
	player     string
	httpClient *http.Client
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// New creates a Synthesizer targeting the Piper HTTP server at serverURL
// (e.g., "http://localhost:5000").
func New(serverURL string, opts ...Option) (*Synthesizer, error) {
	if serverURL == "" {
		return nil, errors.New("piper: serverURL must not be empty")
	}
	s := &Synthesizer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		player:     defaultPlayer,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// synthesisRequest is the JSON body sent to the server.
type synthesisRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize renders text to speech and plays it. The returned duration is
// taken from the WAV header, not from wall time, so it stays accurate even
// when playback is disabled.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.SpeechResult, error) {
	body, err := json.Marshal(synthesisRequest{Text: text, Voice: s.voice})
	if err != nil {
		return tts.SpeechResult{}, fmt.Errorf("piper: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/", bytes.NewReader(body))
	if err != nil {
		return tts.SpeechResult{}, fmt.Errorf("piper: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return tts.SpeechResult{}, fmt.Errorf("piper: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tts.SpeechResult{}, fmt.Errorf("piper: server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return tts.SpeechResult{}, fmt.Errorf("piper: read audio: %w", err)
	}

	duration, err := wavDuration(wav)
	if err != nil {
		return tts.SpeechResult{}, fmt.Errorf("piper: %w", err)
	}

	if s.player != "" {
		if err := s.play(ctx, wav); err != nil {
			return tts.SpeechResult{}, fmt.Errorf("piper: playback: %w", err)
		}
	}

	return tts.SpeechResult{AudioDuration: duration}, nil
}

// play pipes the WAV into the player command and waits for it to exit.
func (s *Synthesizer) play(ctx context.Context, wav []byte) error {
	parts := strings.Fields(s.player)
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stdin = bytes.NewReader(wav)
	return cmd.Run()
}

// wavDuration walks the RIFF chunk list and computes the play time from the
// fmt chunk's byte rate and the data chunk's length.
func wavDuration(wav []byte) (time.Duration, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0, errors.New("response is not a WAV file")
	}

	var byteRate uint32
	var dataLen int

	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(wav) {
			size = len(wav) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return 0, errors.New("malformed fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(wav[body+8 : body+12])
		case "data":
			dataLen = size
		}

		// Chunks are word-aligned.
		pos = body + size + size%2
	}

	if byteRate == 0 {
		return 0, errors.New("fmt chunk missing or byte rate zero")
	}
	return time.Duration(dataLen) * time.Second / time.Duration(byteRate), nil
}
