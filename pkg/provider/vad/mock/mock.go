// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script Event responses and inspect the frames that were
// submitted for processing.
//
// Example:
//
//	sess := &mock.Session{
//	    EventResult: vad.Event{Speech: true, Probability: 0.9},
//	}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/mliane/voxpipe/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

var _ vad.Engine = (*Engine)(nil)

// ProcessFrameCall records a single invocation of Session.ProcessFrame.
type ProcessFrameCall struct {
	// Samples is a copy of the frame passed to ProcessFrame.
	Samples []float32
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// EventResult is returned by every ProcessFrame call when Script is empty.
	EventResult vad.Event

	// Script, when non-empty, is consumed one Event per ProcessFrame call.
	// After the script is exhausted, EventResult is returned.
	Script []vad.Event

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// ProcessFrameCalls records every call to ProcessFrame in order.
	ProcessFrameCalls []ProcessFrameCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// ProcessFrame records the call and returns the next scripted event.
func (s *Session) ProcessFrame(samples []float32) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	s.ProcessFrameCalls = append(s.ProcessFrameCalls, ProcessFrameCall{Samples: cp})
	if len(s.Script) > 0 {
		ev := s.Script[0]
		s.Script = s.Script[1:]
		return ev, s.ProcessFrameErr
	}
	return s.EventResult, s.ProcessFrameErr
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Resets reports how many times Reset was called. Safe to call while
// another goroutine is processing frames.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ResetCallCount
}

// Processed reports how many frames were submitted so far. Safe to call
// while another goroutine is processing frames.
func (s *Session) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ProcessFrameCalls)
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

var _ vad.SessionHandle = (*Session)(nil)
