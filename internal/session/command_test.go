package session

import "testing"

func TestCommandMatcher_Detect(t *testing.T) {
	t.Parallel()

	m := NewCommandMatcher(0, 0)

	tests := []struct {
		name          string
		text          string
		wantCmd       Command
		wantImmediate bool
	}{
		{"lone stop", "stop", CmdStop, true},
		{"lone cancel", "cancel", CmdCancel, true},
		{"lone pause", "pause", CmdPause, true},
		{"lone resume", "resume", CmdResume, true},
		{"lone restart", "restart", CmdRestart, true},
		{"trailing stop", "turn off the music and stop", CmdStop, true},
		{"leading stop", "stop the music now please", CmdStop, false},
		{"mid sentence stop", "could you stop the music", CmdStop, false},
		{"fuzzy misrecognition", "stob", CmdStop, true},
		{"phonetic misrecognition", "paws", CmdPause, true},
		{"punctuation and case", "Stop!", CmdStop, true},
		{"no command", "turn on the lights", CmdNone, false},
		{"empty text", "", CmdNone, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cmd, immediate := m.Detect(tc.text)
			if cmd != tc.wantCmd || immediate != tc.wantImmediate {
				t.Errorf("Detect(%q) = (%v, %v), want (%v, %v)",
					tc.text, cmd, immediate, tc.wantCmd, tc.wantImmediate)
			}
		})
	}
}

func TestCommandMatcher_PositionCutoff(t *testing.T) {
	t.Parallel()

	// A cutoff of 0.5 makes a command word halfway through the sentence
	// immediate already.
	m := NewCommandMatcher(0.85, 0.5)

	cmd, immediate := m.Detect("one stop three four")
	if cmd != CmdStop || immediate {
		t.Fatalf("Detect = (%v, %v), want (%v, false)", cmd, immediate, CmdStop)
	}
	cmd, immediate = m.Detect("one stop")
	if cmd != CmdStop || !immediate {
		t.Fatalf("Detect = (%v, %v), want (%v, true)", cmd, immediate, CmdStop)
	}
}
