package session

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Command is one of the fixed global commands recognized with top priority
// in every state.
type Command int

const (
	// CmdNone means no global command was detected.
	CmdNone Command = iota

	// CmdStop terminates the whole session.
	CmdStop

	// CmdCancel discards the current intent.
	CmdCancel

	// CmdPause suspends the listening loop.
	CmdPause

	// CmdResume resumes a paused listening loop.
	CmdResume

	// CmdRestart forces a return to the idle state.
	CmdRestart
)

func (c Command) String() string {
	switch c {
	case CmdStop:
		return "stop"
	case CmdCancel:
		return "cancel"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdRestart:
		return "restart"
	default:
		return "none"
	}
}

// phoneticThreshold is the Jaro-Winkler floor for words that already match
// a command phonetically (Double Metaphone overlap).
const phoneticThreshold = 0.70

// commandEntry precomputes the phonetic codes of one command word.
type commandEntry struct {
	word    string
	cmd     Command
	primary string
	second  string
}

// CommandMatcher detects global commands in transcribed text. Recognizers
// routinely mangle short command words ("stob", "paws"), so detection is
// exact match first, then Double Metaphone overlap ranked by Jaro-Winkler,
// then pure Jaro-Winkler above a stricter threshold.
//
// CommandMatcher is read-only after construction and safe for concurrent
// use.
type CommandMatcher struct {
	fuzzyThreshold float64
	positionCutoff float64
	entries        []commandEntry
}

// NewCommandMatcher creates a matcher. fuzzyThreshold is the minimum
// Jaro-Winkler similarity for a non-phonetic match (default 0.85);
// positionCutoff is the position ratio at or above which a detected quit
// word executes without confirmation (default 0.75).
func NewCommandMatcher(fuzzyThreshold, positionCutoff float64) *CommandMatcher {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = 0.85
	}
	if positionCutoff <= 0 {
		positionCutoff = 0.75
	}

	words := map[string]Command{
		"stop":    CmdStop,
		"cancel":  CmdCancel,
		"pause":   CmdPause,
		"resume":  CmdResume,
		"restart": CmdRestart,
	}
	m := &CommandMatcher{
		fuzzyThreshold: fuzzyThreshold,
		positionCutoff: positionCutoff,
	}
	for w, c := range words {
		p, s := matchr.DoubleMetaphone(w)
		m.entries = append(m.entries, commandEntry{word: w, cmd: c, primary: p, second: s})
	}
	return m
}

// Detect scans text for a global command. immediate reports whether the
// command word sat late enough in the sentence (position ratio at or above
// the cutoff) to execute without confirmation; a lone command word is
// always immediate.
func (m *CommandMatcher) Detect(text string) (cmd Command, immediate bool) {
	words := tokenize(text)
	if len(words) == 0 {
		return CmdNone, false
	}

	for i, w := range words {
		if c := m.matchWord(w); c != CmdNone {
			ratio := float64(i+1) / float64(len(words))
			return c, ratio >= m.positionCutoff
		}
	}
	return CmdNone, false
}

// matchWord tests one token against all command words.
func (m *CommandMatcher) matchWord(w string) Command {
	for _, e := range m.entries {
		if w == e.word {
			return e.cmd
		}

		score := matchr.JaroWinkler(w, e.word, false)
		if score >= m.fuzzyThreshold {
			return e.cmd
		}
		if score >= phoneticThreshold {
			p, s := matchr.DoubleMetaphone(w)
			if (p != "" && (p == e.primary || p == e.second)) ||
				(s != "" && (s == e.primary || s == e.second)) {
				return e.cmd
			}
		}
	}
	return CmdNone
}

// tokenize lowercases text and splits it into words, dropping punctuation.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}
