package llmintent

import "testing"

func TestParseIntent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		content        string
		wantType       string
		wantConfidence float64
	}{
		{
			name:           "clean JSON",
			content:        `{"type":"set_timer","parameters":{"duration":"5m"},"confidence":0.92,"summary":"Set a timer for five minutes."}`,
			wantType:       "set_timer",
			wantConfidence: 0.92,
		},
		{
			name:           "fenced JSON",
			content:        "```json\n{\"type\":\"play_music\",\"confidence\":0.8,\"summary\":\"Play music.\"}\n```",
			wantType:       "play_music",
			wantConfidence: 0.8,
		},
		{
			name:           "prose around JSON",
			content:        `Sure! Here is the classification: {"type":"weather","confidence":0.7,"summary":"Weather report."} Hope that helps.`,
			wantType:       "weather",
			wantConfidence: 0.7,
		},
		{
			name:           "not JSON at all",
			content:        "I could not classify this.",
			wantType:       "unknown",
			wantConfidence: 0,
		},
		{
			name:           "missing type",
			content:        `{"confidence":0.9}`,
			wantType:       "unknown",
			wantConfidence: 0,
		},
		{
			name:           "confidence clamped high",
			content:        `{"type":"stop","confidence":3.5}`,
			wantType:       "stop",
			wantConfidence: 1,
		},
		{
			name:           "confidence clamped low",
			content:        `{"type":"stop","confidence":-1}`,
			wantType:       "stop",
			wantConfidence: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			it := parseIntent("raw text", tc.content)
			if it.Type != tc.wantType {
				t.Errorf("Type = %q, want %q", it.Type, tc.wantType)
			}
			if it.Confidence != tc.wantConfidence {
				t.Errorf("Confidence = %f, want %f", it.Confidence, tc.wantConfidence)
			}
			if it.RawText != "raw text" {
				t.Errorf("RawText = %q, want %q", it.RawText, "raw text")
			}
		})
	}
}
