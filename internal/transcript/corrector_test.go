package transcript

import (
	"strings"
	"testing"

	"github.com/aishwarymishra09/voice-chat-be/internal/transcript/phonetic"
)

// stubMatcher matches spans by exact lowercase lookup in a fixed table.
type stubMatcher struct {
	table map[string]string
}

func (s *stubMatcher) Match(span string, _ []string) (string, float64, bool) {
	if entry, ok := s.table[strings.ToLower(span)]; ok {
		return entry, 0.9, true
	}
	return span, 0, false
}

func TestCorrect_SingleWord(t *testing.T) {
	t.Parallel()

	c := New(&stubMatcher{table: map[string]string{"kraun": "crown"}}, []string{"crown"})

	got := c.Correct("I need a kraun replaced")
	if got.Corrected != "I need a crown replaced" {
		t.Errorf("Corrected = %q", got.Corrected)
	}
	if len(got.Corrections) != 1 {
		t.Fatalf("got %d corrections, want 1", len(got.Corrections))
	}
	corr := got.Corrections[0]
	if corr.Original != "kraun" || corr.Corrected != "crown" {
		t.Errorf("correction = %+v", corr)
	}
	if corr.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", corr.Confidence)
	}
}

func TestCorrect_LongestWindowWins(t *testing.T) {
	t.Parallel()

	// Both "root" alone and "root kanal" would match; the two-word window
	// must take precedence.
	c := New(&stubMatcher{table: map[string]string{
		"root":       "root canal",
		"root kanal": "root canal",
	}}, []string{"root canal"})

	got := c.Correct("about my root kanal appointment")
	if got.Corrected != "about my root canal appointment" {
		t.Errorf("Corrected = %q", got.Corrected)
	}
	if len(got.Corrections) != 1 {
		t.Fatalf("got %d corrections, want 1", len(got.Corrections))
	}
	if got.Corrections[0].Original != "root kanal" {
		t.Errorf("Original = %q, want the full window", got.Corrections[0].Original)
	}
}

func TestCorrect_ExactHitNotRecorded(t *testing.T) {
	t.Parallel()

	c := New(&stubMatcher{table: map[string]string{"crown": "crown"}}, []string{"crown"})

	got := c.Correct("the crown fell out")
	if got.Corrected != "the crown fell out" {
		t.Errorf("Corrected = %q", got.Corrected)
	}
	if len(got.Corrections) != 0 {
		t.Errorf("exact hits should not be recorded as corrections, got %+v", got.Corrections)
	}
}

func TestCorrect_PassThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		c    *Corrector
		text string
	}{
		{"nil matcher", New(nil, []string{"crown"}), "hello there"},
		{"empty vocabulary", New(&stubMatcher{}, nil), "hello there"},
		{"empty text", New(&stubMatcher{}, []string{"crown"}), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.c.Correct(tt.text)
			if got.Corrected != tt.text {
				t.Errorf("Corrected = %q, want unchanged %q", got.Corrected, tt.text)
			}
			if got.Corrections == nil || len(got.Corrections) != 0 {
				t.Errorf("Corrections = %v, want empty non-nil slice", got.Corrections)
			}
		})
	}
}

func TestCorrect_WithPhoneticMatcher(t *testing.T) {
	t.Parallel()

	vocabulary := []string{"root canal", "fluoride", "Dr. Nowak"}
	c := New(phonetic.New(), vocabulary)

	got := c.Correct("is the floride treatment covered")
	if !strings.Contains(got.Corrected, "fluoride") {
		t.Errorf("Corrected = %q, want fluoride substituted", got.Corrected)
	}
	if len(got.Corrections) == 0 {
		t.Error("expected at least one correction")
	}
}
