// Package transcript corrects speech-to-text output against the clinic's
// domain vocabulary.
//
// Raw STT output regularly mangles dental terminology and staff names —
// "root canal" comes back as "route kanal", "Dr. Nowak" as "doctor no whack".
// The [Corrector] aligns whitespace-separated tokens (and multi-word n-grams)
// from the transcript against a configured vocabulary using phonetic encoding
// plus string similarity, and substitutes the canonical spelling when the
// match is confident enough.
//
// Correction is fully in-process with no network calls, so it runs on every
// turn without affecting the response latency budget. Each [Correction]
// records the substitution and its confidence so callers can log or audit
// the changes.
package transcript

import (
	"strings"
)

// Correction captures a single substitution made by the corrector.
type Correction struct {
	// Original is the token span as produced by the STT provider.
	Original string

	// Corrected is the canonical vocabulary entry that replaced it.
	Corrected string

	// Confidence is the similarity score of the match (0.0–1.0).
	Confidence float64
}

// Result pairs the original transcript text with the corrected text and an
// itemised record of every substitution applied.
type Result struct {
	// Original is the raw text as received from the STT provider.
	Original string

	// Corrected is the text with all substitutions applied. When no
	// corrections were necessary it equals Original.
	Corrected string

	// Corrections is the ordered list of substitutions. Empty (non-nil)
	// when nothing was changed.
	Corrections []Correction
}

// Matcher resolves a token span to a known vocabulary entry based on
// pronunciation similarity. Implementations must be safe for concurrent use
// and fast enough for per-turn use without a latency budget of their own.
type Matcher interface {
	// Match attempts to find the vocabulary entry most phonetically similar
	// to span. When matched is false, corrected equals span unchanged and
	// confidence is 0.
	Match(span string, vocabulary []string) (corrected string, confidence float64, matched bool)
}

// Corrector applies vocabulary alignment to whole transcripts.
// The zero value performs no corrections; construct with [New].
//
// Corrector is safe for concurrent use — it is read-only after construction.
type Corrector struct {
	matcher    Matcher
	vocabulary []string
	maxWords   int
}

// New builds a Corrector that aligns transcripts against vocabulary using the
// given matcher. A nil matcher or empty vocabulary yields a pass-through
// corrector.
func New(matcher Matcher, vocabulary []string) *Corrector {
	return &Corrector{
		matcher:    matcher,
		vocabulary: vocabulary,
		maxWords:   maxWordCount(vocabulary),
	}
}

// Correct tokenises text and tests every token position against the
// vocabulary. At each position, n-gram windows from the longest vocabulary
// entry down to a single token are tried; the longest matching window wins so
// that "root canal" takes precedence over a partial match on "root".
func (c *Corrector) Correct(text string) Result {
	result := Result{
		Original:    text,
		Corrected:   text,
		Corrections: []Correction{},
	}
	if c.matcher == nil || len(c.vocabulary) == 0 {
		return result
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return result
	}

	var output []string
	i := 0
	for i < len(tokens) {
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			entry, conf, ok := c.matcher.Match(window, c.vocabulary)
			if !ok {
				continue
			}

			// Exact (case-insensitive) hits are already spelled right;
			// consume the window as-is without recording a correction.
			if strings.EqualFold(window, entry) {
				output = append(output, tokens[i:i+n]...)
				i += n
				matched = true
				break
			}

			output = append(output, strings.Fields(entry)...)
			result.Corrections = append(result.Corrections, Correction{
				Original:   window,
				Corrected:  entry,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	result.Corrected = strings.Join(output, " ")
	return result
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any vocabulary entry. Returns 1 when vocabulary is empty.
func maxWordCount(vocabulary []string) int {
	max := 1
	for _, v := range vocabulary {
		if n := len(strings.Fields(v)); n > max {
			max = n
		}
	}
	return max
}
