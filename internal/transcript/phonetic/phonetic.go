// Package phonetic implements the [transcript.Matcher] interface using Double
// Metaphone phonetic encoding combined with Jaro-Winkler string similarity.
//
// Matching proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each token of the input span and each token of every vocabulary entry.
//     Any code overlap makes the entry a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the entry with the
//     highest Jaro-Winkler similarity (on the original strings,
//     case-insensitive) wins, provided it clears the phonetic threshold.
//     When nothing matched phonetically, a stricter pure-similarity pass
//     catches near-miss spellings the encoder cannot align.
//
// Multi-word entries ("wisdom tooth extraction", "Dr. Nowak") are handled by
// comparing full strings, concatenated strings, and the best pairwise token
// score, so a single misheard word inside a phrase still ranks the phrase.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched entry to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher scores transcript spans against a vocabulary. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the vocabulary entry most phonetically similar to span.
// span may be a single word or a space-separated n-gram.
//
// When matched is false, corrected equals span unchanged and confidence is 0.
func (m *Matcher) Match(span string, vocabulary []string) (corrected string, confidence float64, matched bool) {
	if len(vocabulary) == 0 || strings.TrimSpace(span) == "" {
		return span, 0, false
	}

	spanLower := strings.ToLower(strings.TrimSpace(span))
	spanTokens := strings.Fields(spanLower)
	spanCodes := codesForTokens(spanTokens)

	type candidate struct {
		entry    string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, entry := range vocabulary {
		entryLower := strings.ToLower(strings.TrimSpace(entry))
		if entryLower == "" {
			continue
		}
		entryTokens := strings.Fields(entryLower)

		phoneticHit := codesOverlap(spanCodes, codesForTokens(entryTokens))
		score := bestSimilarity(spanTokens, entryTokens, spanLower, entryLower)

		if phoneticHit {
			if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{entry: entry, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
			best = candidate{entry: entry, score: score}
		}
	}

	if best.entry == "" {
		return span, 0, false
	}
	return best.entry, best.score, true
}

// codesForTokens returns the union of all Double Metaphone codes for the
// tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity computes the highest Jaro-Winkler score between the span and
// the entry: full strings, space-stripped strings, and the best pairwise
// token score. The pairwise pass handles the common case where one misheard
// word sits inside an otherwise intact phrase.
func bestSimilarity(spanTokens, entryTokens []string, spanFull, entryFull string) float64 {
	score := matchr.JaroWinkler(spanFull, entryFull, false)

	if len(spanTokens) > 1 || len(entryTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(spanTokens, ""), strings.Join(entryTokens, ""), false); s > score {
			score = s
		}
	}

	for _, st := range spanTokens {
		for _, et := range entryTokens {
			if s := matchr.JaroWinkler(st, et, false); s > score {
				score = s
			}
		}
	}

	return score
}
