package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/llm"
	"github.com/aishwarymishra09/voice-chat-be/pkg/types"
)

// incompleteSuffixes mark an utterance as unfinished when the trimmed,
// lowercased text ends with one of them.
var incompleteSuffixes = []string{
	"...",
	"…",
	" and",
	" so",
	" but",
	" or",
	" because",
	" with",
	" to",
	" for",
	" my",
	" the",
	" a",
	"i want to",
	"i need to",
	"i'm trying to",
	"so basically",
}

// shortStarters mark a very short utterance as unfinished when it begins with
// one of them: "I want" on its own is an opener, not a request. Longer
// utterances ("tell me what I want") are judged by their endings instead.
var shortStarters = []string{"i want", "i need", "can you", "could you", "would you"}

// shortStarterMaxWords bounds the starter rule to utterances short enough to
// be a trailing-off opener.
const shortStarterMaxWords = 3

// questionWords start utterances that read as questions; without a terminal
// question mark the caller has likely not finished asking.
var questionWords = []string{"who", "what", "where", "when", "why", "how", "which"}

// hedgeWords at the end of an utterance leave the rule pass undecided and
// trigger arbitration when an arbiter is configured.
var hedgeWords = []string{"um", "uh", "uhm", "like", "hmm", "well", "erm"}

// GateOption configures a [Gate].
type GateOption func(*Gate)

// WithArbiter attaches a language model used for a single yes/no arbitration
// call when the rule pass is undecided. Nil (the default) disables the slow
// tier entirely.
func WithArbiter(provider llm.Provider) GateOption {
	return func(g *Gate) { g.arbiter = provider }
}

// WithGateLogger sets the structured logger. Defaults to slog.Default().
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

// Gate decides whether an utterance is linguistically complete. The fast
// tier is a rule list over sentence endings; the optional slow tier asks a
// language model a yes/no question, at most once per turn.
//
// Gate is safe for concurrent use.
type Gate struct {
	arbiter llm.Provider
	logger  *slog.Logger
}

// NewGate builds a Gate with the supplied options.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{logger: slog.Default()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Incomplete reports whether text looks like an unfinished utterance the
// caller is still going to extend.
//
// The rule tier fires on trailing conjunctions and openers ("...", "and",
// "I want to", …) and on question-word starts without a terminal "?". When
// the rules find nothing but the text trails off into a hedge word, the
// arbiter (when configured) gets one yes/no call; arbitration errors fall
// back to treating the text as complete so a model outage never wedges a
// turn open.
func (g *Gate) Incomplete(ctx context.Context, text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)

	for _, suffix := range incompleteSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}

	if len(strings.Fields(lower)) <= shortStarterMaxWords && startsWithOpener(lower) {
		return true
	}

	if startsWithQuestionWord(lower) && !strings.HasSuffix(trimmed, "?") {
		return true
	}

	if g.arbiter != nil && endsWithHedge(lower) {
		return g.arbitrate(ctx, trimmed)
	}

	return false
}

// arbitrate asks the model whether the utterance is a complete thought.
// Only "no" holds the turn open.
func (g *Gate) arbitrate(ctx context.Context, text string) bool {
	resp, err := g.arbiter.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "You judge whether a spoken utterance is a complete thought. Answer with exactly one word: yes or no.",
		Messages: []types.Message{
			{Role: "user", Content: fmt.Sprintf("Is this utterance complete? %q", text)},
		},
		Temperature: 0,
		MaxTokens:   3,
	})
	if err != nil {
		g.logger.WarnContext(ctx, "completeness arbitration failed", "error", err)
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(resp.Content))
	return strings.HasPrefix(answer, "no")
}

// startsWithOpener matches a leading starter phrase on a word boundary, so
// "i wanted it" does not count as an "i want" opener.
func startsWithOpener(lower string) bool {
	for _, p := range shortStarters {
		if lower == p || strings.HasPrefix(lower, p+" ") {
			return true
		}
	}
	return false
}

func startsWithQuestionWord(lower string) bool {
	first, _, _ := strings.Cut(lower, " ")
	for _, w := range questionWords {
		if first == w {
			return true
		}
	}
	return false
}

func endsWithHedge(lower string) bool {
	fields := strings.Fields(strings.TrimRight(lower, ".,!?"))
	if len(fields) == 0 {
		return false
	}
	last := fields[len(fields)-1]
	for _, w := range hedgeWords {
		if last == w {
			return true
		}
	}
	return false
}
