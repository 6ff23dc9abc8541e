package dialog

import "strings"

// Route is the confidence router's verdict on one transcript.
type Route int

const (
	// RouteAccept passes the text through to the language model.
	RouteAccept Route = iota

	// RouteClarify asks the caller to confirm before the text is used.
	RouteClarify

	// RouteReject discards the text and asks the caller to repeat.
	RouteReject
)

// String implements fmt.Stringer.
func (r Route) String() string {
	switch r {
	case RouteAccept:
		return "accept"
	case RouteClarify:
		return "clarify"
	case RouteReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Confidence bands for routing transcripts.
const (
	acceptConfidence  = 0.8
	softConfidence    = 0.3
	clarifyConfidence = 0.2
)

// RouteTranscript maps an ASR result to a routing verdict. soft reports an
// accepted result whose confidence sits below the full-trust band; such
// turns pass through but are flagged for logging.
//
// Empty or non-alphanumeric text always rejects regardless of confidence.
func RouteTranscript(text string, confidence float64) (route Route, soft bool) {
	if !hasAlnum(text) {
		return RouteReject, false
	}
	switch {
	case confidence >= acceptConfidence:
		return RouteAccept, false
	case confidence >= softConfidence:
		return RouteAccept, true
	case confidence >= clarifyConfidence:
		return RouteClarify, false
	default:
		return RouteReject, false
	}
}

// hasAlnum reports whether text contains at least one letter or digit.
func hasAlnum(text string) bool {
	for _, r := range strings.TrimSpace(text) {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') || r > 127 {
			return true
		}
	}
	return false
}
