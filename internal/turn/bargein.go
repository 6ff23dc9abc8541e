package turn

// Barge-in fires on a short run of confidently voiced frames while the bot is
// speaking, so a cough or a single hot frame does not cut the bot off.
const (
	bargeInThreshold = 0.6
	bargeInRun       = 2
)

// BargeInDetector watches per-frame speech probabilities during bot playback
// and fires when the caller starts talking over the bot.
//
// A detector belongs to a single stream and is not safe for concurrent use.
type BargeInDetector struct {
	run int
}

// NewBargeInDetector creates a detector with an empty run.
func NewBargeInDetector() *BargeInDetector {
	return &BargeInDetector{}
}

// ProcessFrame feeds one frame probability and reports whether barge-in fires
// on this frame. Frames at or above the threshold extend the run; any other
// frame resets it. The detector resets itself after firing.
func (d *BargeInDetector) ProcessFrame(prob float64) bool {
	if prob < bargeInThreshold {
		d.run = 0
		return false
	}
	d.run++
	if d.run >= bargeInRun {
		d.run = 0
		return true
	}
	return false
}

// Reset clears the voiced run, for use when bot playback starts.
func (d *BargeInDetector) Reset() {
	d.run = 0
}
