package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VocabularyChanged is true when the clinic vocabulary list changed; the
	// transcript corrector can be rebuilt without restarting calls.
	VocabularyChanged bool

	// PersonaChanged is true when the persona name, greeting, or voice
	// changed. New sessions pick up the change; live sessions keep their
	// voice until they end.
	PersonaChanged bool
}

// Changed reports whether any hot-reloadable field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VocabularyChanged || d.PersonaChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Vocabulary, new.Vocabulary) {
		d.VocabularyChanged = true
	}

	if old.Persona != new.Persona {
		d.PersonaChanged = true
	}

	return d
}
