package ir

const (
	// LogFormat names the newline-delimited log file format.
	LogFormat = "tabletop-log"

	// FormatVersion is bumped whenever snapshot or event encoding changes.
	FormatVersion = 1

	// EngineVersion is the tabletop engine version.
	EngineVersion = "0.1.0"
)
