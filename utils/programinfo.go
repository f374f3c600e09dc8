package utils

const (
	// ProgramName is this engine's name, as a program name for a @PG
	// provenance line. No code in this module appends such a line.
	ProgramName = "readflow"

	// ProgramVersion is the version of this engine recorded alongside
	// ProgramName in provenance lines.
	ProgramVersion = "0.1.0"
)
