package ir

// Version constants for the compiled form and engine.
const (
	// IRVersion is the compiled program schema version.
	IRVersion = "1"

	// EngineVersion is the kdl engine version.
	EngineVersion = "0.1.0"
)
