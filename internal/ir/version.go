package ir

// Version constants for the rule model and engine.
const (
	// RuleModelVersion is bumped when rule or record shapes change.
	RuleModelVersion = "1"

	// EngineVersion is the ruleweave engine version.
	EngineVersion = "0.1.0"
)
