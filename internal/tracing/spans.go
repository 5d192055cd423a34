package tracing

// Span names.
const (
	SpanRun      = "publisher.run"
	SpanArtifact = "builder.artifact"
	SpanPhase    = "builder.phase"
)

// Attribute keys.
const (
	AttrRunID          = "pybi.run_id"
	AttrIdentity       = "pybi.identity"
	AttrImplementation = "pybi.implementation"
	AttrVersion        = "pybi.version"
	AttrPlatform       = "pybi.platform"
	AttrPhase          = "pybi.phase"
	AttrOutcome        = "pybi.outcome"
	AttrSink           = "pybi.sink"
	AttrLinks          = "pybi.links"
)
