package domain

import "context"

// TransformRequest asks the engine to read InputPath and write OutputPath
// using the named preset.
type TransformRequest struct {
	InputPath  string
	OutputPath string
	Preset     string
}

// Engine is the external code-transformation engine.
type Engine interface {
	Name() string
	Transform(ctx context.Context, req TransformRequest) error
}

// Diagnosable is implemented by engine errors that carry text meant for the
// submitting user (e.g. a syntax error report).
type Diagnosable interface {
	DiagnosticText() string
}
