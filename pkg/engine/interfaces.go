package engine

import (
	"context"
	"time"
)

// Backend consumes registrations in registration order and turns them into
// generated source. Implementations live in pkg/codegen.
type Backend interface {
	// Register accepts one registration step.
	Register(ctx context.Context, reg Registration) error

	// SetPlatformOption records a named platform (SDK) option.
	SetPlatformOption(ctx context.Context, name string, value interface{}) error
}

// PolicyEvaluator evaluates a resolved plan before any registration side
// effects happen. Implemented by pkg/policy.
type PolicyEvaluator interface {
	EvaluatePlan(ctx context.Context, plan *Plan) (*PolicyResult, error)
}

// BuildObserver receives build lifecycle notifications, typically for metrics.
// Implemented by pkg/telemetry.
type BuildObserver interface {
	BuildStarted()
	BuildFinished(status BuildStatus, duration time.Duration)
	ComponentRegistered(component string, duration time.Duration)
	ConfigErrorRecorded(kind ErrorKind)
}

// RegisterFunc is a component registration callback. It receives the shared
// registration context and its validated options, may append statements and
// platform options through the context, and returns the component instance
// identifier ("" for components without an instance).
type RegisterFunc func(rc *RegistrationContext, options Options) (string, error)

// nopObserver is used when no BuildObserver is configured.
type nopObserver struct{}

func (nopObserver) BuildStarted() {}
func (nopObserver) BuildFinished(BuildStatus, time.Duration) {}
func (nopObserver) ComponentRegistered(string, time.Duration) {}
func (nopObserver) ConfigErrorRecorded(ErrorKind) {}
