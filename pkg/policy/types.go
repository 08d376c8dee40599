package policy

import (
	"time"

	"github.com/openfroyo/fwgen/pkg/engine"
)

// Severity is the severity level of a policy violation. The builder decides
// what blocks through engine.Severity.Blocking, so both share one type.
type Severity = engine.Severity

const (
	// SeverityInfo is for informational messages.
	SeverityInfo = engine.SeverityInfo

	// SeverityWarning is for findings that are reported but do not block the build.
	SeverityWarning = engine.SeverityWarning

	// SeverityError is for findings that block the build.
	SeverityError = engine.SeverityError
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. The module must define a deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not set one.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin is true for policies shipped with fwgen.
	Builtin bool `json:"builtin"`

	// Source is the file the policy was loaded from, if any.
	Source string `json:"source,omitempty"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`
}

// PolicyInput is the document policies see as input.
type PolicyInput struct {
	// Plan is the build plan as plain JSON values.
	Plan map[string]interface{} `json:"plan"`

	// Context provides additional evaluation context.
	Context *PolicyContext `json:"context"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Operation is the operation being performed (e.g., "compile", "validate").
	Operation string `json:"operation,omitempty"`

	// BuildID is the build being evaluated.
	BuildID string `json:"build_id,omitempty"`
}

// PolicyBundle represents a collection of related policies stored as JSON.
type PolicyBundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`
}
