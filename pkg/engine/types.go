package engine

import (
	"sort"
	"time"
)

// Options maps option names to values. Raw options hold untyped values as
// parsed from the source document; validated options hold typed values.
type Options map[string]interface{}

// Has reports whether the option is set.
func (o Options) Has(name string) bool {
	_, ok := o[name]
	return ok
}

// String returns a string option or "" when absent.
func (o Options) String(name string) string {
	s, _ := o[name].(string)
	return s
}

// Bool returns a bool option or false when absent.
func (o Options) Bool(name string) bool {
	b, _ := o[name].(bool)
	return b
}

// Uint8 returns a uint8 option or 0 when absent.
func (o Options) Uint8(name string) uint8 {
	v, _ := o[name].(uint8)
	return v
}

// Uint16 returns a uint16 option or 0 when absent.
func (o Options) Uint16(name string) uint16 {
	v, _ := o[name].(uint16)
	return v
}

// Uint32 returns a uint32 option or 0 when absent.
func (o Options) Uint32(name string) uint32 {
	v, _ := o[name].(uint32)
	return v
}

// Int returns an int64 option or 0 when absent.
func (o Options) Int(name string) int64 {
	v, _ := o[name].(int64)
	return v
}

// Float returns a float64 option or 0 when absent.
func (o Options) Float(name string) float64 {
	v, _ := o[name].(float64)
	return v
}

// Names returns the option names in sorted order.
func (o Options) Names() []string {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy.
func (o Options) Clone() Options {
	c := make(Options, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// RawConfig is the parsed configuration tree: component identifier to raw
// option mapping. It is created once per build and not modified afterwards.
type RawConfig struct {
	// Components maps component identifiers to their raw options.
	Components map[string]Options `json:"components"`

	// Order is the declaration order of Components in the source.
	Order []string `json:"order"`

	// Disabled holds components the user explicitly turned off. A disabled
	// component is never auto-loaded.
	Disabled map[string]bool `json:"disabled,omitempty"`

	// Source describes where the configuration came from.
	Source string `json:"source,omitempty"`
}

// NewRawConfig creates an empty RawConfig.
func NewRawConfig(source string) *RawConfig {
	return &RawConfig{
		Components: make(map[string]Options),
		Order:      make([]string, 0),
		Disabled:   make(map[string]bool),
		Source:     source,
	}
}

// Add records a component with its raw options in declaration order.
// Adding the same component twice replaces its options but keeps its position.
func (rc *RawConfig) Add(component string, options Options) *RawConfig {
	if options == nil {
		options = Options{}
	}
	if _, exists := rc.Components[component]; !exists {
		rc.Order = append(rc.Order, component)
	}
	rc.Components[component] = options
	return rc
}

// Disable marks a component as explicitly disabled.
func (rc *RawConfig) Disable(component string) *RawConfig {
	if rc.Disabled == nil {
		rc.Disabled = make(map[string]bool)
	}
	rc.Disabled[component] = true
	return rc
}

// ValidatedConfig maps component identifiers to validated, typed options.
type ValidatedConfig map[string]Options

// Registration is one registration step handed to the code-generation backend.
type Registration struct {
	// Component is the component identifier.
	Component string `json:"component"`

	// InstanceID is the identifier returned by the registration callback.
	InstanceID string `json:"instance_id,omitempty"`

	// Options are the validated options the callback ran with.
	Options Options `json:"options"`

	// Statements are the initialization statements emitted by this step.
	Statements []string `json:"statements,omitempty"`

	// Defines are the build-time defines added by this step.
	Defines []string `json:"defines,omitempty"`

	// Position is the zero-based position in the registration order.
	Position int `json:"position"`
}

// Plan is the resolved build handed to policy evaluation before registration.
type Plan struct {
	// ID is the build identifier.
	ID string `json:"id"`

	// Order is the registration order.
	Order []string `json:"order"`

	// Components are the validated options per component.
	Components ValidatedConfig `json:"components"`

	// AutoLoaded maps auto-loaded components to the component that loaded them.
	AutoLoaded map[string]string `json:"auto_loaded,omitempty"`
}

// Severity ranks a policy violation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Blocking reports whether a violation of this severity stops the build.
func (s Severity) Blocking() bool {
	return s == SeverityError
}

// PolicyViolation is a single finding from policy evaluation.
type PolicyViolation struct {
	Policy    string   `json:"policy"`
	Component string   `json:"component,omitempty"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
}

// PolicyResult is the outcome of policy evaluation.
type PolicyResult struct {
	// Allowed is false when at least one blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists all findings, blocking or not.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block the build.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when evaluation finished.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// BuildStatus is the final status of a build.
type BuildStatus string

const (
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusFailed    BuildStatus = "failed"
)

// BuildResult is the outcome of a successful build.
type BuildResult struct {
	// ID is the unique build identifier.
	ID string `json:"id"`

	// Source is the configuration source.
	Source string `json:"source,omitempty"`

	// Order is the registration order.
	Order []string `json:"order"`

	// Config is the validated configuration, including auto-loaded components.
	Config ValidatedConfig `json:"config"`

	// Resolution is the resolved component graph.
	Resolution *Resolution `json:"resolution"`

	// Registrations are the registration steps in order.
	Registrations []Registration `json:"registrations"`

	// Context is the final registration context.
	Context *RegistrationContext `json:"-"`

	// Policy is the policy evaluation result, if policies were evaluated.
	Policy *PolicyResult `json:"policy,omitempty"`

	// StartedAt is when the build started.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the build took.
	Duration time.Duration `json:"duration"`
}
