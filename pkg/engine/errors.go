package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a configuration error.
type ErrorKind string

const (
	// KindMissingRequiredOption indicates a required option is absent.
	KindMissingRequiredOption ErrorKind = "missing_required_option"

	// KindUnknownOption indicates an option that the component schema does not declare.
	KindUnknownOption ErrorKind = "unknown_option"

	// KindInvalidValue indicates a value rejected by its option validator.
	KindInvalidValue ErrorKind = "invalid_value"

	// KindConflictingComponents indicates two mutually exclusive components are present.
	KindConflictingComponents ErrorKind = "conflicting_components"

	// KindMissingDependency indicates a present component requires one that is absent.
	KindMissingDependency ErrorKind = "missing_dependency"

	// KindDependencyCycle indicates that no registration order exists.
	KindDependencyCycle ErrorKind = "dependency_cycle"

	// KindSchemaRedefinition indicates an invalid schema definition (duplicate option,
	// self reference, duplicate component).
	KindSchemaRedefinition ErrorKind = "schema_redefinition"

	// KindUnknownComponent indicates a configuration references no registered schema.
	KindUnknownComponent ErrorKind = "unknown_component"

	// KindRegistrationFailed indicates a registration callback or the backend failed.
	KindRegistrationFailed ErrorKind = "registration_failed"

	// KindPolicyViolation indicates the resolved build was rejected by policy.
	KindPolicyViolation ErrorKind = "policy_violation"
)

// ConfigError is a classified configuration error naming the offending
// component and, where applicable, the option or the other component involved.
type ConfigError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Component is the component the error is reported against.
	Component string `json:"component,omitempty"`

	// Option is the option name, for option level errors.
	Option string `json:"option,omitempty"`

	// Other is the second component, for conflicts and missing dependencies.
	Other string `json:"other,omitempty"`

	// Path is the cycle path for dependency cycles.
	Path []string `json:"path,omitempty"`

	// Message is the human-readable reason.
	Message string `json:"message"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(string(e.Kind))
	sb.WriteString("]")

	if e.Component != "" {
		sb.WriteString(" component=")
		sb.WriteString(e.Component)
	}
	if e.Option != "" {
		sb.WriteString(" option=")
		sb.WriteString(e.Option)
	}
	if e.Other != "" {
		sb.WriteString(" other=")
		sb.WriteString(e.Other)
	}
	if len(e.Path) > 0 {
		sb.WriteString(" path=")
		sb.WriteString(strings.Join(e.Path, " -> "))
	}

	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ConfigError of the same kind.
// Sentinels such as ErrUnknownOption carry only a kind and match any error of that kind.
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithOption sets the option name.
func (e *ConfigError) WithOption(option string) *ConfigError {
	e.Option = option
	return e
}

// WithOther sets the second component involved.
func (e *ConfigError) WithOther(other string) *ConfigError {
	e.Other = other
	return e
}

// WithPath sets the cycle path.
func (e *ConfigError) WithPath(path []string) *ConfigError {
	e.Path = path
	return e
}

// WithCause sets the underlying error.
func (e *ConfigError) WithCause(err error) *ConfigError {
	e.Err = err
	return e
}

// NewConfigError creates a ConfigError of the given kind against a component.
func NewConfigError(kind ErrorKind, component, message string) *ConfigError {
	return &ConfigError{
		Kind:      kind,
		Component: component,
		Message:   message,
	}
}

// Sentinel errors for errors.Is matching by kind.
var (
	ErrMissingRequiredOption = &ConfigError{Kind: KindMissingRequiredOption}
	ErrUnknownOption         = &ConfigError{Kind: KindUnknownOption}
	ErrInvalidValue          = &ConfigError{Kind: KindInvalidValue}
	ErrConflictingComponents = &ConfigError{Kind: KindConflictingComponents}
	ErrMissingDependency     = &ConfigError{Kind: KindMissingDependency}
	ErrDependencyCycle       = &ConfigError{Kind: KindDependencyCycle}
	ErrSchemaRedefinition    = &ConfigError{Kind: KindSchemaRedefinition}
	ErrUnknownComponent      = &ConfigError{Kind: KindUnknownComponent}
	ErrRegistrationFailed    = &ConfigError{Kind: KindRegistrationFailed}
	ErrPolicyViolation       = &ConfigError{Kind: KindPolicyViolation}
)

func missingRequiredOption(component, option string) *ConfigError {
	return NewConfigError(KindMissingRequiredOption, component, "required option is missing").
		WithOption(option)
}

func unknownOption(component, option string) *ConfigError {
	return NewConfigError(KindUnknownOption, component, "option is not recognized").
		WithOption(option)
}

func invalidValue(component, option string, reason error) *ConfigError {
	return NewConfigError(KindInvalidValue, component, "invalid value").
		WithOption(option).
		WithCause(reason)
}

func conflictingComponents(a, b string) *ConfigError {
	return NewConfigError(KindConflictingComponents, a,
		fmt.Sprintf("component %s cannot be used together with %s", a, b)).
		WithOther(b)
}

func missingDependency(component, missing string) *ConfigError {
	return NewConfigError(KindMissingDependency, component,
		fmt.Sprintf("component %s requires component %s", component, missing)).
		WithOther(missing)
}

func dependencyCycle(path []string) *ConfigError {
	component := ""
	if len(path) > 0 {
		component = path[0]
	}
	return NewConfigError(KindDependencyCycle, component, "circular dependency detected").
		WithPath(path)
}

// ErrorList aggregates independent configuration errors so they can be
// reported together.
type ErrorList []*ConfigError

// Error implements the error interface.
func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}

	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d configuration errors:\n- %s", len(l), strings.Join(msgs, "\n- "))
}

// Unwrap exposes the members to errors.Is and errors.As.
func (l ErrorList) Unwrap() []error {
	errs := make([]error, len(l))
	for i, e := range l {
		errs[i] = e
	}
	return errs
}

// ErrOrNil returns nil for an empty list and the list otherwise.
func (l ErrorList) ErrOrNil() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Errors flattens err into its ConfigErrors. Errors that are not
// ConfigErrors are returned as a RegistrationFailed entry.
func Errors(err error) []*ConfigError {
	if err == nil {
		return nil
	}

	var list ErrorList
	if errors.As(err, &list) {
		return list
	}

	var ce *ConfigError
	if errors.As(err, &ce) {
		return []*ConfigError{ce}
	}

	return []*ConfigError{NewConfigError(KindRegistrationFailed, "", "build failed").WithCause(err)}
}

// IsKind reports whether err is, or contains, a ConfigError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return errors.Is(err, &ConfigError{Kind: kind})
}
