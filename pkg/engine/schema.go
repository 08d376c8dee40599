package engine

import (
	"fmt"
	"strings"
)

// Requiredness tells whether an option must be present in the raw config.
type Requiredness int

const (
	// Required options must be set by the user.
	Required Requiredness = iota

	// Optional options fall back to their default when absent.
	Optional
)

// String returns the string representation of the requiredness.
func (r Requiredness) String() string {
	if r == Required {
		return "required"
	}
	return "optional"
}

// IDOption is the name of the generated instance identifier option.
const IDOption = "id"

// DefaultPriority is the registration priority of components that do not set one.
const DefaultPriority = 0.0

// OptionSpec declares one recognized option.
type OptionSpec struct {
	// Name is the option name, unique within a schema.
	Name string

	// Requiredness tells whether the option must be present.
	Requiredness Requiredness

	// Validator checks and coerces the raw value.
	Validator ValidatorFunc

	// Default is the typed value used when an optional option is absent.
	Default interface{}

	// Description documents the option for the component catalog.
	Description string
}

// ComponentSchema declares a component's options and its constraints on the
// rest of the configuration. Schemas are built once during initialization and
// are read-only once registered.
type ComponentSchema struct {
	// ID is the component identifier used as the top-level configuration key.
	ID string

	// ClassName is the generated C++ class, if the component has an instance.
	ClassName string

	// Description documents the component for the catalog.
	Description string

	// Priority orders components that have no constraint between them;
	// higher values register first.
	Priority float64

	options      []OptionSpec
	index        map[string]int
	dependencies []string
	conflicts    []string
	autoLoad     []string
	err          error
}

// NewSchema creates an empty schema for the given component identifier.
func NewSchema(id string) *ComponentSchema {
	return &ComponentSchema{
		ID:       id,
		Priority: DefaultPriority,
		index:    make(map[string]int),
	}
}

// DefineOption registers an option. Optional options take their default as
// the single trailing argument; it is run through the validator so that it is
// stored in typed form. Redefining an option fails.
func (s *ComponentSchema) DefineOption(name string, req Requiredness, v ValidatorFunc, def ...interface{}) error {
	if name == "" {
		return NewConfigError(KindSchemaRedefinition, s.ID, "option name must not be empty")
	}
	if _, exists := s.index[name]; exists {
		return NewConfigError(KindSchemaRedefinition, s.ID, "option is defined twice").WithOption(name)
	}
	if v == nil {
		return NewConfigError(KindSchemaRedefinition, s.ID, "option has no validator").WithOption(name)
	}

	spec := OptionSpec{Name: name, Requiredness: req, Validator: v}

	switch req {
	case Required:
		if len(def) > 0 {
			return NewConfigError(KindSchemaRedefinition, s.ID, "required option cannot have a default").WithOption(name)
		}
	case Optional:
		if len(def) != 1 {
			return NewConfigError(KindSchemaRedefinition, s.ID, "optional option needs exactly one default").WithOption(name)
		}
		typed, err := v(def[0])
		if err != nil {
			return NewConfigError(KindSchemaRedefinition, s.ID, "default does not pass its validator").
				WithOption(name).
				WithCause(err)
		}
		spec.Default = typed
	default:
		return NewConfigError(KindSchemaRedefinition, s.ID, fmt.Sprintf("unknown requiredness %d", req)).WithOption(name)
	}

	s.index[name] = len(s.options)
	s.options = append(s.options, spec)
	return nil
}

// DeclareDependencies adds components that must be present for this one.
func (s *ComponentSchema) DeclareDependencies(ids ...string) error {
	return s.declare(&s.dependencies, "dependency", ids)
}

// DeclareConflicts adds components that must not be present together with
// this one. Declaring the conflict on one side is enough.
func (s *ComponentSchema) DeclareConflicts(ids ...string) error {
	return s.declare(&s.conflicts, "conflict", ids)
}

// DeclareAutoLoad adds components that are loaded automatically with this one.
func (s *ComponentSchema) DeclareAutoLoad(ids ...string) error {
	return s.declare(&s.autoLoad, "auto-load", ids)
}

func (s *ComponentSchema) declare(set *[]string, what string, ids []string) error {
	for _, id := range ids {
		if id == "" {
			return NewConfigError(KindSchemaRedefinition, s.ID, fmt.Sprintf("empty %s identifier", what))
		}
		if id == s.ID {
			return NewConfigError(KindSchemaRedefinition, s.ID,
				fmt.Sprintf("component cannot declare itself as a %s", what))
		}
		if !contains(*set, id) {
			*set = append(*set, id)
		}
	}
	return nil
}

// Required declares a required option, recording any definition error.
func (s *ComponentSchema) Required(name string, v ValidatorFunc) *ComponentSchema {
	s.record(s.DefineOption(name, Required, v))
	return s
}

// Optional declares an optional option with a default, recording any definition error.
func (s *ComponentSchema) Optional(name string, v ValidatorFunc, def interface{}) *ComponentSchema {
	s.record(s.DefineOption(name, Optional, v, def))
	return s
}

// Describe attaches a description to the most recently defined option.
func (s *ComponentSchema) Describe(description string) *ComponentSchema {
	if n := len(s.options); n > 0 {
		s.options[n-1].Description = description
	}
	return s
}

// DependsOn declares dependencies, recording any definition error.
func (s *ComponentSchema) DependsOn(ids ...string) *ComponentSchema {
	s.record(s.DeclareDependencies(ids...))
	return s
}

// ConflictsWith declares conflicts, recording any definition error.
func (s *ComponentSchema) ConflictsWith(ids ...string) *ComponentSchema {
	s.record(s.DeclareConflicts(ids...))
	return s
}

// AutoLoads declares auto-loaded components, recording any definition error.
func (s *ComponentSchema) AutoLoads(ids ...string) *ComponentSchema {
	s.record(s.DeclareAutoLoad(ids...))
	return s
}

// WithPriority sets the registration priority.
func (s *ComponentSchema) WithPriority(priority float64) *ComponentSchema {
	s.Priority = priority
	return s
}

// WithDescription sets the component description.
func (s *ComponentSchema) WithDescription(description string) *ComponentSchema {
	s.Description = description
	return s
}

// GenerateID declares the component class and the optional "id" option
// holding its instance identifier, defaulting to <component>_<class>.
func (s *ComponentSchema) GenerateID(className string) *ComponentSchema {
	s.ClassName = className
	base := className
	if i := strings.LastIndex(base, "::"); i >= 0 {
		base = base[i+2:]
	}
	def := s.ID + "_" + strings.ToLower(base)
	s.record(s.DefineOption(IDOption, Optional, Identifier(), def))
	return s.Describe("instance identifier of the generated " + className)
}

func (s *ComponentSchema) record(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
}

// Err returns the first error recorded by the chainable builder methods.
func (s *ComponentSchema) Err() error {
	return s.err
}

// Options returns the option specs in declaration order.
func (s *ComponentSchema) Options() []OptionSpec {
	out := make([]OptionSpec, len(s.options))
	copy(out, s.options)
	return out
}

// Option returns the spec for a named option.
func (s *ComponentSchema) Option(name string) (OptionSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return OptionSpec{}, false
	}
	return s.options[i], true
}

// Dependencies returns the required prerequisite components.
func (s *ComponentSchema) Dependencies() []string {
	return append([]string(nil), s.dependencies...)
}

// Conflicts returns the components that may not be present with this one.
func (s *ComponentSchema) Conflicts() []string {
	return append([]string(nil), s.conflicts...)
}

// AutoLoad returns the components loaded automatically with this one.
func (s *ComponentSchema) AutoLoad() []string {
	return append([]string(nil), s.autoLoad...)
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
