package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/fwgen/pkg/engine"
)

// Reserved top-level keys that are not components.
const (
	ProjectKey       = "fwgen"
	SubstitutionsKey = "substitutions"
)

// StarlarkTag marks a scalar evaluated as a Starlark expression.
const StarlarkTag = "!starlark"

// ProjectConfig is the top-level fwgen: block.
type ProjectConfig struct {
	// Name is the device name, used as hostname.
	Name string `yaml:"name" json:"name" validate:"required,hostname_rfc1123,max=31"`

	// BuildPath is where sources are generated, relative to the config file.
	BuildPath string `yaml:"build_path,omitempty" json:"build_path,omitempty" validate:"max=255"`

	// Comment is a free-form description.
	Comment string `yaml:"comment,omitempty" json:"comment,omitempty" validate:"max=256"`
}

// Document is a loaded firmware configuration.
type Document struct {
	// File is the source file, or a name for inline content.
	File string `json:"file"`

	// Project is the fwgen: block, if present.
	Project *ProjectConfig `json:"project,omitempty"`

	// Substitutions are the values available as ${name}.
	Substitutions map[string]string `json:"substitutions,omitempty"`

	// Raw is the component configuration handed to the engine.
	Raw *engine.RawConfig `json:"raw"`

	// Positions maps each key, by dotted path such as "fwgen.name", to its
	// location in File.
	Positions map[string]Position `json:"-"`

	// LoadedAt is when the document was loaded.
	LoadedAt time.Time `json:"loaded_at"`
}

// Position is a line and column in a source file (1-indexed).
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// BuildPath returns the configured build path or a default derived from the
// project name.
func (d *Document) BuildPath() string {
	if d.Project != nil && d.Project.BuildPath != "" {
		return d.Project.BuildPath
	}
	if d.Project != nil && d.Project.Name != "" {
		return ".fwgen/" + d.Project.Name
	}
	return ".fwgen/build"
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the dotted path to the offending value (e.g., "openthread.channel").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// String formats the error as file:line:col: path: message.
func (e ValidationError) String() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&sb, ":%d:%d", e.Line, e.Column)
		}
		sb.WriteString(": ")
	}
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// ValidationErrors is returned when a document cannot be loaded.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	msgs := make([]string, len(ve))
	for i, e := range ve {
		msgs[i] = e.String()
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// LoadOptions controls document loading.
type LoadOptions struct {
	// AllowStarlark enables !starlark scalars.
	AllowStarlark bool `json:"allow_starlark"`

	// StarlarkTimeout bounds each expression.
	StarlarkTimeout time.Duration `json:"starlark_timeout,omitempty"`

	// SkipShapeCheck disables the CUE document shape check.
	SkipShapeCheck bool `json:"skip_shape_check"`
}

// DefaultLoadOptions returns the options used by the CLI.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		AllowStarlark:   true,
		StarlarkTimeout: 5 * time.Second,
	}
}
