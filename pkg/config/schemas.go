package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// DocumentSchema is the name of the built-in document shape.
const DocumentSchema = "document"

// ShapeRegistry manages CUE schemas that check the shape of a configuration
// document before any component schema runs.
type ShapeRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewShapeRegistry creates a new registry with the built-in document shape.
func NewShapeRegistry() *ShapeRegistry {
	sr := &ShapeRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(DocumentSchema, builtinDocumentSchema, "#Document"); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles a CUE source and registers the definition at path
// under name. An empty path registers the whole value.
func (sr *ShapeRegistry) RegisterSchema(name, source, path string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	if path != "" {
		val = val.LookupPath(cue.ParsePath(path))
		if !val.Exists() {
			return fmt.Errorf("schema %s has no definition %s", name, path)
		}
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *ShapeRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ListSchemas returns all registered schema names, sorted.
func (sr *ShapeRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check unifies data with the named schema and returns one ValidationError
// per CUE error. Paths are dotted with [n] for list elements; each error takes
// the position of the longest prefix of its path found in positions.
func (sr *ShapeRegistry) Check(schemaName string, data interface{}, file string, positions map[string]Position) ([]ValidationError, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return nil, fmt.Errorf("schema %s not found", schemaName)
	}

	sr.mu.RLock()
	dataVal := sr.ctx.Encode(data)
	sr.mu.RUnlock()
	if err := dataVal.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err, file, positions), nil
	}
	return nil, nil
}

// convertCUEErrors converts CUE errors to a ValidationError slice. An error
// whose path is a prefix of another error's path is dropped in favour of the
// more specific one.
func convertCUEErrors(err error, file string, positions map[string]Position) []ValidationError {
	var validationErrors []ValidationError
	seen := make(map[string]bool)

	for _, e := range cueerrors.Errors(err) {
		segments := pathSegments(e.Path())
		format, args := e.Msg()

		ve := ValidationError{
			File:     file,
			Path:     joinPath(segments),
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		}
		if pos, ok := lookupPosition(positions, segments); ok {
			ve.Line = pos.Line
			ve.Column = pos.Column
		}

		key := ve.Path + "\x00" + ve.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		validationErrors = append(validationErrors, ve)
	}

	validationErrors = mostSpecific(validationErrors)
	sort.SliceStable(validationErrors, func(i, j int) bool {
		if validationErrors[i].Line != validationErrors[j].Line {
			return validationErrors[i].Line < validationErrors[j].Line
		}
		return validationErrors[i].Path < validationErrors[j].Path
	})
	return validationErrors
}

// pathSegments turns CUE selectors into document keys: definitions are
// dropped, quoted labels are unquoted and list indices become "[n]".
func pathSegments(selectors []string) []string {
	segments := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		switch {
		case strings.HasPrefix(sel, "#"):
			continue
		case strings.HasPrefix(sel, `"`):
			if label, err := strconv.Unquote(sel); err == nil {
				sel = label
			}
		default:
			if _, err := strconv.Atoi(sel); err == nil {
				sel = "[" + sel + "]"
			}
		}
		segments = append(segments, sel)
	}
	return segments
}

// joinPath joins segments with dots, attaching list indices to their parent.
func joinPath(segments []string) string {
	var sb strings.Builder
	for i, seg := range segments {
		if i > 0 && !strings.HasPrefix(seg, "[") {
			sb.WriteByte('.')
		}
		sb.WriteString(seg)
	}
	return sb.String()
}

// lookupPosition returns the position of the longest prefix of segments
// present in positions.
func lookupPosition(positions map[string]Position, segments []string) (Position, bool) {
	for n := len(segments); n > 0; n-- {
		if pos, ok := positions[joinPath(segments[:n])]; ok {
			return pos, true
		}
	}
	return Position{}, false
}

// mostSpecific drops errors reported against an ancestor of another error's
// path, such as a failed disjunction wrapping a nested field error.
func mostSpecific(errs []ValidationError) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for i, e := range errs {
		ancestor := false
		for j, other := range errs {
			if i != j && e.Path != other.Path && isAncestor(e.Path, other.Path) {
				ancestor = true
				break
			}
		}
		if !ancestor {
			out = append(out, e)
		}
	}
	return out
}

func isAncestor(parent, child string) bool {
	if parent == "" {
		return true
	}
	return strings.HasPrefix(child, parent+".") || strings.HasPrefix(child, parent+"[")
}

// Built-in schema definitions

const builtinDocumentSchema = `
// Document is a firmware configuration file.
#Document: {
	// fwgen holds project metadata
	fwgen?: {
		name:        string & =~"^[a-z0-9][a-z0-9-]*$"
		build_path?: string
		comment?:    string
	}

	// substitutions are scalar values referenced as ${name}
	substitutions?: {[=~"^[A-Za-z_][A-Za-z0-9_]*$"]: string | number | bool}

	// every other key is a component: null for defaults, false to disable
	[=~"^[a-z][a-z0-9_]*$" & !~"^(fwgen|substitutions)$"]: null | false | {...}
}
`
