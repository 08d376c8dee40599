package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Expression is emitted verbatim instead of being quoted as a literal,
// e.g. a reference to another generated variable.
type Expression string

// PlatformOption is a named platform (SDK) option setting.
type PlatformOption struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// RegistrationContext accumulates the effects of one build's registration
// callbacks. It belongs to a single build and is not safe for concurrent use.
type RegistrationContext struct {
	buildID string

	statements      []string
	defines         []string
	defineSet       map[string]bool
	platformOptions []PlatformOption
	platformIndex   map[string]int
	instances       map[string]string

	current        string
	pendingOptions []PlatformOption
}

// NewRegistrationContext creates an empty context for one build.
func NewRegistrationContext(buildID string) *RegistrationContext {
	return &RegistrationContext{
		buildID:       buildID,
		defineSet:     make(map[string]bool),
		platformIndex: make(map[string]int),
		instances:     make(map[string]string),
	}
}

// BuildID returns the identifier of the build owning this context.
func (rc *RegistrationContext) BuildID() string {
	return rc.buildID
}

// Component returns the component whose callback is running.
func (rc *RegistrationContext) Component() string {
	return rc.current
}

// Add appends a raw initialization statement.
func (rc *RegistrationContext) Add(statement string) {
	rc.statements = append(rc.statements, statement)
}

// NewVariable emits the allocation of a new instance of class bound to id
// and returns id as an expression for later calls.
func (rc *RegistrationContext) NewVariable(id, class string) Expression {
	rc.Add(fmt.Sprintf("auto *%s = new %s();", id, class))
	return Expression(id)
}

// Call emits a method call on a generated variable.
func (rc *RegistrationContext) Call(variable Expression, method string, args ...interface{}) {
	lits := make([]string, len(args))
	for i, a := range args {
		lits[i] = Literal(a)
	}
	rc.Add(fmt.Sprintf("%s->%s(%s);", variable, method, strings.Join(lits, ", ")))
}

// RegisterComponent emits the registration of a variable with the application.
func (rc *RegistrationContext) RegisterComponent(variable Expression) {
	rc.Add(fmt.Sprintf("App.register_component(%s);", variable))
}

// AddDefine adds a build-time define. Duplicates are ignored.
func (rc *RegistrationContext) AddDefine(name string) {
	if rc.defineSet[name] {
		return
	}
	rc.defineSet[name] = true
	rc.defines = append(rc.defines, name)
}

// HasDefine reports whether a define was added.
func (rc *RegistrationContext) HasDefine(name string) bool {
	return rc.defineSet[name]
}

// SetPlatformOption sets a platform option. Setting it again replaces the
// value but keeps its original position.
func (rc *RegistrationContext) SetPlatformOption(name string, value interface{}) {
	opt := PlatformOption{Name: name, Value: value}
	if i, ok := rc.platformIndex[name]; ok {
		rc.platformOptions[i] = opt
	} else {
		rc.platformIndex[name] = len(rc.platformOptions)
		rc.platformOptions = append(rc.platformOptions, opt)
	}
	rc.pendingOptions = append(rc.pendingOptions, opt)
}

// Instance returns the instance identifier registered by a component.
// Only components ordered before the current one are visible.
func (rc *RegistrationContext) Instance(component string) (Expression, bool) {
	id, ok := rc.instances[component]
	return Expression(id), ok
}

// Statements returns all emitted statements in order.
func (rc *RegistrationContext) Statements() []string {
	return append([]string(nil), rc.statements...)
}

// Defines returns all defines in the order they were added.
func (rc *RegistrationContext) Defines() []string {
	return append([]string(nil), rc.defines...)
}

// PlatformOptions returns all platform options in the order they were first set.
func (rc *RegistrationContext) PlatformOptions() []PlatformOption {
	return append([]PlatformOption(nil), rc.platformOptions...)
}

// Instances returns the instance identifiers keyed by component.
func (rc *RegistrationContext) Instances() map[string]string {
	out := make(map[string]string, len(rc.instances))
	for k, v := range rc.instances {
		out[k] = v
	}
	return out
}

// step marks where a component's effects begin.
type step struct {
	statements int
	defines    int
}

func (rc *RegistrationContext) begin(component string) step {
	rc.current = component
	rc.pendingOptions = nil
	return step{statements: len(rc.statements), defines: len(rc.defines)}
}

// finish records the instance and returns the effects of the step.
func (rc *RegistrationContext) finish(s step, instance string) ([]string, []string, []PlatformOption) {
	if instance != "" {
		rc.instances[rc.current] = instance
	}
	statements := append([]string(nil), rc.statements[s.statements:]...)
	defines := append([]string(nil), rc.defines[s.defines:]...)
	pending := rc.pendingOptions
	rc.pendingOptions = nil
	rc.current = ""
	return statements, defines, pending
}

// Literal renders a Go value as a C++ literal.
func Literal(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "nullptr"
	case Expression:
		return string(val)
	case string:
		return quoteCpp(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10) + "UL"
	case float64:
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s + "f"
	case []interface{}:
		items := make([]string, len(val))
		for i, it := range val {
			items[i] = Literal(it)
		}
		return "{" + strings.Join(items, ", ") + "}"
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, len(keys))
		for i, k := range keys {
			items[i] = fmt.Sprintf("{%s, %s}", quoteCpp(k), Literal(val[k]))
		}
		return "{" + strings.Join(items, ", ") + "}"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// quoteCpp renders s as a C++ string literal. Bytes that are not printable
// UTF-8 use three-digit octal escapes, which unlike \x escapes cannot absorb
// a following character.
func quoteCpp(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"' || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == utf8.RuneError && size == 1, !unicode.IsPrint(r):
			for _, b := range []byte(s[i : i+size]) {
				fmt.Fprintf(&sb, "\\%03o", b)
			}
		default:
			sb.WriteString(s[i : i+size])
		}
		i += size
	}
	sb.WriteByte('"')
	return sb.String()
}
