package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/fwgen/pkg/engine"
)

var substitutionPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Loader reads YAML firmware configurations into engine input.
type Loader struct {
	logger    zerolog.Logger
	validator *validator.Validate
	shapes    *ShapeRegistry
	starlark  *StarlarkEvaluator
	opts      LoadOptions
}

// NewLoader creates a new configuration loader.
func NewLoader(logger zerolog.Logger, opts LoadOptions) *Loader {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Loader{
		logger:    logger.With().Str("component", "config-loader").Logger(),
		validator: v,
		shapes:    NewShapeRegistry(),
		starlark:  NewStarlarkEvaluator(opts.StarlarkTimeout),
		opts:      opts,
	}
}

// Shapes returns the loader's CUE shape registry.
func (l *Loader) Shapes() *ShapeRegistry {
	return l.shapes
}

// LoadFile reads and parses the configuration at path.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return l.Parse(ctx, path, data)
}

// Parse parses configuration content. name is used in error positions.
func (l *Loader) Parse(ctx context.Context, name string, data []byte) (*Document, error) {
	var document yaml.Node
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, ValidationErrors{{File: name, Message: err.Error(), Severity: "error"}}
	}
	if len(document.Content) == 0 || document.Content[0] == nil {
		return nil, ValidationErrors{{File: name, Message: "configuration is empty", Severity: "error"}}
	}

	root := resolveAlias(document.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, ValidationErrors{{
			File:     name,
			Line:     root.Line,
			Column:   root.Column,
			Message:  "top-level YAML document must be a mapping",
			Severity: "error",
		}}
	}

	p := &parser{
		ctx:    ctx,
		loader: l,
		file:   name,
	}
	doc := p.parseRoot(root)
	if len(p.errs) > 0 {
		return nil, p.errs
	}

	l.logger.Debug().
		Str("file", name).
		Int("components", len(doc.Raw.Order)).
		Int("disabled", len(doc.Raw.Disabled)).
		Msg("Loaded configuration")

	return doc, nil
}

// parser walks one document, collecting every error it finds.
type parser struct {
	ctx       context.Context
	loader    *Loader
	file      string
	subs      map[string]string
	positions map[string]Position
	errs      ValidationErrors
}

// mark records where the key at path starts.
func (p *parser) mark(path string, key *yaml.Node) {
	if p.positions != nil {
		p.positions[path] = Position{Line: key.Line, Column: key.Column}
	}
}

func (p *parser) fail(node *yaml.Node, path, format string, args ...interface{}) {
	ve := ValidationError{
		File:     p.file,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: "error",
	}
	if node != nil {
		ve.Line = node.Line
		ve.Column = node.Column
	}
	p.errs = append(p.errs, ve)
}

func (p *parser) parseRoot(root *yaml.Node) *Document {
	doc := &Document{
		File:          p.file,
		Substitutions: make(map[string]string),
		Raw:           engine.NewRawConfig(p.file),
		Positions:     make(map[string]Position),
		LoadedAt:      time.Now(),
	}
	p.positions = doc.Positions

	pairs := p.mappingPairs(root, "")

	// Substitutions apply everywhere, so they are read first.
	for _, kv := range pairs {
		if kv.key.Value == SubstitutionsKey {
			p.parseSubstitutions(kv.value, doc.Substitutions)
		}
	}
	p.subs = doc.Substitutions

	shape := make(map[string]interface{}, len(pairs))
	seen := make(map[string]bool, len(pairs))

	for _, kv := range pairs {
		key := kv.key.Value
		if seen[key] {
			p.fail(kv.key, key, "duplicate key %q", key)
			continue
		}
		seen[key] = true
		p.mark(key, kv.key)

		switch key {
		case SubstitutionsKey:
			subs := make(map[string]interface{}, len(doc.Substitutions))
			for k, v := range doc.Substitutions {
				subs[k] = v
			}
			shape[key] = subs
			continue
		case ProjectKey:
			value := p.convert(kv.value, key)
			shape[key] = value
			doc.Project = p.parseProject(kv.value, value)
			continue
		}

		value := p.convert(kv.value, key)
		shape[key] = value

		switch v := value.(type) {
		case nil:
			doc.Raw.Add(key, engine.Options{})
		case bool:
			if v {
				p.fail(kv.value, key, "component value must be a mapping, null or false")
				continue
			}
			doc.Raw.Disable(key)
		case map[string]interface{}:
			doc.Raw.Add(key, engine.Options(v))
		default:
			p.fail(kv.value, key, "component value must be a mapping, null or false, got %s", describe(value))
		}
	}

	if len(p.errs) == 0 && !p.loader.opts.SkipShapeCheck {
		verrs, err := p.loader.shapes.Check(DocumentSchema, shape, p.file, doc.Positions)
		if err != nil {
			p.fail(nil, "", "%v", err)
		}
		p.errs = append(p.errs, verrs...)
	}

	return doc
}

type keyValue struct {
	key   *yaml.Node
	value *yaml.Node
}

// mappingPairs returns the key/value pairs of a mapping with merge keys
// expanded. Explicit keys win over merged ones.
func (p *parser) mappingPairs(node *yaml.Node, path string) []keyValue {
	var pairs []keyValue
	var merged []keyValue

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			p.fail(key, path, "mapping keys must be scalars")
			continue
		}
		if key.Tag == "!!merge" || key.Value == "<<" {
			merged = append(merged, p.mergeSources(resolveAlias(value), path)...)
			continue
		}
		pairs = append(pairs, keyValue{key: key, value: value})
	}

	if len(merged) == 0 {
		return pairs
	}
	explicit := make(map[string]bool, len(pairs))
	for _, kv := range pairs {
		explicit[kv.key.Value] = true
	}
	for _, kv := range merged {
		if !explicit[kv.key.Value] {
			explicit[kv.key.Value] = true
			pairs = append(pairs, kv)
		}
	}
	return pairs
}

func (p *parser) mergeSources(node *yaml.Node, path string) []keyValue {
	switch node.Kind {
	case yaml.MappingNode:
		return p.mappingPairs(node, path)
	case yaml.SequenceNode:
		var out []keyValue
		for _, item := range node.Content {
			item = resolveAlias(item)
			if item.Kind != yaml.MappingNode {
				p.fail(item, path, "merge value must be a mapping")
				continue
			}
			out = append(out, p.mappingPairs(item, path)...)
		}
		return out
	default:
		p.fail(node, path, "merge value must be a mapping")
		return nil
	}
}

func (p *parser) parseSubstitutions(node *yaml.Node, out map[string]string) {
	node = resolveAlias(node)
	if node.Kind != yaml.MappingNode {
		p.fail(node, SubstitutionsKey, "substitutions must be a mapping")
		return
	}
	for _, kv := range p.mappingPairs(node, SubstitutionsKey) {
		value := resolveAlias(kv.value)
		path := SubstitutionsKey + "." + kv.key.Value
		p.mark(path, kv.key)
		if value.Kind != yaml.ScalarNode {
			p.fail(value, path, "substitution value must be a scalar")
			continue
		}
		if value.Tag == "!!null" {
			p.fail(value, path, "substitution value must not be null")
			continue
		}
		out[kv.key.Value] = value.Value
	}
}

func (p *parser) parseProject(node *yaml.Node, value interface{}) *ProjectConfig {
	m, ok := value.(map[string]interface{})
	if !ok {
		p.fail(node, ProjectKey, "%s must be a mapping", ProjectKey)
		return nil
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		p.fail(node, ProjectKey, "%v", err)
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var project ProjectConfig
	if err := dec.Decode(&project); err != nil {
		p.fail(node, ProjectKey, "%v", err)
		return nil
	}

	if err := p.loader.validator.Struct(project); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				p.fail(node, ProjectKey+"."+fe.Field(), "failed on the '%s' rule", fe.Tag())
			}
		} else {
			p.fail(node, ProjectKey, "%v", err)
		}
		return nil
	}

	return &project
}

// convert turns a node into the plain values the engine consumes:
// map[string]interface{}, []interface{} and scalars.
func (p *parser) convert(node *yaml.Node, path string) interface{} {
	node = resolveAlias(node)

	switch node.Kind {
	case yaml.MappingNode:
		out := make(map[string]interface{}, len(node.Content)/2)
		for _, kv := range p.mappingPairs(node, path) {
			childPath := path + "." + kv.key.Value
			if _, dup := out[kv.key.Value]; dup {
				p.fail(kv.key, childPath, "duplicate key %q", kv.key.Value)
				continue
			}
			p.mark(childPath, kv.key)
			out[kv.key.Value] = p.convert(kv.value, childPath)
		}
		return out
	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(node.Content))
		for i, item := range node.Content {
			out = append(out, p.convert(item, fmt.Sprintf("%s[%d]", path, i)))
		}
		return out
	case yaml.ScalarNode:
		return p.scalar(node, path)
	default:
		p.fail(node, path, "unsupported YAML node")
		return nil
	}
}

func (p *parser) scalar(node *yaml.Node, path string) interface{} {
	switch {
	case node.Tag == StarlarkTag:
		return p.evalStarlark(node, path)
	case node.Tag == "!!str":
		return p.substitute(node, path)
	case strings.HasPrefix(node.Tag, "!!"), node.Tag == "":
		var v interface{}
		if err := node.Decode(&v); err != nil {
			p.fail(node, path, "%v", err)
			return nil
		}
		return v
	default:
		p.fail(node, path, "unsupported tag %s", node.Tag)
		return nil
	}
}

func (p *parser) substitute(node *yaml.Node, path string) string {
	return substitutionPattern.ReplaceAllStringFunc(node.Value, func(m string) string {
		name := substitutionPattern.FindStringSubmatch(m)[1]
		v, ok := p.subs[name]
		if !ok {
			p.fail(node, path, "undefined substitution %q", name)
			return m
		}
		return v
	})
}

func (p *parser) evalStarlark(node *yaml.Node, path string) interface{} {
	if !p.loader.opts.AllowStarlark {
		p.fail(node, path, "%s values are disabled", StarlarkTag)
		return nil
	}

	vars := make(map[string]interface{}, len(p.subs))
	for k, v := range p.subs {
		vars[k] = v
	}

	result, err := p.loader.starlark.Evaluate(p.ctx, node.Value, vars)
	if err != nil {
		p.fail(node, path, "%v", err)
		return nil
	}
	return result.Value
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func describe(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case []interface{}:
		return "sequence"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}
