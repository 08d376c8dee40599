package engine

import (
	"fmt"
	"sort"
)

// Validate checks raw options against a schema and returns the typed options.
// Every problem found in the component is reported in the returned ErrorList:
// missing required options, invalid values and unknown option names.
func Validate(schema *ComponentSchema, raw Options) (Options, error) {
	var errs ErrorList
	out := make(Options, len(schema.options))

	for _, spec := range schema.options {
		value, present := raw[spec.Name]
		if !present {
			if spec.Requiredness == Required {
				errs = append(errs, missingRequiredOption(schema.ID, spec.Name))
				continue
			}
			out[spec.Name] = spec.Default
			continue
		}

		typed, err := spec.Validator(value)
		if err != nil {
			errs = append(errs, invalidValue(schema.ID, spec.Name, err))
			continue
		}
		out[spec.Name] = typed
	}

	// Unknown names are reported in sorted order so output is stable.
	unknown := make([]string, 0)
	for name := range raw {
		if _, ok := schema.index[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, unknownOption(schema.ID, name))
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// ValidateConfig validates every component of a raw configuration against
// the registry. Errors from independent components are batched into one
// ErrorList; components are visited in declaration order.
func ValidateConfig(registry *ComponentRegistry, raw *RawConfig) (ValidatedConfig, error) {
	validated := make(ValidatedConfig, len(raw.Components))
	owners := make(instanceIDs)
	var errs ErrorList

	for _, id := range declarationOrder(raw) {
		schema, ok := registry.Schema(id)
		if !ok {
			errs = append(errs, NewConfigError(KindUnknownComponent, id, "component is not registered"))
			continue
		}

		opts, err := Validate(schema, raw.Components[id])
		if err != nil {
			errs = append(errs, Errors(err)...)
			continue
		}
		if ce := owners.claim(id, opts); ce != nil {
			errs = append(errs, ce)
			continue
		}
		validated[id] = opts
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return validated, nil
}

// instanceIDs maps each instance identifier to the component that owns it.
type instanceIDs map[string]string

// claim records the instance identifier of component. A second component
// using the same identifier gets an InvalidValue error naming the owner.
func (ids instanceIDs) claim(component string, opts Options) *ConfigError {
	id, ok := opts[IDOption].(string)
	if !ok || id == "" {
		return nil
	}
	if owner, taken := ids[id]; taken {
		return invalidValue(component, IDOption,
			fmt.Errorf("instance id %q is already used by %s", id, owner)).WithOther(owner)
	}
	ids[id] = component
	return nil
}

// checkInstanceIDs verifies that the components in order use distinct
// instance identifiers.
func checkInstanceIDs(order []string, validated ValidatedConfig) error {
	owners := make(instanceIDs)
	var errs ErrorList
	for _, id := range order {
		if ce := owners.claim(id, validated[id]); ce != nil {
			errs = append(errs, ce)
		}
	}
	return errs.ErrOrNil()
}

// declarationOrder returns the components of raw in declaration order,
// appending any component missing from Order in sorted order.
func declarationOrder(raw *RawConfig) []string {
	seen := make(map[string]bool, len(raw.Components))
	ids := make([]string, 0, len(raw.Components))
	for _, id := range raw.Order {
		if _, ok := raw.Components[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	rest := make([]string, 0)
	for id := range raw.Components {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}
