// Package engine provides the configuration-to-registration pipeline of fwgen.
//
// # Overview
//
// A firmware configuration is a mapping of component identifiers to option
// mappings. Each component is described by a ComponentSchema that declares its
// options and its constraints on the rest of the configuration. A build runs
// four phases:
//
//  1. Validate - check raw options against each schema (Validate, ValidateConfig)
//  2. Resolve - expand auto-loads, check conflicts and dependencies, order (Resolver)
//  3. Policy - optionally evaluate the resolved Plan (PolicyEvaluator)
//  4. Register - invoke registration callbacks in order (Registrar)
//
// Builder.Build runs all of them and returns a BuildResult.
//
// # Schemas
//
// Schemas are plain values built once during an explicit initialization phase
// and added to a ComponentRegistry, which is then frozen:
//
//	reg := engine.NewComponentRegistry()
//	schema := engine.NewSchema("openthread").
//	    GenerateID("OpenThreadComponent").
//	    Required("network_key", engine.HexString(16)).
//	    Optional("channel", engine.UInt8(), 10).
//	    DependsOn("esp32").
//	    ConflictsWith("wifi", "ethernet").
//	    AutoLoads("network")
//	if err := reg.Register(schema, registerOpenThread); err != nil {
//	    return err
//	}
//	reg.Freeze()
//
// Redefining an option, or a component referencing itself, fails at
// definition time with KindSchemaRedefinition.
//
// # Ordering
//
// The resolver orders components with Kahn's algorithm over dependency and
// auto-load edges. Among components that are ready at the same time the one
// with the higher Priority registers first, then the one declared earlier.
// Auto-loaded components are appended to the declaration order in the order
// they were discovered. A conflict declared on either side is enough.
//
// # Errors
//
// All errors are *ConfigError values, or an ErrorList of them when several
// independent problems are found. Use errors.Is with the sentinels
// (ErrUnknownOption, ErrDependencyCycle, ...) or IsKind to classify them.
//
// # Registration
//
// Registration callbacks are synchronous functions that receive the shared
// RegistrationContext and their validated options. They emit statements,
// defines and platform options through the context and return the generated
// instance identifier. The effects of each callback are handed to the
// Backend as one Registration before the next callback runs.
package engine
