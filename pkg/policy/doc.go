// Package policy provides Open Policy Agent (OPA) integration for fwgen.
//
// Policies run after dependency resolution and before registration. Each
// policy is a Rego module whose deny set is evaluated against the build
// plan: the resolved order, the validated options per component and the
// auto-loaded components.
//
// # Architecture
//
//  1. Engine - Compiles policies and implements engine.PolicyEvaluator
//  2. Loader - Loads policies from files, directories, globs and bundles
//  3. Built-in Policies - OpenThread hardware and radio checks
//
// # Writing policies
//
// A deny member may be a string or an object with message, severity and
// component fields. Violations with severity "error" block the build;
// anything else is reported as a warning.
//
//	package site.naming
//
//	import rego.v1
//
//	deny contains violation if {
//		count(input.plan.order) > 20
//		violation := {
//			"message": "too many components",
//			"severity": "warning",
//		}
//	}
//
// The input document is:
//
//	{
//	  "plan": {"id": ..., "order": [...], "components": {...}, "auto_loaded": {...}},
//	  "context": {"timestamp": ..., "operation": "compile", "build_id": ...}
//	}
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies/**/*.rego"}); err != nil {
//	    return err
//	}
//	result, err := engine.NewBuilder(registry, logger).WithPolicy(eng).Build(ctx, raw)
package policy
