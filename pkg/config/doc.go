// Package config loads YAML firmware configurations into engine input.
//
// # Overview
//
// A configuration file is a YAML mapping. Two keys are reserved:
//
//   - fwgen: project metadata (name, build_path, comment)
//   - substitutions: scalar values referenced elsewhere as ${name}
//
// Every other top-level key names a component. Its value is a mapping of
// options, null for the component's defaults, or false to disable it. A
// disabled component is never auto-loaded.
//
//	fwgen:
//	  name: ${device}
//	substitutions:
//	  device: thread-node
//	  channel: "15"
//	esp32:
//	  board: esp32-c6-devkitc-1
//	  variant: esp32c6
//	openthread:
//	  network_key: 00112233445566778899aabbccddeeff
//	  channel: ${channel}
//	network: false
//
// # Checks
//
// Loading reports every problem it finds with file, line and column:
// malformed YAML, duplicate keys, undefined substitutions, and a CUE shape
// check of the whole document. The fwgen block is validated with struct
// tags. Option values themselves are checked later by the engine against
// each component's schema.
//
// # Starlark
//
// Scalars tagged !starlark are evaluated as Starlark expressions with the
// substitutions predeclared as strings:
//
//	logger:
//	  baud_rate: !starlark 115200 * 2
//
// # Watching
//
// Loader.Watch reloads the file on change and hands each result to a
// callback, debouncing bursts of writes.
package config
