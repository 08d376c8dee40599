// Package codegen turns registrations into C++ sources: main.cpp with the
// setup statements, defines.h with the build-time defines and
// sdkconfig.defaults with the platform options.
package codegen

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/openfroyo/fwgen/pkg/engine"
)

// File names of the generated sources.
const (
	MainFile      = "main.cpp"
	DefinesFile   = "defines.h"
	SdkConfigFile = "sdkconfig.defaults"
)

// Output holds the rendered sources.
type Output struct {
	Main      []byte
	Defines   []byte
	SdkConfig []byte
}

// Files returns the rendered sources keyed by file name.
func (o *Output) Files() map[string][]byte {
	return map[string][]byte{
		MainFile:      o.Main,
		DefinesFile:   o.Defines,
		SdkConfigFile: o.SdkConfig,
	}
}

// FileNames returns the generated file names in a stable order.
func FileNames() []string {
	return []string{MainFile, DefinesFile, SdkConfigFile}
}

var mainTemplate = template.Must(template.New(MainFile).Parse(`// Generated by fwgen. Do not edit.
#include "defines.h"
#include "application.h"

void setup() {
{{- range .}}
  // {{.Component}}
{{- range .Statements}}
  {{.}}
{{- end}}
{{- end}}
  App.setup();
}

void loop() {
  App.loop();
}
`))

// Render renders registrations and platform options. Registrations must be
// in registration order.
func Render(regs []engine.Registration, platform []engine.PlatformOption) (*Output, error) {
	var main bytes.Buffer
	if err := mainTemplate.Execute(&main, regs); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", MainFile, err)
	}

	sdk, err := renderSdkConfig(platform)
	if err != nil {
		return nil, err
	}

	return &Output{
		Main:      main.Bytes(),
		Defines:   renderDefines(regs),
		SdkConfig: sdk,
	}, nil
}

func renderDefines(regs []engine.Registration) []byte {
	seen := make(map[string]bool)
	defines := make([]string, 0)
	for _, r := range regs {
		for _, d := range r.Defines {
			if !seen[d] {
				seen[d] = true
				defines = append(defines, d)
			}
		}
	}
	sort.Strings(defines)

	var buf bytes.Buffer
	buf.WriteString("// Generated by fwgen. Do not edit.\n#pragma once\n")
	for _, d := range defines {
		fmt.Fprintf(&buf, "#define %s\n", d)
	}
	return buf.Bytes()
}

// renderSdkConfig writes options in Kconfig defaults syntax.
func renderSdkConfig(platform []engine.PlatformOption) ([]byte, error) {
	var buf bytes.Buffer
	for _, opt := range platform {
		if !strings.HasPrefix(opt.Name, "CONFIG_") {
			return nil, fmt.Errorf("platform option %s must start with CONFIG_", opt.Name)
		}
		line, err := kconfigLine(opt.Name, opt.Value)
		if err != nil {
			return nil, err
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func kconfigLine(name string, value interface{}) (string, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return name + "=y", nil
		}
		return fmt.Sprintf("# %s is not set", name), nil
	case string:
		return name + "=" + strconv.Quote(v), nil
	case int, int64, uint8, uint16, uint32:
		return fmt.Sprintf("%s=%d", name, v), nil
	}
	return "", fmt.Errorf("platform option %s has unsupported value type %T", name, value)
}
