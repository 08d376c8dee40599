// Package components holds the built-in component catalog. Each component is
// added by its own Register function during NewRegistry; nothing registers
// itself at import time.
package components

import (
	"fmt"

	"github.com/openfroyo/fwgen/pkg/engine"
)

// Registration priorities. Higher values register first when no dependency
// orders two components.
const (
	PriorityPlatform      = 1000.0
	PriorityNetwork       = 201.0
	PriorityLogger        = 90.0
	PriorityCommunication = 60.0
	PriorityServices      = 55.0
)

// RegisterFunc adds one component to a registry.
type RegisterFunc func(reg *engine.ComponentRegistry) error

// All lists the Register functions of the built-in catalog.
var All = []RegisterFunc{
	RegisterESP32,
	RegisterNetwork,
	RegisterLogger,
	RegisterOpenThread,
	RegisterWiFi,
	RegisterEthernet,
	RegisterMDNS,
}

// NewRegistry builds and freezes a registry holding the built-in catalog
// plus any extra components.
func NewRegistry(extra ...RegisterFunc) (*engine.ComponentRegistry, error) {
	reg := engine.NewComponentRegistry()

	for _, register := range append(append([]RegisterFunc(nil), All...), extra...) {
		if err := register(reg); err != nil {
			return nil, fmt.Errorf("failed to build component catalog: %w", err)
		}
	}

	if err := reg.CheckReferences(); err != nil {
		return nil, fmt.Errorf("component catalog is inconsistent: %w", err)
	}

	reg.Freeze()
	return reg, nil
}

// instanceID returns the configured instance identifier as an expression.
func instanceID(opts engine.Options) engine.Expression {
	return engine.Expression(opts.String(engine.IDOption))
}
