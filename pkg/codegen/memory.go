package codegen

import (
	"context"
	"fmt"
	"sync"

	"github.com/openfroyo/fwgen/pkg/engine"
)

// MemoryBackend collects registrations and platform options in memory. It is
// used for dry runs and as the collector behind CppBackend.
type MemoryBackend struct {
	mu            sync.Mutex
	registrations []engine.Registration
	platform      []engine.PlatformOption
	platformIndex map[string]int
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		platformIndex: make(map[string]int),
	}
}

// Register implements engine.Backend.
func (m *MemoryBackend) Register(ctx context.Context, reg engine.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if reg.Component == "" {
		return fmt.Errorf("registration has no component")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.registrations); n > 0 && reg.Position <= m.registrations[n-1].Position {
		return fmt.Errorf("registration of %s at position %d is out of order", reg.Component, reg.Position)
	}
	m.registrations = append(m.registrations, reg)
	return nil
}

// SetPlatformOption implements engine.Backend. A later value for the same
// name replaces the earlier one in place.
func (m *MemoryBackend) SetPlatformOption(ctx context.Context, name string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("platform option name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	opt := engine.PlatformOption{Name: name, Value: value}
	if i, ok := m.platformIndex[name]; ok {
		m.platform[i] = opt
		return nil
	}
	m.platformIndex[name] = len(m.platform)
	m.platform = append(m.platform, opt)
	return nil
}

// Registrations returns the received registrations in order.
func (m *MemoryBackend) Registrations() []engine.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.Registration(nil), m.registrations...)
}

// PlatformOptions returns the platform options in the order first set.
func (m *MemoryBackend) PlatformOptions() []engine.PlatformOption {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.PlatformOption(nil), m.platform...)
}

// Render renders the collected registrations.
func (m *MemoryBackend) Render() (*Output, error) {
	return Render(m.Registrations(), m.PlatformOptions())
}

// Reset drops everything collected so far.
func (m *MemoryBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations = nil
	m.platform = nil
	m.platformIndex = make(map[string]int)
}
