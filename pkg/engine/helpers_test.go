package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// nopRegister registers a component with no instance and no statements.
func nopRegister(*RegistrationContext, Options) (string, error) {
	return "", nil
}

// radioSchema is a mesh radio with a required network key and an optional channel.
func radioSchema() *ComponentSchema {
	return NewSchema("radio").
		Required("network_key", String()).
		Optional("channel", UInt8(), 10).
		ConflictsWith("wifi")
}

// radioRegister emits the statements of the radio component.
func radioRegister(rc *RegistrationContext, opts Options) (string, error) {
	v := rc.NewVariable("radio_component", "RadioComponent")
	rc.Call(v, "set_network_key", opts.String("network_key"))
	rc.Call(v, "set_channel", opts.Uint8("channel"))
	rc.RegisterComponent(v)
	rc.AddDefine("USE_RADIO")
	return "radio_component", nil
}

// newTestRegistry registers the given schemas with nopRegister and freezes
// the registry.
func newTestRegistry(t *testing.T, schemas ...*ComponentSchema) *ComponentRegistry {
	t.Helper()
	reg := NewComponentRegistry()
	for _, s := range schemas {
		if err := reg.Register(s, nopRegister); err != nil {
			t.Fatalf("Failed to register %s: %v", s.ID, err)
		}
	}
	reg.Freeze()
	return reg
}

// radioRegistry holds radio, wifi, network and platform components.
func radioRegistry(t *testing.T) *ComponentRegistry {
	t.Helper()
	reg := NewComponentRegistry()
	mustRegister(t, reg, NewSchema("platform").WithPriority(1000), nopRegister)
	mustRegister(t, reg, NewSchema("network").WithPriority(200), nopRegister)
	mustRegister(t, reg, radioSchema().DependsOn("platform").AutoLoads("network").WithPriority(60), radioRegister)
	mustRegister(t, reg, NewSchema("wifi").Optional("ssid", String(), "").AutoLoads("network"), nopRegister)
	reg.Freeze()
	return reg
}

func mustRegister(t *testing.T, reg *ComponentRegistry, s *ComponentSchema, fn RegisterFunc) {
	t.Helper()
	if err := reg.Register(s, fn); err != nil {
		t.Fatalf("Failed to register %s: %v", s.ID, err)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// recordingBackend records every call it receives.
type recordingBackend struct {
	mu       sync.Mutex
	calls    []string
	failOn   string
	platform map[string]interface{}
}

func (b *recordingBackend) Register(_ context.Context, reg Registration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reg.Component == b.failOn {
		return fmt.Errorf("backend refused %s", reg.Component)
	}
	b.calls = append(b.calls, "register:"+reg.Component)
	return nil
}

func (b *recordingBackend) SetPlatformOption(_ context.Context, name string, value interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.platform == nil {
		b.platform = make(map[string]interface{})
	}
	b.platform[name] = value
	b.calls = append(b.calls, "platform:"+name)
	return nil
}

// countingObserver counts lifecycle notifications.
type countingObserver struct {
	mu         sync.Mutex
	started    int
	finished   map[BuildStatus]int
	registered []string
	kinds      map[ErrorKind]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		finished: make(map[BuildStatus]int),
		kinds:    make(map[ErrorKind]int),
	}
}

func (o *countingObserver) BuildStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *countingObserver) BuildFinished(status BuildStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished[status]++
}

func (o *countingObserver) ComponentRegistered(component string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registered = append(o.registered, component)
}

func (o *countingObserver) ConfigErrorRecorded(kind ErrorKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds[kind]++
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
