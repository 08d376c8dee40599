package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRegistrar_RegisterAll(t *testing.T) {
	reg := radioRegistry(t)
	backend := &recordingBackend{}
	rc := NewRegistrationContext("build-1")

	cfg := ValidatedConfig{
		"platform": Options{},
		"network":  Options{},
		"radio":    Options{"network_key": "00112233445566778899aabbccddeeff", "channel": uint8(15)},
	}

	regs, err := NewRegistrar(reg, backend, testLogger()).
		RegisterAll(context.Background(), []string{"platform", "network", "radio"}, cfg, rc)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(regs) != 3 {
		t.Fatalf("Expected 3 registrations, got %d", len(regs))
	}
	radio := regs[2]
	if radio.Component != "radio" || radio.InstanceID != "radio_component" || radio.Position != 2 {
		t.Errorf("Unexpected radio registration %+v", radio)
	}

	wantStatements := []string{
		"auto *radio_component = new RadioComponent();",
		`radio_component->set_network_key("00112233445566778899aabbccddeeff");`,
		"radio_component->set_channel(15);",
		"App.register_component(radio_component);",
	}
	if !equalStrings(radio.Statements, wantStatements) {
		t.Errorf("Expected statements %v, got %v", wantStatements, radio.Statements)
	}
	if !equalStrings(radio.Defines, []string{"USE_RADIO"}) {
		t.Errorf("Expected USE_RADIO define, got %v", radio.Defines)
	}
	if len(regs[0].Statements) != 0 {
		t.Errorf("Expected platform to emit nothing, got %v", regs[0].Statements)
	}

	wantCalls := []string{"register:platform", "register:network", "register:radio"}
	if !equalStrings(backend.calls, wantCalls) {
		t.Errorf("Expected backend calls %v, got %v", wantCalls, backend.calls)
	}

	if id, ok := rc.Instance("radio"); !ok || id != "radio_component" {
		t.Errorf("Expected radio instance in context, got %q", id)
	}
}

func TestRegistrar_StopsAtFirstFailure(t *testing.T) {
	var called []string
	track := func(id string, fail bool) RegisterFunc {
		return func(*RegistrationContext, Options) (string, error) {
			called = append(called, id)
			if fail {
				return "", fmt.Errorf("%s exploded", id)
			}
			return "", nil
		}
	}

	reg := NewComponentRegistry()
	mustRegister(t, reg, NewSchema("a"), track("a", false))
	mustRegister(t, reg, NewSchema("b"), track("b", true))
	mustRegister(t, reg, NewSchema("c"), track("c", false))
	reg.Freeze()

	backend := &recordingBackend{}
	cfg := ValidatedConfig{"a": {}, "b": {}, "c": {}}

	regs, err := NewRegistrar(reg, backend, testLogger()).
		RegisterAll(context.Background(), []string{"a", "b", "c"}, cfg, NewRegistrationContext("x"))
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("Expected RegistrationFailed, got: %v", err)
	}
	if ce := Errors(err)[0]; ce.Component != "b" || ce.Err == nil {
		t.Errorf("Expected failure naming b with a cause, got %v", ce)
	}
	if !equalStrings(called, []string{"a", "b"}) {
		t.Errorf("Expected c not to be called, got %v", called)
	}
	if len(regs) != 1 || !equalStrings(backend.calls, []string{"register:a"}) {
		t.Errorf("Expected only a to reach the backend, got %v", backend.calls)
	}
}

func TestRegistrar_BackendFailure(t *testing.T) {
	reg := radioRegistry(t)
	backend := &recordingBackend{failOn: "network"}
	cfg := ValidatedConfig{"platform": {}, "network": {}}

	_, err := NewRegistrar(reg, backend, testLogger()).
		RegisterAll(context.Background(), []string{"platform", "network"}, cfg, NewRegistrationContext("x"))
	if !IsKind(err, KindRegistrationFailed) {
		t.Errorf("Expected RegistrationFailed, got: %v", err)
	}
}

func TestRegistrar_PlatformOptionsForwarded(t *testing.T) {
	reg := NewComponentRegistry()
	mustRegister(t, reg, NewSchema("a"), func(rc *RegistrationContext, _ Options) (string, error) {
		rc.SetPlatformOption("CONFIG_A", true)
		return "", nil
	})
	mustRegister(t, reg, NewSchema("b"), func(rc *RegistrationContext, _ Options) (string, error) {
		if _, ok := rc.Instance("a"); ok {
			return "", fmt.Errorf("a registered no instance")
		}
		rc.SetPlatformOption("CONFIG_A", false)
		return "b_1", nil
	})
	reg.Freeze()

	backend := &recordingBackend{}
	rc := NewRegistrationContext("x")
	_, err := NewRegistrar(reg, backend, testLogger()).
		RegisterAll(context.Background(), []string{"a", "b"}, ValidatedConfig{"a": {}, "b": {}}, rc)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := []string{"register:a", "platform:CONFIG_A", "register:b", "platform:CONFIG_A"}
	if !equalStrings(backend.calls, want) {
		t.Errorf("Expected calls %v, got %v", want, backend.calls)
	}
	if backend.platform["CONFIG_A"] != false {
		t.Errorf("Expected last value to win, got %v", backend.platform["CONFIG_A"])
	}
	if opts := rc.PlatformOptions(); len(opts) != 1 || opts[0].Value != false {
		t.Errorf("Expected a single overwritten option, got %v", opts)
	}
}

func TestRegistrar_ObserverNotified(t *testing.T) {
	reg := radioRegistry(t)
	obs := newCountingObserver()
	cfg := ValidatedConfig{"platform": {}, "network": {}}

	_, err := NewRegistrar(reg, nil, testLogger()).WithObserver(obs).
		RegisterAll(context.Background(), []string{"platform", "network"}, cfg, NewRegistrationContext("x"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !equalStrings(obs.registered, []string{"platform", "network"}) {
		t.Errorf("Expected observer to see both components, got %v", obs.registered)
	}
}
