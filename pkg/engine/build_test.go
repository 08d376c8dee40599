package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// stubPolicy returns a fixed result.
type stubPolicy struct {
	result *PolicyResult
	err    error
	plans  []*Plan
}

func (p *stubPolicy) EvaluatePlan(_ context.Context, plan *Plan) (*PolicyResult, error) {
	p.plans = append(p.plans, plan)
	return p.result, p.err
}

func TestBuilder_Build(t *testing.T) {
	reg := radioRegistry(t)
	backend := &recordingBackend{}
	obs := newCountingObserver()

	raw := NewRawConfig("radio.yaml").
		Add("radio", Options{"network_key": "abc123"}).
		Add("platform", nil)

	result, err := NewBuilder(reg, testLogger()).
		WithBackend(backend).
		WithObserver(obs).
		Build(context.Background(), raw)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.ID == "" {
		t.Error("Expected a build ID")
	}
	if !equalStrings(result.Order, []string{"platform", "network", "radio"}) {
		t.Errorf("Expected [platform network radio], got %v", result.Order)
	}
	if _, ok := result.Config["network"]; !ok {
		t.Error("Expected the auto-loaded component to be validated")
	}
	if result.Config["radio"].Uint8("channel") != 10 {
		t.Errorf("Expected default channel, got %v", result.Config["radio"])
	}
	if len(result.Registrations) != 3 || result.Context == nil {
		t.Fatalf("Expected 3 registrations and a context, got %d", len(result.Registrations))
	}
	if !result.Context.HasDefine("USE_RADIO") {
		t.Error("Expected USE_RADIO define")
	}

	if obs.started != 1 || obs.finished[BuildStatusSucceeded] != 1 {
		t.Errorf("Expected one successful build, got %+v", obs)
	}
	if len(obs.registered) != 3 {
		t.Errorf("Expected 3 registrations observed, got %v", obs.registered)
	}
}

func TestBuilder_ConflictStopsBeforeRegistration(t *testing.T) {
	reg := radioRegistry(t)
	backend := &recordingBackend{}
	obs := newCountingObserver()

	raw := NewRawConfig("").
		Add("platform", nil).
		Add("radio", Options{"network_key": "x"}).
		Add("wifi", Options{})

	_, err := NewBuilder(reg, testLogger()).
		WithBackend(backend).
		WithObserver(obs).
		Build(context.Background(), raw)

	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Kind != KindConflictingComponents {
		t.Fatalf("Expected ConflictingComponents, got: %v", err)
	}
	if ce.Component != "radio" || ce.Other != "wifi" {
		t.Errorf("Expected conflict(radio, wifi), got %v", ce)
	}
	if len(backend.calls) != 0 {
		t.Errorf("Expected no backend calls, got %v", backend.calls)
	}
	if obs.finished[BuildStatusFailed] != 1 || obs.kinds[KindConflictingComponents] != 1 {
		t.Errorf("Expected a failed build with one conflict, got %+v", obs)
	}
}

func TestBuilder_ValidationErrorsBatched(t *testing.T) {
	reg := radioRegistry(t)
	backend := &recordingBackend{}

	raw := NewRawConfig("").
		Add("platform", Options{"extra": 1}).
		Add("radio", Options{"channel": 300})

	_, err := NewBuilder(reg, testLogger()).WithBackend(backend).Build(context.Background(), raw)
	if errs := Errors(err); len(errs) != 3 {
		t.Fatalf("Expected 3 batched errors, got: %v", err)
	}
	if len(backend.calls) != 0 {
		t.Errorf("Expected no backend calls, got %v", backend.calls)
	}
}

func TestBuilder_AutoLoadedDefaultsValidated(t *testing.T) {
	reg := NewComponentRegistry()
	mustRegister(t, reg, NewSchema("loader").AutoLoads("needy"), nopRegister)
	mustRegister(t, reg, NewSchema("needy").Required("key", String()), nopRegister)
	reg.Freeze()

	_, err := NewBuilder(reg, testLogger()).Build(context.Background(), NewRawConfig("").Add("loader", nil))
	if !errors.Is(err, ErrMissingRequiredOption) {
		t.Fatalf("Expected MissingRequiredOption for the auto-loaded component, got: %v", err)
	}
	if ce := Errors(err)[0]; ce.Component != "needy" {
		t.Errorf("Expected error against needy, got %v", ce)
	}
}

func TestBuilder_DisabledComponent(t *testing.T) {
	reg := radioRegistry(t)
	raw := NewRawConfig("").
		Add("platform", nil).
		Add("radio", Options{"network_key": "k"}).
		Disable("network")

	result, err := NewBuilder(reg, testLogger()).Build(context.Background(), raw)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !equalStrings(result.Order, []string{"platform", "radio"}) {
		t.Errorf("Expected [platform radio], got %v", result.Order)
	}
}

func TestBuilder_PolicyDenies(t *testing.T) {
	reg := radioRegistry(t)
	backend := &recordingBackend{}
	policy := &stubPolicy{result: &PolicyResult{
		Allowed: false,
		Violations: []PolicyViolation{
			{Policy: "radio_channel", Component: "radio", Message: "channel 10 is outside 11-26", Severity: SeverityWarning},
			{Policy: "radio_platform", Component: "radio", Message: "unsupported variant", Severity: SeverityError},
		},
	}}

	raw := NewRawConfig("").Add("platform", nil).Add("radio", Options{"network_key": "k"})
	_, err := NewBuilder(reg, testLogger()).WithBackend(backend).WithPolicy(policy).
		Build(context.Background(), raw)

	if !errors.Is(err, ErrPolicyViolation) {
		t.Fatalf("Expected PolicyViolation, got: %v", err)
	}
	if errs := Errors(err); len(errs) != 1 || errs[0].Component != "radio" {
		t.Errorf("Expected only the blocking violation, got %v", errs)
	}
	if len(backend.calls) != 0 {
		t.Errorf("Expected no registration after a policy denial, got %v", backend.calls)
	}

	plan := policy.plans[0]
	if !equalStrings(plan.Order, []string{"platform", "network", "radio"}) || plan.AutoLoaded["network"] != "radio" {
		t.Errorf("Unexpected plan %+v", plan)
	}
}

func TestBuilder_PolicyAllowsWithWarnings(t *testing.T) {
	reg := radioRegistry(t)
	policy := &stubPolicy{result: &PolicyResult{
		Allowed:    true,
		Violations: []PolicyViolation{{Policy: "radio_channel", Message: "out of band", Severity: SeverityWarning}},
	}}

	raw := NewRawConfig("").Add("platform", nil).Add("radio", Options{"network_key": "k"})
	result, err := NewBuilder(reg, testLogger()).WithPolicy(policy).Build(context.Background(), raw)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Policy == nil || len(result.Policy.Violations) != 1 {
		t.Errorf("Expected the policy result to be kept, got %+v", result.Policy)
	}
}

func TestBuilder_PolicyError(t *testing.T) {
	reg := radioRegistry(t)
	policy := &stubPolicy{err: fmt.Errorf("rego compile error")}

	raw := NewRawConfig("").Add("platform", nil)
	_, err := NewBuilder(reg, testLogger()).WithPolicy(policy).Build(context.Background(), raw)
	if err == nil {
		t.Fatal("Expected policy evaluation error")
	}
	if IsKind(err, KindPolicyViolation) {
		t.Errorf("Expected an evaluation failure, not a violation: %v", err)
	}
}

func TestBuilder_NilConfig(t *testing.T) {
	if _, err := NewBuilder(radioRegistry(t), testLogger()).Build(context.Background(), nil); err == nil {
		t.Error("Expected error for nil config")
	}
}

func TestSeverity_Blocking(t *testing.T) {
	tests := []struct {
		severity Severity
		want     bool
	}{
		{SeverityError, true},
		{SeverityWarning, false},
		{SeverityInfo, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.severity.Blocking(); got != tt.want {
			t.Errorf("Severity(%q).Blocking() = %t, want %t", tt.severity, got, tt.want)
		}
	}
}

func TestBuilder_PolicyDeniesOnlyBlockingSeverity(t *testing.T) {
	reg := radioRegistry(t)
	policy := &stubPolicy{result: &PolicyResult{
		Allowed: false,
		Violations: []PolicyViolation{
			{Policy: "radio_note", Component: "platform", Message: "consider a newer board", Severity: SeverityInfo},
			{Policy: "radio_platform", Component: "radio", Message: "unsupported variant", Severity: SeverityError},
		},
	}}

	raw := NewRawConfig("").Add("platform", nil).Add("radio", Options{"network_key": "k"})
	_, err := NewBuilder(reg, testLogger()).WithPolicy(policy).Build(context.Background(), raw)

	errs := Errors(err)
	if len(errs) != 1 || errs[0].Kind != KindPolicyViolation {
		t.Fatalf("Expected one PolicyViolation, got: %v", err)
	}
	if !strings.Contains(errs[0].Message, "radio_platform") {
		t.Errorf("Expected the error-severity violation, got %v", errs[0])
	}
}
