package engine

import (
	"errors"
	"testing"
)

func TestSchema_DefineOption_Redefinition(t *testing.T) {
	s := NewSchema("radio")
	if err := s.DefineOption("network_key", Required, String()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	err := s.DefineOption("network_key", Optional, String(), "")
	if !errors.Is(err, ErrSchemaRedefinition) {
		t.Fatalf("Expected SchemaRedefinition, got: %v", err)
	}

	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Component != "radio" || ce.Option != "network_key" {
		t.Errorf("Expected error naming radio/network_key, got: %v", err)
	}
}

func TestSchema_DefineOption_Invalid(t *testing.T) {
	tests := []struct {
		name string
		def  func(s *ComponentSchema) error
	}{
		{"empty name", func(s *ComponentSchema) error { return s.DefineOption("", Required, String()) }},
		{"nil validator", func(s *ComponentSchema) error { return s.DefineOption("a", Required, nil) }},
		{"required with default", func(s *ComponentSchema) error { return s.DefineOption("a", Required, String(), "x") }},
		{"optional without default", func(s *ComponentSchema) error { return s.DefineOption("a", Optional, String()) }},
		{"default fails validator", func(s *ComponentSchema) error { return s.DefineOption("a", Optional, UInt8(), 300) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def(NewSchema("c"))
			if !errors.Is(err, ErrSchemaRedefinition) {
				t.Errorf("Expected SchemaRedefinition, got: %v", err)
			}
		})
	}
}

func TestSchema_DefaultIsCoerced(t *testing.T) {
	s := NewSchema("radio").Optional("channel", UInt8(), 10)
	if err := s.Err(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	spec, ok := s.Option("channel")
	if !ok {
		t.Fatal("Expected channel option to exist")
	}
	if v, ok := spec.Default.(uint8); !ok || v != 10 {
		t.Errorf("Expected uint8(10) default, got %T(%v)", spec.Default, spec.Default)
	}
	if spec.Requiredness != Optional {
		t.Errorf("Expected optional, got %s", spec.Requiredness)
	}
}

func TestSchema_SelfReference(t *testing.T) {
	s := NewSchema("radio")
	if err := s.DeclareDependencies("radio"); !errors.Is(err, ErrSchemaRedefinition) {
		t.Errorf("Expected SchemaRedefinition for self dependency, got: %v", err)
	}
	if err := s.DeclareConflicts("radio"); !errors.Is(err, ErrSchemaRedefinition) {
		t.Errorf("Expected SchemaRedefinition for self conflict, got: %v", err)
	}
	if err := s.DeclareAutoLoad("radio"); !errors.Is(err, ErrSchemaRedefinition) {
		t.Errorf("Expected SchemaRedefinition for self auto-load, got: %v", err)
	}
}

func TestSchema_DeclareDeduplicates(t *testing.T) {
	s := NewSchema("radio").ConflictsWith("wifi", "ethernet", "wifi")
	if got := s.Conflicts(); !equalStrings(got, []string{"wifi", "ethernet"}) {
		t.Errorf("Expected [wifi ethernet], got %v", got)
	}
}

func TestSchema_ChainRecordsFirstError(t *testing.T) {
	s := NewSchema("radio").
		Required("network_key", String()).
		Required("network_key", String()).
		DependsOn("radio")

	var ce *ConfigError
	if !errors.As(s.Err(), &ce) {
		t.Fatalf("Expected a ConfigError, got: %v", s.Err())
	}
	if ce.Option != "network_key" {
		t.Errorf("Expected the first error (network_key redefinition), got: %v", ce)
	}

	reg := NewComponentRegistry()
	if err := reg.Register(s, nopRegister); !errors.Is(err, ErrSchemaRedefinition) {
		t.Errorf("Expected Register to surface the schema error, got: %v", err)
	}
}

func TestSchema_GenerateID(t *testing.T) {
	s := NewSchema("openthread").GenerateID("OpenThreadComponent")
	if s.ClassName != "OpenThreadComponent" {
		t.Errorf("Expected class name to be set, got %q", s.ClassName)
	}

	spec, ok := s.Option(IDOption)
	if !ok {
		t.Fatal("Expected id option")
	}
	if spec.Default != "openthread_openthreadcomponent" {
		t.Errorf("Unexpected default id %v", spec.Default)
	}

	out, err := Validate(s, Options{"id": "9bad"})
	if !errors.Is(err, ErrInvalidValue) || out != nil {
		t.Errorf("Expected invalid identifier to fail, got %v, %v", out, err)
	}
}

func TestSchema_OptionsPreserveOrder(t *testing.T) {
	s := NewSchema("c").
		Required("b", String()).
		Optional("a", Bool(), false).
		Required("c", Float())

	var names []string
	for _, o := range s.Options() {
		names = append(names, o.Name)
	}
	if !equalStrings(names, []string{"b", "a", "c"}) {
		t.Errorf("Expected declaration order [b a c], got %v", names)
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewComponentRegistry()
	mustRegister(t, reg, NewSchema("a"), nopRegister)

	if err := reg.Register(NewSchema("a"), nopRegister); !errors.Is(err, ErrSchemaRedefinition) {
		t.Errorf("Expected duplicate component to fail, got: %v", err)
	}
	if err := reg.Register(NewSchema("b"), nil); err == nil {
		t.Error("Expected nil callback to fail")
	}
	if err := reg.Register(nil, nopRegister); err == nil {
		t.Error("Expected nil schema to fail")
	}

	reg.Freeze()
	if !reg.Frozen() {
		t.Error("Expected registry to be frozen")
	}
	if err := reg.Register(NewSchema("c"), nopRegister); err == nil {
		t.Error("Expected register on a frozen registry to fail")
	}
	if reg.Len() != 1 || !equalStrings(reg.IDs(), []string{"a"}) {
		t.Errorf("Unexpected registry contents %v", reg.IDs())
	}
}

func TestRegistry_CheckReferences(t *testing.T) {
	reg := newTestRegistry(t,
		NewSchema("a").DependsOn("b"),
		NewSchema("b").AutoLoads("missing"),
	)

	err := reg.CheckReferences()
	if !errors.Is(err, ErrUnknownComponent) {
		t.Fatalf("Expected UnknownComponent, got: %v", err)
	}
	errs := Errors(err)
	if len(errs) != 1 || errs[0].Component != "b" || errs[0].Other != "missing" {
		t.Errorf("Unexpected errors %v", errs)
	}
}
