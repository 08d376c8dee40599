package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testRego = `package site.naming

# Device names must be short.
# Longer names are truncated by mDNS.

import rego.v1

deny contains msg if {
	false
	msg := "never"
}
`

func newTestLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := newTestLoader()
	policyFile := filepath.Join(t.TempDir(), "short-names.rego")
	writeFile(t, policyFile, testRego)

	policies, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}

	policy := policies[0]
	if policy.Name != "short-names" {
		t.Errorf("Expected name 'short-names', got '%s'", policy.Name)
	}
	if policy.Rego != testRego {
		t.Error("Rego content doesn't match")
	}
	if policy.Description != "Device names must be short. Longer names are truncated by mDNS." {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if !policy.Enabled || policy.Severity != SeverityError || policy.Source != policyFile {
		t.Errorf("Unexpected defaults: %+v", policy)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := newTestLoader()
	policyFile := filepath.Join(t.TempDir(), "policy.json")

	data, err := json.Marshal(Policy{
		Name:     "json-policy",
		Rego:     testRego,
		Severity: SeverityWarning,
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writeFile(t, policyFile, string(data))

	policies, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "json-policy" || policies[0].Severity != SeverityWarning {
		t.Errorf("Unexpected policies: %+v", policies)
	}
	if policies[0].CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestLoadFromFile_Bundle(t *testing.T) {
	loader := newTestLoader()
	bundleFile := filepath.Join(t.TempDir(), "bundle.json")

	data, err := json.Marshal(PolicyBundle{
		Name:    "site",
		Version: "1.0.0",
		Policies: []Policy{
			{Name: "a", Rego: testRego, Enabled: true},
			{Name: "b", Rego: testRego, Enabled: true, Severity: SeverityInfo},
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal bundle: %v", err)
	}
	writeFile(t, bundleFile, string(data))

	policies, err := loader.loadFromFile(context.Background(), bundleFile)
	if err != nil {
		t.Fatalf("Failed to load bundle: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Severity != SeverityError || policies[1].Severity != SeverityInfo {
		t.Errorf("Unexpected severities: %s, %s", policies[0].Severity, policies[1].Severity)
	}
	for _, p := range policies {
		if p.Source != bundleFile {
			t.Errorf("Expected source %s, got %s", bundleFile, p.Source)
		}
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "a.rego"), testRego)
	writeFile(t, filepath.Join(dir, "nested", "deep", "b.rego"), testRego)
	writeFile(t, filepath.Join(dir, "nested", "README.md"), "ignored")
	writeFile(t, filepath.Join(dir, "broken.json"), "{not json")

	policies, err := loader.loadFromDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Name != "a" || policies[1].Name != "b" {
		t.Errorf("Expected sorted a, b, got %s, %s", policies[0].Name, policies[1].Name)
	}
}

func TestLoadFromPaths_Glob(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "site", "one.rego"), testRego)
	writeFile(t, filepath.Join(dir, "site", "sub", "two.rego"), testRego)
	writeFile(t, filepath.Join(dir, "site", "sub", "skip.json"), `{"name":"skip","rego":"package x"}`)

	policies, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "site", "**", "*.rego")})
	if err != nil {
		t.Fatalf("Failed to load glob: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
}

func TestLoadFromPaths_Errors(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "policy.txt"), "text")
	writeFile(t, filepath.Join(dir, "bad.json"), "{not json")

	tests := []struct {
		name string
		path string
	}{
		{"non-existent", filepath.Join(dir, "missing.rego")},
		{"unsupported type", filepath.Join(dir, "policy.txt")},
		{"invalid json", filepath.Join(dir, "bad.json")},
		{"invalid glob", filepath.Join(dir, "[.rego")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loader.LoadFromPaths(context.Background(), []string{tt.path}); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestExtractDescription(t *testing.T) {
	loader := newTestLoader()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"single line", "# Check names\npackage x", "Check names"},
		{"skips package comment", "# package x\n# Real text\npackage x", "Real text"},
		{"no comments", "package x\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loader.extractDescription(tt.content); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	loader := newTestLoader()
	policyFile := filepath.Join(t.TempDir(), "cached.rego")
	writeFile(t, policyFile, testRego)

	if _, err := loader.loadFromFile(context.Background(), policyFile); err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	writeFile(t, policyFile, "# Changed\npackage changed\n")
	policies, _ := loader.loadFromFile(context.Background(), policyFile)
	if policies[0].Rego != testRego {
		t.Error("Expected cached policy before ClearCache")
	}

	loader.ClearCache()
	policies, _ = loader.loadFromFile(context.Background(), policyFile)
	if policies[0].Description != "Changed" {
		t.Errorf("Expected reloaded policy after ClearCache, got %q", policies[0].Description)
	}
}

func TestWatch_Reload(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), testRego)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 4)
	err := loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		reloaded <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}

	writeFile(t, filepath.Join(dir, "b.rego"), testRego)

	select {
	case policies := <-reloaded:
		if len(policies) != 2 {
			t.Errorf("Expected 2 policies after reload, got %d", len(policies))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

func TestWatch_RemovedPolicyIsDropped(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), testRego)
	writeFile(t, filepath.Join(dir, "b.rego"), testRego)

	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.LoadPolicies(ctx, []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}
	if _, err := eng.GetPolicy("b"); err != nil {
		t.Fatalf("Expected policy b to be loaded: %v", err)
	}

	err = loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		return eng.ReplacePolicies(ctx, p)
	})
	if err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "b.rego")); err != nil {
		t.Fatalf("Failed to remove policy file: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := eng.GetPolicy("b"); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for policy b to be dropped")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if _, err := eng.GetPolicy("a"); err != nil {
		t.Errorf("Expected policy a to remain: %v", err)
	}
}
