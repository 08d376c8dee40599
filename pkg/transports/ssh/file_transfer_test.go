package ssh

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}
}

func TestSelectFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.cpp":             "int main() {}",
		"fwgen.h":              "#pragma once",
		"sdkconfig.defaults":   "CONFIG_X=y",
		"build/cache/obj.o":    "binary",
		"components/wifi.cpp":  "// wifi",
		"components/README.md": "docs",
	})

	tests := []struct {
		name string
		opts UploadOptions
		want string
	}{
		{
			name: "everything",
			want: "build/cache/obj.o,components/README.md,components/wifi.cpp,fwgen.h,main.cpp,sdkconfig.defaults",
		},
		{
			name: "sources only",
			opts: UploadOptions{Include: []string{"**/*.{cpp,h}"}},
			want: "components/wifi.cpp,fwgen.h,main.cpp",
		},
		{
			name: "exclude build dir",
			opts: UploadOptions{Exclude: []string{"build/**", "**/*.md"}},
			want: "components/wifi.cpp,fwgen.h,main.cpp,sdkconfig.defaults",
		},
		{
			name: "overlapping includes",
			opts: UploadOptions{Include: []string{"*.cpp", "**/*.cpp"}},
			want: "components/wifi.cpp,main.cpp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := selectFiles(root, tt.opts)
			if err != nil {
				t.Fatalf("selectFiles failed: %v", err)
			}
			if got := strings.Join(files, ","); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSelectFiles_Errors(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.cpp": ""})

	if _, err := selectFiles(filepath.Join(root, "missing"), UploadOptions{}); err == nil {
		t.Error("expected error for missing root")
	}
	if _, err := selectFiles(filepath.Join(root, "main.cpp"), UploadOptions{}); err == nil {
		t.Error("expected error for file root")
	}
	if _, err := selectFiles(root, UploadOptions{Include: []string{"[.cpp"}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestLocalChecksum(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(p, []byte("abc"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	sum, size, err := localChecksum(p)
	if err != nil {
		t.Fatalf("checksum failed: %v", err)
	}
	if size != 3 || sum != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("unexpected checksum %s (%d bytes)", sum, size)
	}
}

func TestCopyWithContext(t *testing.T) {
	var dst bytes.Buffer
	n, err := copyWithContext(context.Background(), &dst, strings.NewReader("firmware"))
	if err != nil || n != 8 || dst.String() != "firmware" {
		t.Fatalf("unexpected copy: %d %q %v", n, dst.String(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := copyWithContext(ctx, &dst, strings.NewReader("x")); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestUploadTree(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := connectTestClient(t, server)
	ctx := context.Background()

	local := t.TempDir()
	remote := filepath.ToSlash(filepath.Join(t.TempDir(), "node"))
	writeTree(t, local, map[string]string{
		"main.cpp":            "int main() {}",
		"components/wifi.cpp": "// wifi",
		"build/obj.o":         "binary",
	})
	opts := UploadOptions{Exclude: []string{"build/**"}}

	first, err := client.UploadTree(ctx, local, remote, opts)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if len(first.Uploaded) != 2 || len(first.Skipped) != 0 || first.BytesTransferred != int64(len("int main() {}")+len("// wifi")) {
		t.Fatalf("unexpected first upload: %+v", first)
	}

	data, err := os.ReadFile(filepath.Join(filepath.FromSlash(remote), "components", "wifi.cpp"))
	if err != nil || string(data) != "// wifi" {
		t.Fatalf("expected uploaded wifi.cpp, got %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(filepath.FromSlash(remote), "build")); !os.IsNotExist(err) {
		t.Fatal("expected excluded build dir to stay local")
	}

	// Unchanged files are skipped; changed files are re-sent.
	writeTree(t, local, map[string]string{"main.cpp": "int main() { return 0; }"})
	second, err := client.UploadTree(ctx, local, remote, opts)
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if strings.Join(second.Uploaded, ",") != "main.cpp" || strings.Join(second.Skipped, ",") != "components/wifi.cpp" {
		t.Fatalf("unexpected second upload: %+v", second)
	}

	forced, err := client.UploadTree(ctx, local, remote, UploadOptions{Exclude: opts.Exclude, Force: true})
	if err != nil {
		t.Fatalf("forced upload failed: %v", err)
	}
	if len(forced.Uploaded) != 2 {
		t.Fatalf("expected forced upload of both files, got %+v", forced)
	}
}

func TestUploadTree_DeleteExtraneous(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := connectTestClient(t, server)

	local := t.TempDir()
	remoteRoot := t.TempDir()
	writeTree(t, local, map[string]string{"main.cpp": "int main() {}"})
	writeTree(t, remoteRoot, map[string]string{"stale.cpp": "old", "nested/old.h": "old"})

	result, err := client.UploadTree(context.Background(), local, filepath.ToSlash(remoteRoot), UploadOptions{DeleteExtraneous: true})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if strings.Join(result.Deleted, ",") != "nested/old.h,stale.cpp" {
		t.Fatalf("unexpected deletions: %v", result.Deleted)
	}
	if _, err := os.Stat(filepath.Join(remoteRoot, "main.cpp")); err != nil {
		t.Fatalf("expected main.cpp to remain: %v", err)
	}
}

func TestUploadFile(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := connectTestClient(t, server)

	local := filepath.Join(t.TempDir(), "sdkconfig.defaults")
	if err := os.WriteFile(local, []byte("CONFIG_OPENTHREAD_ENABLED=y\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	remote := filepath.ToSlash(filepath.Join(t.TempDir(), "deep", "sdkconfig.defaults"))

	result, err := client.UploadFile(context.Background(), local, remote, 0600)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if result.Skipped || result.BytesTransferred != 28 || len(result.Checksum) != 64 {
		t.Fatalf("unexpected result: %+v", result)
	}

	info, err := os.Stat(filepath.FromSlash(remote))
	if err != nil {
		t.Fatalf("expected remote file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	again, err := client.UploadFile(context.Background(), local, remote, 0600)
	if err != nil || !again.Skipped {
		t.Fatalf("expected skipped re-upload, got %+v, %v", again, err)
	}
}
