package codegen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ManifestFile lists the generated files and their digests.
const ManifestFile = "fwgen-manifest.json"

// Manifest describes one generated source tree.
type Manifest struct {
	BuildID     string            `json:"build_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Order       []string          `json:"order"`
	Files       map[string]string `json:"files"`
	Unchanged   []string          `json:"unchanged,omitempty"`
}

// CppBackend collects registrations like MemoryBackend and writes the
// rendered sources to a directory on Flush.
type CppBackend struct {
	*MemoryBackend
	outDir string
	logger zerolog.Logger
}

// NewCppBackend creates a backend writing into outDir.
func NewCppBackend(outDir string, logger zerolog.Logger) *CppBackend {
	return &CppBackend{
		MemoryBackend: NewMemoryBackend(),
		outDir:        outDir,
		logger:        logger.With().Str("component", "codegen").Logger(),
	}
}

// OutDir returns the output directory.
func (b *CppBackend) OutDir() string {
	return b.outDir
}

// Flush renders everything collected and writes the sources and a manifest.
// Files are written to a temporary name first and renamed into place. A file
// whose content already matches is left untouched so incremental firmware
// builds do not recompile it.
func (b *CppBackend) Flush(ctx context.Context, buildID string) (*Manifest, error) {
	out, err := b.Render()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(b.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	regs := b.Registrations()
	manifest := &Manifest{
		BuildID:     buildID,
		GeneratedAt: time.Now().UTC(),
		Order:       make([]string, 0, len(regs)),
		Files:       make(map[string]string),
	}
	for _, r := range regs {
		manifest.Order = append(manifest.Order, r.Component)
	}

	files := out.Files()
	for _, name := range FileNames() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum := sha256.Sum256(files[name])
		manifest.Files[name] = hex.EncodeToString(sum[:])

		path := filepath.Join(b.outDir, name)
		if unchanged(path, sum) {
			manifest.Unchanged = append(manifest.Unchanged, name)
			continue
		}
		if err := writeFile(path, files[name]); err != nil {
			return nil, err
		}
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := writeFile(filepath.Join(b.outDir, ManifestFile), data); err != nil {
		return nil, err
	}

	b.logger.Info().
		Str("build_id", buildID).
		Str("out_dir", b.outDir).
		Int("registrations", len(regs)).
		Int("unchanged", len(manifest.Unchanged)).
		Msg("Sources written")

	return manifest, nil
}

// unchanged reports whether the file at path has the given sha256 digest.
func unchanged(path string, sum [sha256.Size]byte) bool {
	current, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return sha256.Sum256(current) == sum
}

func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
