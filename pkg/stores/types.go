package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/fwgen/pkg/engine"
)

// ErrNotFound is returned when a build does not exist.
var ErrNotFound = errors.New("not found")

// BuildRecord is one stored build, successful or not.
type BuildRecord struct {
	ID         string             `json:"id"`
	Source     string             `json:"source"`
	Project    string             `json:"project"`
	Status     engine.BuildStatus `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	Duration   time.Duration      `json:"duration"`
	Components []string           `json:"components"`            // registration order
	AutoLoaded map[string]string  `json:"auto_loaded,omitempty"` // component -> loaded by
	Defines    []string           `json:"defines,omitempty"`
	ConfigHash string             `json:"config_hash,omitempty"` // SHA256 of the validated config
	CreatedAt  time.Time          `json:"created_at"`

	Registrations []RegistrationRecord `json:"registrations,omitempty"`
	Errors        []ErrorRecord        `json:"errors,omitempty"`
}

// RegistrationRecord is one stored registration step.
type RegistrationRecord struct {
	Position   int                    `json:"position"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id,omitempty"`
	Options    map[string]interface{} `json:"options"`
	Statements []string               `json:"statements,omitempty"`
}

// ErrorRecord is one configuration error of a failed build.
type ErrorRecord struct {
	Kind      string `json:"kind"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

// NewSucceededRecord converts a successful build result into a record.
func NewSucceededRecord(result *engine.BuildResult, project string) (*BuildRecord, error) {
	hash, err := hashConfig(result.Config)
	if err != nil {
		return nil, err
	}

	rec := &BuildRecord{
		ID:         result.ID,
		Source:     result.Source,
		Project:    project,
		Status:     engine.BuildStatusSucceeded,
		StartedAt:  result.StartedAt,
		Duration:   result.Duration,
		Components: append([]string(nil), result.Order...),
		ConfigHash: hash,
		CreatedAt:  time.Now(),
	}
	if result.Resolution != nil {
		rec.AutoLoaded = result.Resolution.AutoLoaded
	}
	if result.Context != nil {
		rec.Defines = result.Context.Defines()
	}

	for _, reg := range result.Registrations {
		rec.Registrations = append(rec.Registrations, RegistrationRecord{
			Position:   reg.Position,
			Component:  reg.Component,
			InstanceID: reg.InstanceID,
			Options:    reg.Options,
			Statements: reg.Statements,
		})
	}

	return rec, nil
}

// NewFailedRecord records a build that stopped with buildErr. Failed builds
// get a fresh identifier since the engine does not return one.
func NewFailedRecord(source, project string, startedAt time.Time, buildErr error) *BuildRecord {
	rec := &BuildRecord{
		ID:         uuid.New().String(),
		Source:     source,
		Project:    project,
		Status:     engine.BuildStatusFailed,
		StartedAt:  startedAt,
		Duration:   time.Since(startedAt),
		Components: []string{},
		CreatedAt:  time.Now(),
	}

	for _, ce := range engine.Errors(buildErr) {
		rec.Errors = append(rec.Errors, ErrorRecord{
			Kind:      string(ce.Kind),
			Component: ce.Component,
			Message:   ce.Error(),
		})
	}

	return rec
}

func hashConfig(cfg engine.ValidatedConfig) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Store defines the interface for the build history
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Build operations
	RecordBuild(ctx context.Context, rec *BuildRecord) error
	GetBuild(ctx context.Context, id string) (*BuildRecord, error)
	ListBuilds(ctx context.Context, project string, limit, offset int) ([]*BuildRecord, error)
	DeleteBuild(ctx context.Context, id string) error
	PruneBuilds(ctx context.Context, keep int) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
