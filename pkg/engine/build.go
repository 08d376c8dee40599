package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Builder runs the full pipeline for one configuration: validate, resolve,
// evaluate policies and register.
type Builder struct {
	registry *ComponentRegistry
	logger   zerolog.Logger

	// backend receives registrations; nil means registrations are only
	// collected in the result
	backend Backend

	// policy is evaluated against the resolved plan when set
	policy PolicyEvaluator

	observer BuildObserver
	tracer   trace.Tracer
}

// NewBuilder creates a builder over a frozen registry.
func NewBuilder(registry *ComponentRegistry, logger zerolog.Logger) *Builder {
	return &Builder{
		registry: registry,
		logger:   logger,
		observer: nopObserver{},
		tracer:   otel.Tracer(instrumentationName),
	}
}

// WithBackend sets the code-generation backend.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// WithPolicy sets the policy evaluator.
func (b *Builder) WithPolicy(policy PolicyEvaluator) *Builder {
	b.policy = policy
	return b
}

// WithObserver sets the build observer.
func (b *Builder) WithObserver(o BuildObserver) *Builder {
	if o != nil {
		b.observer = o
	}
	return b
}

// Build validates raw, resolves the component set and registers every
// component. No registration callback runs unless validation, resolution and
// policy evaluation all succeed.
func (b *Builder) Build(ctx context.Context, raw *RawConfig) (*BuildResult, error) {
	if raw == nil {
		return nil, fmt.Errorf("raw config cannot be nil")
	}

	id := uuid.New().String()
	start := time.Now()
	logger := b.logger.With().Str("build_id", id).Logger()

	ctx, span := b.tracer.Start(ctx, "build", trace.WithAttributes(
		attribute.String("build.id", id),
		attribute.String("build.source", raw.Source),
		attribute.Int("build.components", len(raw.Components)),
	))
	defer span.End()

	b.observer.BuildStarted()
	logger.Info().
		Str("source", raw.Source).
		Int("components", len(raw.Components)).
		Msg("Build started")

	result, err := b.run(ctx, id, raw, logger)
	duration := time.Since(start)

	if err != nil {
		for _, ce := range Errors(err) {
			b.observer.ConfigErrorRecorded(ce.Kind)
		}
		b.observer.BuildFinished(BuildStatusFailed, duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Dur("duration", duration).Msg("Build failed")
		return nil, err
	}

	result.StartedAt = start
	result.Duration = duration
	b.observer.BuildFinished(BuildStatusSucceeded, duration)
	span.SetStatus(codes.Ok, "")
	logger.Info().
		Strs("order", result.Order).
		Int("registrations", len(result.Registrations)).
		Dur("duration", duration).
		Msg("Build succeeded")

	return result, nil
}

func (b *Builder) run(ctx context.Context, id string, raw *RawConfig, logger zerolog.Logger) (*BuildResult, error) {
	// Resolution runs even when options are invalid so that one pass
	// reports schema and composition errors together.
	validated, verr := b.validate(ctx, raw)
	res, rerr := b.resolve(ctx, raw, logger)
	if verr != nil || rerr != nil {
		return nil, mergeErrors(verr, rerr)
	}

	// Auto-loaded components carry no user options; their defaults still
	// have to pass validation.
	var errs ErrorList
	for _, auto := range res.Order {
		if _, ok := res.AutoLoaded[auto]; !ok {
			continue
		}
		schema, _ := b.registry.Schema(auto)
		opts, err := Validate(schema, Options{})
		if err != nil {
			errs = append(errs, Errors(err)...)
			continue
		}
		validated[auto] = opts
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if err := checkInstanceIDs(res.Order, validated); err != nil {
		return nil, err
	}

	result := &BuildResult{
		ID:         id,
		Source:     raw.Source,
		Order:      res.Order,
		Config:     validated,
		Resolution: res,
	}

	if b.policy != nil {
		plan := &Plan{
			ID:         id,
			Order:      res.Order,
			Components: validated,
			AutoLoaded: res.AutoLoaded,
		}
		pr, err := b.policy.EvaluatePlan(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("policy evaluation failed: %w", err)
		}
		result.Policy = pr
		if !pr.Allowed {
			return nil, policyErrors(pr)
		}
		for _, v := range pr.Violations {
			logger.Warn().
				Str("policy", v.Policy).
				Str("component_id", v.Component).
				Msg(v.Message)
		}
	}

	rc := NewRegistrationContext(id)
	registrar := NewRegistrar(b.registry, b.backend, logger).WithObserver(b.observer)
	regs, err := registrar.RegisterAll(ctx, res.Order, validated, rc)
	if err != nil {
		return nil, err
	}

	result.Registrations = regs
	result.Context = rc
	return result, nil
}

func (b *Builder) validate(ctx context.Context, raw *RawConfig) (ValidatedConfig, error) {
	_, span := b.tracer.Start(ctx, "build.validate")
	defer span.End()

	validated, err := ValidateConfig(b.registry, raw)
	if err != nil {
		span.SetStatus(codes.Error, "validation failed")
		span.SetAttributes(attribute.Int("validation.errors", len(Errors(err))))
		return nil, err
	}
	return validated, nil
}

func (b *Builder) resolve(ctx context.Context, raw *RawConfig, logger zerolog.Logger) (*Resolution, error) {
	_, span := b.tracer.Start(ctx, "build.resolve")
	defer span.End()

	res, err := NewResolver(b.registry, logger).Resolve(declarationOrder(raw), raw.Disabled)
	if err != nil {
		span.SetStatus(codes.Error, "resolution failed")
		return nil, err
	}
	span.SetAttributes(attribute.StringSlice("resolve.order", res.Order))
	return res, nil
}

// mergeErrors joins validation and resolution errors. An unknown component
// is reported by both phases and is kept once.
func mergeErrors(errs ...error) error {
	type key struct {
		kind      ErrorKind
		component string
		option    string
		other     string
	}

	var merged ErrorList
	seen := make(map[key]bool)
	for _, err := range errs {
		for _, ce := range Errors(err) {
			k := key{ce.Kind, ce.Component, ce.Option, ce.Other}
			if seen[k] {
				continue
			}
			seen[k] = true
			merged = append(merged, ce)
		}
	}
	return merged.ErrOrNil()
}

// policyErrors converts blocking violations into configuration errors.
func policyErrors(pr *PolicyResult) error {
	var errs ErrorList
	for _, v := range pr.Violations {
		if !v.Severity.Blocking() {
			continue
		}
		errs = append(errs, NewConfigError(KindPolicyViolation, v.Component,
			fmt.Sprintf("%s: %s", v.Policy, v.Message)))
	}
	if len(errs) == 0 {
		errs = append(errs, NewConfigError(KindPolicyViolation, "", "build denied by policy"))
	}
	return errs
}
