package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/openfroyo/fwgen/pkg/engine"

// Registrar drives registration callbacks in resolved order and forwards
// each step to the code-generation backend.
type Registrar struct {
	registry *ComponentRegistry
	backend  Backend
	logger   zerolog.Logger
	observer BuildObserver
	tracer   trace.Tracer
}

// NewRegistrar creates a registrar. backend may be nil when only the
// registration context is of interest.
func NewRegistrar(registry *ComponentRegistry, backend Backend, logger zerolog.Logger) *Registrar {
	return &Registrar{
		registry: registry,
		backend:  backend,
		logger:   logger.With().Str("component", "registrar").Logger(),
		observer: nopObserver{},
		tracer:   otel.Tracer(instrumentationName),
	}
}

// WithObserver sets the observer notified after each registration.
func (r *Registrar) WithObserver(o BuildObserver) *Registrar {
	if o != nil {
		r.observer = o
	}
	return r
}

// RegisterAll invokes the registration callback of every component in order.
// The first failure aborts the remaining components; effects already handed
// to the backend are not rolled back.
func (r *Registrar) RegisterAll(ctx context.Context, order []string, config ValidatedConfig, rc *RegistrationContext) ([]Registration, error) {
	registrations := make([]Registration, 0, len(order))

	for pos, id := range order {
		reg, err := r.registerOne(ctx, pos, id, config, rc)
		if err != nil {
			r.logger.Error().Err(err).
				Str("component_id", id).
				Int("position", pos).
				Int("remaining", len(order)-pos-1).
				Msg("Registration aborted")
			return registrations, err
		}
		registrations = append(registrations, reg)
	}

	return registrations, nil
}

func (r *Registrar) registerOne(ctx context.Context, pos int, id string, config ValidatedConfig, rc *RegistrationContext) (Registration, error) {
	ctx, span := r.tracer.Start(ctx, "component.register", trace.WithAttributes(
		attribute.String("component.id", id),
		attribute.Int("component.position", pos),
	))
	defer span.End()

	fail := func(err *ConfigError) (Registration, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Registration{}, err
	}

	comp, ok := r.registry.Get(id)
	if !ok {
		return fail(NewConfigError(KindUnknownComponent, id, "component is not registered"))
	}
	opts, ok := config[id]
	if !ok {
		return fail(NewConfigError(KindRegistrationFailed, id, "component has no validated configuration"))
	}

	start := time.Now()
	mark := rc.begin(id)
	instance, err := comp.Register(rc, opts)
	statements, defines, platform := rc.finish(mark, instance)
	if err != nil {
		return fail(NewConfigError(KindRegistrationFailed, id, "registration callback failed").WithCause(err))
	}

	reg := Registration{
		Component:  id,
		InstanceID: instance,
		Options:    opts,
		Statements: statements,
		Defines:    defines,
		Position:   pos,
	}

	if r.backend != nil {
		if err := r.backend.Register(ctx, reg); err != nil {
			return fail(NewConfigError(KindRegistrationFailed, id, "backend rejected registration").WithCause(err))
		}
		for _, opt := range platform {
			if err := r.backend.SetPlatformOption(ctx, opt.Name, opt.Value); err != nil {
				return fail(NewConfigError(KindRegistrationFailed, id,
					fmt.Sprintf("backend rejected platform option %s", opt.Name)).WithCause(err))
			}
		}
	}

	duration := time.Since(start)
	r.observer.ComponentRegistered(id, duration)
	span.SetStatus(codes.Ok, "")

	r.logger.Debug().
		Str("component_id", id).
		Str("instance", instance).
		Int("statements", len(statements)).
		Dur("duration", duration).
		Msg("Component registered")

	return reg, nil
}
