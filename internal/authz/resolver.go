// Package authz resolves a verified user id to its authorization record.
package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"chapel/internal/authz/models"
	"chapel/pkg/platform/sentinel"
	"chapel/pkg/platform/tracing"
)

const tracerName = "chapel/internal/authz"

var (
	// ErrAdminTableMissing means admin_users is not provisioned.
	ErrAdminTableMissing = errors.New("authz: administrator table missing")
	// ErrProfileTableMissing means profiles is not provisioned.
	ErrProfileTableMissing = errors.New("authz: profile table missing")
	// ErrLookup wraps every other lookup failure.
	ErrLookup = errors.New("authz: lookup failed")
)

// Store is the read side of the administrator and profile tables.
type Store interface {
	FindAdmin(ctx context.Context, userID string) (*models.AdminUser, error)
	FindProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// LookupObserver records lookup latency per table.
type LookupObserver interface {
	ObserveRoleLookup(table string, elapsed time.Duration)
}

// Resolver reads role records. A missing row is not an error: callers
// receive (nil, nil) and decide what absence means for their policy.
type Resolver struct {
	store    Store
	observer LookupObserver
	tracer   trace.Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithObserver(o LookupObserver) Option {
	return func(r *Resolver) { r.observer = o }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// ResolveAdmin looks userID up in admin_users only.
func (r *Resolver) ResolveAdmin(ctx context.Context, userID string) (*models.Record, error) {
	ctx, span := r.startLookup(ctx, "admin_users", userID)
	defer span.End()
	start := time.Now()

	admin, err := r.store.FindAdmin(ctx, userID)
	r.observe("admin_users", start)
	switch {
	case err == nil:
		span.SetAttributes(tracing.AttrFound.Bool(true))
		return admin.Record(), nil
	case errors.Is(err, sentinel.ErrNotFound):
		span.SetAttributes(tracing.AttrFound.Bool(false))
		return nil, nil
	case errors.Is(err, sentinel.ErrTableMissing):
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%w: %w", ErrAdminTableMissing, err)
	default:
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}
}

// ResolveProfile looks userID up in profiles only.
func (r *Resolver) ResolveProfile(ctx context.Context, userID string) (*models.Record, error) {
	ctx, span := r.startLookup(ctx, "profiles", userID)
	defer span.End()
	start := time.Now()

	profile, err := r.store.FindProfile(ctx, userID)
	r.observe("profiles", start)
	switch {
	case err == nil:
		span.SetAttributes(tracing.AttrFound.Bool(true))
		return profile.Record(), nil
	case errors.Is(err, sentinel.ErrNotFound):
		span.SetAttributes(tracing.AttrFound.Bool(false))
		return nil, nil
	case errors.Is(err, sentinel.ErrTableMissing):
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%w: %w", ErrProfileTableMissing, err)
	default:
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}
}

// Resolve checks admin_users first and falls back to profiles.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*models.Record, error) {
	rec, err := r.ResolveAdmin(ctx, userID)
	if err != nil || rec != nil {
		return rec, err
	}
	return r.ResolveProfile(ctx, userID)
}

func (r *Resolver) startLookup(ctx context.Context, table, userID string) (context.Context, trace.Span) {
	return tracing.StartSpan(ctx, r.tracer, "authz.lookup."+table,
		trace.WithAttributes(tracing.AttrTable.String(table), tracing.AttrUserID.String(userID)))
}

func (r *Resolver) observe(table string, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveRoleLookup(table, time.Since(start))
	}
}
