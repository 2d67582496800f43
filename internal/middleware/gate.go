package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/tollgate/internal/auth"
	"github.com/BradenHooton/tollgate/internal/metrics"
	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/BradenHooton/tollgate/internal/stats"
	pkghttp "github.com/BradenHooton/tollgate/pkg/http"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tollgate/gate"

// AuditRecorder persists security decisions
type AuditRecorder interface {
	Record(ctx context.Context, ev *models.AuditEvent) error
}

// Verdict is a stage's decision. Denials are values, not errors.
type Verdict struct {
	Allow     bool
	Status    int
	Reason    models.DenyReason
	Message   string
	RateLimit *models.RateDecision

	// Audit is recorded by the gate before the response is written
	Audit *models.AuditEvent

	// Context replaces the request context for later stages and the handler
	Context context.Context
}

// Allowed is the zero-cost pass verdict
func Allowed() Verdict {
	return Verdict{Allow: true}
}

// Stage is one step of the admission pipeline. A returned error means the
// stage could not decide and the request is rejected.
type Stage interface {
	Name() string
	Evaluate(r *http.Request, identity models.ClientIdentity) (Verdict, error)
}

// GateConfig wires the pipeline
type GateConfig struct {
	Env      string
	Stages   []Stage
	Resolver *auth.IdentityResolver
	Audit    AuditRecorder
	Metrics  *metrics.Metrics
	Stats    stats.Sink
	Tracer   trace.Tracer
	Logger   *slog.Logger
	Now      func() time.Time
}

type gate struct {
	GateConfig
}

// Gate runs every request through the configured stages in order and stops
// at the first denial.
func Gate(config GateConfig) func(http.Handler) http.Handler {
	g := &gate{GateConfig: config}
	if g.Tracer == nil {
		g.Tracer = otel.Tracer(tracerName)
	}
	if g.Now == nil {
		g.Now = time.Now
	}
	if g.Logger == nil {
		g.Logger = slog.Default()
	}
	if g.Resolver == nil {
		g.Resolver = auth.NewIdentityResolver(nil)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applySecurityHeaders(w, r, g.Env)

			identity := g.Resolver.Resolve(r)

			for _, stage := range g.Stages {
				verdict, err := g.evaluate(r, stage, identity)
				if err != nil {
					g.failClosed(w, r, stage.Name(), err)
					return
				}

				if verdict.RateLimit != nil {
					g.setRateLimitHeaders(w, *verdict.RateLimit)
				}

				if verdict.Audit != nil && g.Audit != nil {
					if err := g.Audit.Record(r.Context(), verdict.Audit); err != nil {
						g.Logger.WarnContext(r.Context(), "failed to record gate audit event",
							slog.String("event", verdict.Audit.EventName),
							slog.String("error", err.Error()))
					}
				}

				if !verdict.Allow {
					g.deny(w, r, stage.Name(), verdict)
					return
				}

				if verdict.Context != nil {
					r = r.WithContext(verdict.Context)
				}
			}

			g.record(r, stats.Decision{Stage: "gate", Allowed: true})
			next.ServeHTTP(w, r)
		})
	}
}

func (g *gate) evaluate(r *http.Request, stage Stage, identity models.ClientIdentity) (Verdict, error) {
	ctx, span := g.Tracer.Start(r.Context(), "gate."+stage.Name(), trace.WithAttributes(
		attribute.String("gate.stage", stage.Name()),
		attribute.String("http.method", r.Method),
		attribute.String("http.target", r.URL.Path),
		attribute.Bool("client.authenticated", identity.IsAuthenticated()),
	))
	defer span.End()

	start := time.Now()
	verdict, err := stage.Evaluate(r.WithContext(ctx), identity)
	g.Metrics.ObserveStageDuration(stage.Name(), time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.Metrics.IncrementGateDecision(stage.Name(), "error", string(models.DenyCheckUnavailable))
		return Verdict{}, err
	}

	span.SetAttributes(
		attribute.Bool("gate.allowed", verdict.Allow),
		attribute.String("gate.reason", string(verdict.Reason)),
	)

	outcome := "allow"
	if !verdict.Allow {
		outcome = "deny"
	}
	g.Metrics.IncrementGateDecision(stage.Name(), outcome, string(verdict.Reason))
	return verdict, nil
}

func (g *gate) deny(w http.ResponseWriter, r *http.Request, stage string, verdict Verdict) {
	g.Logger.InfoContext(r.Context(), "request denied",
		slog.String("stage", stage),
		slog.String("reason", string(verdict.Reason)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if verdict.RateLimit != nil && !verdict.RateLimit.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(verdict.RateLimit.RetryAfter(g.Now())))
	}

	g.record(r, stats.Decision{Stage: stage, Allowed: false, Reason: string(verdict.Reason)})
	pkghttp.WriteError(w, verdict.Status, string(verdict.Reason), verdict.Message)
}

func (g *gate) failClosed(w http.ResponseWriter, r *http.Request, stage string, err error) {
	g.Logger.ErrorContext(r.Context(), "security check failed",
		slog.String("stage", stage),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)

	if g.Audit != nil {
		ev := &models.AuditEvent{
			EventName:  models.AuditEventSecurityCheckFailed,
			Severity:   models.SeverityMedium,
			ActorIP:    models.StrPtr(g.Resolver.ClientIP(r)),
			TargetType: models.AuditTargetRoute,
			TargetID:   models.StrPtr(r.URL.Path),
			Metadata: models.AuditMetadata{
				"stage":  stage,
				"method": r.Method,
			},
		}
		if auditErr := g.Audit.Record(r.Context(), ev); auditErr != nil {
			g.Logger.WarnContext(r.Context(), "failed to record security check failure",
				slog.String("error", auditErr.Error()))
		}
	}

	g.record(r, stats.Decision{Stage: stage, Allowed: false, Reason: string(models.DenyCheckUnavailable)})
	pkghttp.WriteServiceUnavailable(w, string(models.DenyCheckUnavailable), "Security check temporarily unavailable")
}

func (g *gate) setRateLimitHeaders(w http.ResponseWriter, d models.RateDecision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// record mirrors the final decision into the stats sink off the request path
func (g *gate) record(r *http.Request, d stats.Decision) {
	if g.Stats == nil {
		return
	}
	d.Method = r.Method
	d.Path = r.URL.Path
	d.At = g.Now()

	ctx := context.WithoutCancel(r.Context())
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		defer cancel()
		if err := g.Stats.Record(ctx, d); err != nil {
			g.Logger.DebugContext(ctx, "failed to record gate stats", slog.String("error", err.Error()))
		}
	}()
}
