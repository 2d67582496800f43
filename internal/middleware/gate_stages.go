package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/tollgate/internal/auth"
	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/BradenHooton/tollgate/internal/ratelimit"
	pkghttp "github.com/BradenHooton/tollgate/pkg/http"
)

const (
	StageKillSwitch = "kill_switch"
	StagePathBucket = "path_bucket"
	StageAPIKey     = "api_key"
	StagePolicyTier = "policy_tier"
)

// KillSwitchChecker reports whether non-essential writes are halted
type KillSwitchChecker interface {
	IsActive(ctx context.Context) (bool, error)
}

// APIKeyAuthenticator resolves a raw key to an active machine client
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey, sourceIP string) (*models.APIKey, error)
}

// EndpointClassifier maps a path to its sensitivity tier
type EndpointClassifier interface {
	Classify(path string) models.EndpointClass
}

type apiKeyContextKey struct{}

// APIKeyFromContext returns the machine client admitted by the API key stage
func APIKeyFromContext(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(apiKeyContextKey{}).(*models.APIKey)
	return key
}

func isReadOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// KillSwitchStage blocks state-changing requests while the kill switch is on
type KillSwitchStage struct {
	Switch         KillSwitchChecker
	ExemptPrefixes []string
	Resolver       *auth.IdentityResolver
}

func (s *KillSwitchStage) Name() string { return StageKillSwitch }

func (s *KillSwitchStage) Evaluate(r *http.Request, identity models.ClientIdentity) (Verdict, error) {
	if isReadOnly(r.Method) || pkghttp.MatchesAnyPrefix(r.URL.Path, s.ExemptPrefixes) {
		return Allowed(), nil
	}

	active, err := s.Switch.IsActive(r.Context())
	if err != nil {
		return Verdict{}, err
	}
	if !active {
		return Allowed(), nil
	}

	fp := s.Resolver.Fingerprint(r)
	md := fp.Metadata()
	md["method"] = r.Method

	return Verdict{
		Status:  http.StatusServiceUnavailable,
		Reason:  models.DenyKillSwitchActive,
		Message: "Service is temporarily read-only",
		Audit: &models.AuditEvent{
			EventName:   models.AuditEventKillSwitchBlocked,
			Severity:    models.SeverityLow,
			ActorUserID: principalID(r),
			ActorIP:     models.StrPtr(fp.IP),
			TargetType:  models.AuditTargetRoute,
			TargetID:    models.StrPtr(r.URL.Path),
			Metadata:    md,
		},
	}, nil
}

// PathBucketStage throttles bursts per identity and literal path
type PathBucketStage struct {
	Buckets ratelimit.PathAdmitter
}

func (s *PathBucketStage) Name() string { return StagePathBucket }

func (s *PathBucketStage) Evaluate(r *http.Request, identity models.ClientIdentity) (Verdict, error) {
	decision := s.Buckets.Admit(identity, r.URL.Path)
	if decision.Allowed {
		return Allowed(), nil
	}

	return Verdict{
		Status:    http.StatusTooManyRequests,
		Reason:    models.DenyRateLimitExceeded,
		Message:   "Too many requests, please try again later",
		RateLimit: &decision,
	}, nil
}

// APIKeyStage requires a valid machine key on protected prefixes
type APIKeyStage struct {
	Keys              APIKeyAuthenticator
	ProtectedPrefixes []string
	Resolver          *auth.IdentityResolver
	Timing            *auth.TimingDelay
}

func (s *APIKeyStage) Name() string { return StageAPIKey }

func (s *APIKeyStage) Evaluate(r *http.Request, identity models.ClientIdentity) (Verdict, error) {
	if !pkghttp.MatchesAnyPrefix(r.URL.Path, s.ProtectedPrefixes) {
		return Allowed(), nil
	}

	start := time.Now()
	ip := s.Resolver.ClientIP(r)

	raw, present := apiKeyFromRequest(r)
	if !present {
		s.Timing.WaitFrom(r.Context(), start)
		return s.reject(r, http.StatusUnauthorized, models.DenyAPIKeyRequired, "API key required"), nil
	}

	key, err := s.Keys.Authenticate(r.Context(), raw, ip)
	if err != nil {
		if errors.Is(err, models.ErrInvalidAPIKey) {
			s.Timing.WaitFrom(r.Context(), start)
			return s.reject(r, http.StatusForbidden, models.DenyInvalidAPIKey, "Invalid API key"), nil
		}
		return Verdict{}, err
	}

	return Verdict{
		Allow:   true,
		Context: context.WithValue(r.Context(), apiKeyContextKey{}, key),
	}, nil
}

func (s *APIKeyStage) reject(r *http.Request, status int, reason models.DenyReason, message string) Verdict {
	fp := s.Resolver.Fingerprint(r)
	md := fp.Metadata()
	md["method"] = r.Method
	md["reason"] = string(reason)

	return Verdict{
		Status:  status,
		Reason:  reason,
		Message: message,
		Audit: &models.AuditEvent{
			EventName:  models.AuditEventAPIKeyRejected,
			Severity:   models.SeverityMedium,
			ActorIP:    models.StrPtr(fp.IP),
			TargetType: models.AuditTargetRoute,
			TargetID:   models.StrPtr(r.URL.Path),
			Metadata:   md,
		},
	}
}

// apiKeyFromRequest reads X-API-Key, then "Authorization: ApiKey <key>"
func apiKeyFromRequest(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}

	scheme, value, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "ApiKey") {
		if key := strings.TrimSpace(value); key != "" {
			return key, true
		}
	}
	return "", false
}

// PolicyTierStage applies the per-class fixed-window budget
type PolicyTierStage struct {
	Limiter    ratelimit.Admitter
	Classifier EndpointClassifier
}

func (s *PolicyTierStage) Name() string { return StagePolicyTier }

func (s *PolicyTierStage) Evaluate(r *http.Request, identity models.ClientIdentity) (Verdict, error) {
	class := s.Classifier.Classify(r.URL.Path)
	decision := s.Limiter.Admit(identity, class)

	if decision.Allowed {
		return Verdict{Allow: true, RateLimit: &decision}, nil
	}

	return Verdict{
		Status:    http.StatusTooManyRequests,
		Reason:    models.DenyRateLimitExceeded,
		Message:   "Too many requests, please try again later",
		RateLimit: &decision,
	}, nil
}

func principalID(r *http.Request) *string {
	if claims := auth.GetUserFromContext(r); claims != nil {
		return models.StrPtr(claims.UserID)
	}
	return nil
}
