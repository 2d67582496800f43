package auth

import (
	"net/http"
	"strings"

	"github.com/BradenHooton/tollgate/internal/models"
	pkghttp "github.com/BradenHooton/tollgate/pkg/http"
	"github.com/mssola/useragent"
)

// IdentityResolver derives the ClientIdentity rate limits are keyed on
type IdentityResolver struct {
	ipConfig *pkghttp.IPConfig
}

// NewIdentityResolver creates a resolver honoring forwarding headers from trustedProxies
func NewIdentityResolver(trustedProxies []string) *IdentityResolver {
	return &IdentityResolver{ipConfig: &pkghttp.IPConfig{TrustedProxies: trustedProxies}}
}

// Resolve returns "user:<id>" for an authenticated principal, else "ip:<client ip>".
// It never returns an empty identity.
func (ir *IdentityResolver) Resolve(r *http.Request) models.ClientIdentity {
	if claims := GetUserFromContext(r); claims != nil && claims.UserID != "" {
		return models.UserIdentity(claims.UserID)
	}
	return models.IPIdentity(ir.ClientIP(r))
}

// ClientIP returns the resolved client address
func (ir *IdentityResolver) ClientIP(r *http.Request) string {
	return pkghttp.ExtractClientIP(r, ir.ipConfig)
}

// Fingerprint is the threat-relevant request data attached to audit events
type Fingerprint struct {
	IP            string
	UserAgent     string
	Browser       string
	OS            string
	Mobile        bool
	Bot           bool
	ForwardedHops int
}

// Fingerprint collects threat-relevant request data
func (ir *IdentityResolver) Fingerprint(r *http.Request) Fingerprint {
	fp := Fingerprint{
		IP:            ir.ClientIP(r),
		UserAgent:     r.UserAgent(),
		ForwardedHops: pkghttp.ForwardedHops(r),
	}

	if fp.UserAgent == "" {
		// Well-behaved clients always send one
		fp.Bot = true
		return fp
	}

	ua := useragent.New(fp.UserAgent)
	browser, _ := ua.Browser()
	fp.Browser = strings.ToLower(strings.TrimSpace(browser))
	fp.OS = strings.ToLower(strings.TrimSpace(ua.OS()))
	fp.Mobile = ua.Mobile()
	fp.Bot = ua.Bot()

	return fp
}

// Metadata renders the fingerprint for an audit event
func (fp Fingerprint) Metadata() models.AuditMetadata {
	m := models.AuditMetadata{
		"bot":            fp.Bot,
		"mobile":         fp.Mobile,
		"forwarded_hops": fp.ForwardedHops,
	}
	if fp.UserAgent != "" {
		m["user_agent"] = fp.UserAgent
	}
	if fp.Browser != "" {
		m["browser"] = fp.Browser
	}
	if fp.OS != "" {
		m["os"] = fp.OS
	}
	return m
}
