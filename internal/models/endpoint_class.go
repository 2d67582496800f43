package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// EndpointClass is the sensitivity tier of a group of routes
type EndpointClass string

const (
	EndpointClassAuth          EndpointClass = "auth"
	EndpointClassPasswordReset EndpointClass = "password_reset"
	EndpointClassUpload        EndpointClass = "upload"
	EndpointClassAdmin         EndpointClass = "admin"
	EndpointClassGeneral       EndpointClass = "general"
)

// AllEndpointClasses returns every known endpoint class
func AllEndpointClasses() []EndpointClass {
	return []EndpointClass{
		EndpointClassAuth,
		EndpointClassPasswordReset,
		EndpointClassUpload,
		EndpointClassAdmin,
		EndpointClassGeneral,
	}
}

// IsValid reports whether c is one of the known classes
func (c EndpointClass) IsValid() bool {
	switch c {
	case EndpointClassAuth, EndpointClassPasswordReset, EndpointClassUpload,
		EndpointClassAdmin, EndpointClassGeneral:
		return true
	}
	return false
}

func (c EndpointClass) String() string {
	return string(c)
}

// ParseEndpointClass converts a configuration value into an EndpointClass.
// Unknown values are rejected.
func ParseEndpointClass(s string) (EndpointClass, error) {
	c := EndpointClass(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("unknown endpoint class %q", s)
	}
	return c, nil
}

// RatePolicy is the admission budget for one endpoint class
type RatePolicy struct {
	Capacity int
	Window   time.Duration
}

// Validate returns ErrInvalidPolicy when the policy cannot admit anything
func (p RatePolicy) Validate() error {
	if p.Capacity <= 0 || p.Window <= 0 {
		return fmt.Errorf("%w: capacity=%d window=%s", ErrInvalidPolicy, p.Capacity, p.Window)
	}
	return nil
}

// RateDecision is the outcome of a single admission check
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the number of whole seconds until the decision resets.
// Denied decisions always report at least one second.
func (d RateDecision) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		if d.Allowed {
			return 0
		}
		return 1
	}
	return secs
}
