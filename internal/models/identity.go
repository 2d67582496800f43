package models

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ClientIdentity is the key rate limiting decisions are scoped to
type ClientIdentity string

const (
	identityUserPrefix = "user:"
	identityIPPrefix   = "ip:"
)

// UserIdentity builds the identity of an authenticated principal
func UserIdentity(principalID string) ClientIdentity {
	return ClientIdentity(identityUserPrefix + principalID)
}

// IPIdentity builds the identity of an anonymous caller
func IPIdentity(ip string) ClientIdentity {
	return ClientIdentity(identityIPPrefix + ip)
}

// IsAuthenticated reports whether the identity was derived from a principal
func (c ClientIdentity) IsAuthenticated() bool {
	return strings.HasPrefix(string(c), identityUserPrefix)
}

func (c ClientIdentity) String() string {
	return string(c)
}

// Role is a principal's authorization tier
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleService Role = "service"
	RoleUser    Role = "user"
)

// ParseRole rejects anything outside the known roles
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleService, RoleUser:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// TokenClaims are the claims carried by a principal bearer token
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}
