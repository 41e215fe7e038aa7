package token

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vimarsh-ai/vimarsh/engine/core"
)

// wellKnownTokens are the fixed development credentials accepted only on
// the development path. Anything else is decoded without signature
// verification so local front-ends can replay real tokens.
var wellKnownTokens = map[string]Claims{
	"dev-user-token": {
		Subject: "dev-user-001",
		Email:   "user@vimarsh.local",
		Name:    "Dev User",
	},
	"dev-admin-token": {
		Subject: "dev-admin-001",
		Email:   "admin@vimarsh.local",
		Name:    "Dev Admin",
	},
	"dev-super-admin-token": {
		Subject: "dev-super-001",
		Email:   "superadmin@vimarsh.local",
		Name:    "Dev Super Admin",
	},
}

// DevValidator implements the development token path.
type DevValidator struct{}

func NewDevValidator() *DevValidator {
	return &DevValidator{}
}

// Validate maps well-known test tokens to synthetic users and otherwise
// parses the token without verifying its signature.
func (v *DevValidator) Validate(raw string) (*Claims, error) {
	if claims, ok := wellKnownTokens[raw]; ok {
		copied := claims
		return &copied, nil
	}
	if strings.Count(raw, ".") != 2 {
		return nil, core.NewError(nil, core.CodeTokenInvalid,
			"development tokens must be well-known or JWT-shaped", nil)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, core.NewError(err, core.CodeTokenInvalid, "token decode failed", nil)
	}
	return claimsFromMap(claims)
}

// WellKnownDevTokens lists the accepted fixture tokens for diagnostics.
func WellKnownDevTokens() []string {
	out := make([]string, 0, len(wellKnownTokens))
	for t := range wellKnownTokens {
		out = append(out, t)
	}
	return out
}
