package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vimarsh-ai/vimarsh/engine/core"
)

const (
	// graphAudience and graphServicePrincipal round out the tolerated
	// audience set alongside the configured client id and its api:// form.
	graphAudience          = "https://graph.microsoft.com"
	graphServicePrincipal  = "00000003-0000-0000-c000-000000000000"
	userInfoEndpoint       = "https://graph.microsoft.com/oidc/userinfo"
	issuerV2Format         = "https://login.microsoftonline.com/%s/v2.0"
	issuerV1Format         = "https://sts.windows.net/%s/"
	opaqueTokenSegmentSize = 3
)

// Claims is the validated identity extracted from a bearer token.
type Claims struct {
	Subject string
	Email   string
	Name    string
	Issuer  string
}

// Validator implements the production token path: RS256 signature against
// the tenant JWKS, expiry, issuer pattern, and a tolerant audience set.
type Validator struct {
	jwks     *JWKSCache
	client   *resty.Client
	tenantID string
	clientID string
}

func NewValidator(jwks *JWKSCache, tenantID, clientID string) *Validator {
	return &Validator{
		jwks:     jwks,
		client:   resty.New().SetTimeout(jwksFetchTimeout),
		tenantID: tenantID,
		clientID: clientID,
	}
}

// Validate authenticates one raw bearer token. Opaque tokens (anything
// that is not a three-segment JWS) are validated via the provider
// user-info call instead of local signature checks.
func (v *Validator) Validate(ctx context.Context, raw string) (*Claims, error) {
	if strings.Count(raw, ".")+1 != opaqueTokenSegmentSize {
		return v.validateOpaque(ctx, raw)
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, core.NewError(nil, core.CodeKeyNotFound, "token header has no key id", nil)
		}
		return v.jwks.Key(ctx, v.tenantID, kid)
	})
	if err != nil {
		return nil, mapJWTError(err)
	}
	if err := v.checkIssuer(claims); err != nil {
		return nil, err
	}
	if err := v.checkAudience(claims); err != nil {
		return nil, err
	}
	return claimsFromMap(claims)
}

func (v *Validator) checkIssuer(claims jwt.MapClaims) error {
	issuer, _ := claims.GetIssuer()
	expected := []string{
		fmt.Sprintf(issuerV2Format, v.tenantID),
		fmt.Sprintf(issuerV1Format, v.tenantID),
	}
	for _, e := range expected {
		if issuer == e {
			return nil
		}
	}
	return core.NewError(nil, core.CodeIssuerInvalid,
		"token issuer does not match the configured tenant", map[string]any{"issuer": issuer})
}

// checkAudience accepts any audience from the tolerated set. The breadth
// is deliberate: tokens minted for the app registration, its api:// URI,
// or the graph resource all reach this API in the target deployment.
func (v *Validator) checkAudience(claims jwt.MapClaims) error {
	audiences, err := claims.GetAudience()
	if err != nil || len(audiences) == 0 {
		return core.NewError(err, core.CodeAudienceInvalid, "token carries no audience", nil)
	}
	accepted := map[string]struct{}{
		v.clientID:            {},
		"api://" + v.clientID: {},
		graphAudience:         {},
		graphServicePrincipal: {},
	}
	for _, aud := range audiences {
		if _, ok := accepted[aud]; ok {
			return nil
		}
	}
	return core.NewError(nil, core.CodeAudienceInvalid,
		"token audience is not accepted", map[string]any{"audience": audiences})
}

func (v *Validator) validateOpaque(ctx context.Context, raw string) (*Claims, error) {
	resp, err := v.client.R().
		SetContext(ctx).
		SetAuthToken(raw).
		Get(userInfoEndpoint)
	if err != nil {
		return nil, core.NewError(err, core.CodeTokenInvalid, "user-info validation failed", nil)
	}
	if resp.StatusCode() != 200 {
		return nil, core.NewError(nil, core.CodeTokenInvalid,
			fmt.Sprintf("user-info rejected token with status %d", resp.StatusCode()), nil)
	}
	var info struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, core.NewError(err, core.CodeTokenInvalid, "user-info response malformed", nil)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, core.NewError(nil, core.CodeClaimsMissing,
			"user-info response lacks subject or email", nil)
	}
	return &Claims{Subject: info.Sub, Email: core.NormalizeEmail(info.Email), Name: info.Name}, nil
}

func claimsFromMap(claims jwt.MapClaims) (*Claims, error) {
	sub, _ := claims.GetSubject()
	email, _ := claims["email"].(string)
	if email == "" {
		email, _ = claims["preferred_username"].(string)
	}
	if sub == "" || email == "" {
		return nil, core.NewError(nil, core.CodeClaimsMissing,
			"token lacks required subject or email claims", nil)
	}
	name, _ := claims["name"].(string)
	issuer, _ := claims.GetIssuer()
	return &Claims{
		Subject: sub,
		Email:   core.NormalizeEmail(email),
		Name:    name,
		Issuer:  issuer,
	}, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return core.NewError(err, core.CodeTokenExpired, "token has expired", nil)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return core.NewError(err, core.CodeTokenInvalid, "token signature is invalid", nil)
	case core.CodeOf(err) != "":
		return err
	default:
		return core.NewError(err, core.CodeTokenInvalid, "token validation failed", nil)
	}
}
