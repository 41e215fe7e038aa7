package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimarsh-ai/vimarsh/engine/core"
)

const testTenant = "11111111-2222-3333-4444-555555555555"

type jwksFixture struct {
	key     *rsa.PrivateKey
	kid     string
	server  *httptest.Server
	fetches atomic.Int64
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	f := &jwksFixture{key: key, kid: "test-key-1"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		doc := jwksDocument{Keys: []jwksKey{{
			Kty: "RSA",
			Kid: f.kid,
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   "AQAB",
		}}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = f.kid
	signed, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func defaultClaims(clientID string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   "https://login.microsoftonline.com/" + testTenant + "/v2.0",
		"aud":   clientID,
		"sub":   "user-abc",
		"email": "Seeker@Example.Com",
		"name":  "Seeker",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
}

func TestJWKSCache(t *testing.T) {
	t.Run("Should fetch once and serve repeated lookups from cache", func(t *testing.T) {
		f := newJWKSFixture(t)
		cache := NewJWKSCache(f.server.URL)
		for i := 0; i < 100; i++ {
			key, err := cache.Key(context.Background(), testTenant, f.kid)
			require.NoError(t, err)
			assert.Equal(t, f.key.PublicKey.N, key.N)
		}
		assert.Equal(t, int64(1), f.fetches.Load())
	})
	t.Run("Should refetch after the TTL elapses", func(t *testing.T) {
		f := newJWKSFixture(t)
		cache := NewJWKSCache(f.server.URL)
		current := time.Now()
		cache.now = func() time.Time { return current }
		_, err := cache.Key(context.Background(), testTenant, f.kid)
		require.NoError(t, err)
		current = current.Add(61 * time.Minute)
		_, err = cache.Key(context.Background(), testTenant, f.kid)
		require.NoError(t, err)
		assert.Equal(t, int64(2), f.fetches.Load())
	})
	t.Run("Should fail with key-not-found for an unknown kid", func(t *testing.T) {
		f := newJWKSFixture(t)
		cache := NewJWKSCache(f.server.URL)
		_, err := cache.Key(context.Background(), testTenant, "missing-kid")
		require.Error(t, err)
		assert.Equal(t, core.CodeKeyNotFound, core.CodeOf(err))
	})
	t.Run("Should leave the entry absent when the fetch fails", func(t *testing.T) {
		f := newJWKSFixture(t)
		cache := NewJWKSCache(f.server.URL)
		f.server.Close()
		_, err := cache.Key(context.Background(), testTenant, f.kid)
		require.Error(t, err)
		assert.Equal(t, core.CodeKeyNotFound, core.CodeOf(err))
	})
}

func TestValidator(t *testing.T) {
	clientID := "client-123"
	newValidator := func(f *jwksFixture) *Validator {
		return NewValidator(NewJWKSCache(f.server.URL), testTenant, clientID)
	}
	t.Run("Should accept a valid v2 token and normalize the email", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := newValidator(f)
		claims, err := v.Validate(context.Background(), f.signToken(t, defaultClaims(clientID)))
		require.NoError(t, err)
		assert.Equal(t, "user-abc", claims.Subject)
		assert.Equal(t, "seeker@example.com", claims.Email)
		assert.Equal(t, "Seeker", claims.Name)
	})
	t.Run("Should accept the v1 sts issuer for the same tenant", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := newValidator(f)
		c := defaultClaims(clientID)
		c["iss"] = "https://sts.windows.net/" + testTenant + "/"
		_, err := v.Validate(context.Background(), f.signToken(t, c))
		require.NoError(t, err)
	})
	t.Run("Should accept each audience from the tolerated set", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := newValidator(f)
		for _, aud := range []string{
			clientID,
			"api://" + clientID,
			"https://graph.microsoft.com",
			"00000003-0000-0000-c000-000000000000",
		} {
			c := defaultClaims(clientID)
			c["aud"] = aud
			_, err := v.Validate(context.Background(), f.signToken(t, c))
			require.NoError(t, err, "audience %s", aud)
		}
	})
	t.Run("Should reject an audience outside the tolerated set", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := newValidator(f)
		c := defaultClaims(clientID)
		c["aud"] = "some-other-app"
		_, err := v.Validate(context.Background(), f.signToken(t, c))
		require.Error(t, err)
		assert.Equal(t, core.CodeAudienceInvalid, core.CodeOf(err))
	})
	t.Run("Should reject a token from a different tenant", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := newValidator(f)
		c := defaultClaims(clientID)
		c["iss"] = "https://login.microsoftonline.com/other-tenant/v2.0"
		_, err := v.Validate(context.Background(), f.signToken(t, c))
		require.Error(t, err)
		assert.Equal(t, core.CodeIssuerInvalid, core.CodeOf(err))
	})
	t.Run("Should reject an expired token with the expiry code", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := newValidator(f)
		c := defaultClaims(clientID)
		c["exp"] = time.Now().Add(-time.Hour).Unix()
		_, err := v.Validate(context.Background(), f.signToken(t, c))
		require.Error(t, err)
		assert.Equal(t, core.CodeTokenExpired, core.CodeOf(err))
	})
	t.Run("Should reject a token signed by an unknown key", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := newValidator(f)
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, defaultClaims(clientID))
		tok.Header["kid"] = f.kid
		signed, err := tok.SignedString(other)
		require.NoError(t, err)
		_, err = v.Validate(context.Background(), signed)
		require.Error(t, err)
		assert.Equal(t, core.CodeTokenInvalid, core.CodeOf(err))
	})
	t.Run("Should fall back to preferred_username when email is absent", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := newValidator(f)
		c := defaultClaims(clientID)
		delete(c, "email")
		c["preferred_username"] = "seeker@corp.example"
		claims, err := v.Validate(context.Background(), f.signToken(t, c))
		require.NoError(t, err)
		assert.Equal(t, "seeker@corp.example", claims.Email)
	})
	t.Run("Should reject a token without subject or email", func(t *testing.T) {
		f := newJWKSFixture(t)
		v := newValidator(f)
		c := defaultClaims(clientID)
		delete(c, "email")
		_, err := v.Validate(context.Background(), f.signToken(t, c))
		require.Error(t, err)
		assert.Equal(t, core.CodeClaimsMissing, core.CodeOf(err))
	})
}

func TestDevValidator(t *testing.T) {
	t.Run("Should map each well-known token to its synthetic user", func(t *testing.T) {
		v := NewDevValidator()
		claims, err := v.Validate("dev-admin-token")
		require.NoError(t, err)
		assert.Equal(t, "dev-admin-001", claims.Subject)
		assert.Equal(t, "admin@vimarsh.local", claims.Email)
	})
	t.Run("Should decode a JWT without verifying its signature", func(t *testing.T) {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"sub":   "local-1",
			"email": "local@example.com",
		})
		signed, err := tok.SignedString(key)
		require.NoError(t, err)
		claims, err := NewDevValidator().Validate(signed)
		require.NoError(t, err)
		assert.Equal(t, "local-1", claims.Subject)
	})
	t.Run("Should reject arbitrary opaque strings", func(t *testing.T) {
		_, err := NewDevValidator().Validate("not-a-token")
		require.Error(t, err)
		assert.Equal(t, core.CodeTokenInvalid, core.CodeOf(err))
	})
}
