package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

const (
	// DefaultAuthority is the identity provider base URL when none is configured.
	DefaultAuthority = "https://login.microsoftonline.com"

	jwksTTL          = time.Hour
	jwksFetchTimeout = 10 * time.Second
	jwksCacheSize    = 16
)

type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type keySet struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// JWKSCache holds one signing-key set per tenant with a one-hour TTL.
// A cache miss (or an expired entry) triggers a single HTTPS fetch; a
// fetch failure leaves the entry absent so the next request retries.
type JWKSCache struct {
	client    *resty.Client
	authority string
	cache     *lru.Cache[string, *keySet]
	now       func() time.Time

	mu sync.Mutex
}

func NewJWKSCache(authority string) *JWKSCache {
	if authority == "" {
		authority = DefaultAuthority
	}
	cache, _ := lru.New[string, *keySet](jwksCacheSize)
	return &JWKSCache{
		client:    resty.New().SetTimeout(jwksFetchTimeout),
		authority: authority,
		cache:     cache,
		now:       time.Now,
	}
}

// Key returns the RS256 public key for (tenant, kid), fetching the
// tenant's JWKS document when the cached set is absent, stale, or does
// not contain the kid.
func (c *JWKSCache) Key(ctx context.Context, tenantID, kid string) (*rsa.PublicKey, error) {
	if set, ok := c.cache.Get(tenantID); ok && c.now().Sub(set.fetchedAt) < jwksTTL {
		if key, ok := set.keys[kid]; ok {
			return key, nil
		}
	}
	set, err := c.fetch(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	key, ok := set.keys[kid]
	if !ok {
		return nil, core.NewError(nil, core.CodeKeyNotFound,
			fmt.Sprintf("signing key %q not published for tenant", kid), nil)
	}
	return key, nil
}

func (c *JWKSCache) fetch(ctx context.Context, tenantID string) (*keySet, error) {
	// Single-flight per process: concurrent misses serialize on one fetch.
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.cache.Get(tenantID); ok && c.now().Sub(set.fetchedAt) < jwksTTL {
		return set, nil
	}
	url := fmt.Sprintf("%s/%s/discovery/v2.0/keys", c.authority, tenantID)
	resp, err := c.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, core.NewError(err, core.CodeKeyNotFound, "JWKS fetch failed", nil)
	}
	if resp.StatusCode() != 200 {
		return nil, core.NewError(nil, core.CodeKeyNotFound,
			fmt.Sprintf("JWKS fetch returned status %d", resp.StatusCode()), nil)
	}
	var doc jwksDocument
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		return nil, core.NewError(err, core.CodeKeyNotFound, "JWKS document malformed", nil)
	}
	set := &keySet{keys: make(map[string]*rsa.PublicKey, len(doc.Keys)), fetchedAt: c.now()}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			logger.FromContext(ctx).Warn("skipping unparseable JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		set.keys[k.Kid] = pub
	}
	c.cache.Add(tenantID, set)
	return set, nil
}

func parseRSAKey(k jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
