package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vimarsh-ai/vimarsh/engine/auth/role"
	"github.com/vimarsh-ai/vimarsh/engine/auth/token"
	"github.com/vimarsh-ai/vimarsh/engine/auth/user"
	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/pkg/config"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

const (
	// Validated tokens are cached below the shortest token lifetime the
	// provider issues, so a cached entry can never outlive its token.
	tokenCacheTTL  = 55 * time.Minute
	tokenCacheSize = 4096
)

// Service validates bearer tokens and derives the application user.
// The development and production paths share the same output shape; the
// mode is fixed at startup.
type Service struct {
	mode      string
	validator *token.Validator
	dev       *token.DevValidator
	roles     *role.Manager
	cache     *expirable.LRU[string, *user.User]
}

func NewService(cfg *config.AuthConfig, roles *role.Manager) *Service {
	s := &Service{
		mode:  cfg.Mode,
		roles: roles,
		cache: expirable.NewLRU[string, *user.User](tokenCacheSize, nil, tokenCacheTTL),
	}
	if cfg.Mode == "production" {
		jwks := token.NewJWKSCache(cfg.Authority)
		s.validator = token.NewValidator(jwks, cfg.TenantID, cfg.ClientID)
	} else {
		s.dev = token.NewDevValidator()
	}
	return s
}

// Authenticate validates a raw bearer token and returns the derived user:
// role from the email allow-lists, permission bundle from the role.
func (s *Service) Authenticate(ctx context.Context, raw string) (*user.User, error) {
	if raw == "" {
		return nil, core.NewError(nil, core.CodeNoToken, "no bearer token provided", nil)
	}
	key := cacheKey(raw)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}
	claims, err := s.validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	derivedRole := s.roles.Role(claims.Email)
	usr := &user.User{
		Subject:     claims.Subject,
		Email:       claims.Email,
		Name:        claims.Name,
		Role:        derivedRole,
		Permissions: derivedRole.Permissions(),
		LastLogin:   time.Now().UTC(),
		Active:      true,
	}
	s.cache.Add(key, usr)
	logger.FromContext(ctx).Debug("token validated",
		"subject", usr.Subject, "role", usr.Role, "mode", s.mode)
	return usr, nil
}

func (s *Service) validate(ctx context.Context, raw string) (*token.Claims, error) {
	if s.validator != nil {
		return s.validator.Validate(ctx, raw)
	}
	return s.dev.Validate(raw)
}

// cacheKey hashes the token so raw credentials never sit in memory as keys.
func cacheKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
