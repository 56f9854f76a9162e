package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/yoockh/launchkit/internal/utils"
)

// Context keys set by the auth middleware.
const (
	CtxUserID      = "user_id"
	CtxEmail       = "email"
	CtxRole        = "role"
	CtxAccessToken = "access_token"
)

// JWTConfig validates provider-issued HS256 tokens. Issuer and Audience are
// checked only when set.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type providerClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	Role         string         `json:"role"`         // "authenticated" / "anon"
	AppMetadata  map[string]any `json:"app_metadata"` // {"role":"admin"} grants admin
	UserMetadata map[string]any `json:"user_metadata"`
}

// AppRole is the application role carried in app_metadata, "user" by default.
func (c *providerClaims) AppRole() string {
	if s, ok := c.AppMetadata["role"].(string); ok && s != "" {
		return strings.ToLower(s)
	}
	return "user"
}

// JWTAuth rejects requests without a valid bearer token.
func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Secret == "" {
			abort(c, http.StatusInternalServerError, utils.CodeInternal, "SUPABASE_JWT_SECRET is not set")
			return
		}

		raw := bearer(c)
		if raw == "" {
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, "missing bearer token")
			return
		}

		claims, msg := cfg.parse(raw)
		if claims == nil {
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, msg)
			return
		}

		setIdentity(c, claims, raw)
		c.Next()
	}
}

// OptionalJWT sets the caller identity when a valid token is present and lets
// every request through.
func OptionalJWT(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c)
		if raw != "" && cfg.Secret != "" {
			if claims, _ := cfg.parse(raw); claims != nil {
				setIdentity(c, claims, raw)
			}
		}
		c.Next()
	}
}

func bearer(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// parse returns the claims, or nil and the client-facing reason.
func (cfg JWTConfig) parse(raw string) (*providerClaims, string) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &providerClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)

	switch {
	case err != nil && errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return nil, "invalid token issuer"
	case err != nil && errors.Is(err, jwt.ErrTokenInvalidAudience):
		return nil, "invalid token audience"
	case err != nil && errors.Is(err, jwt.ErrTokenExpired):
		return nil, "token expired"
	case err != nil || tok == nil || !tok.Valid:
		return nil, "invalid token"
	case claims.Subject == "":
		return nil, "missing subject"
	}
	return claims, ""
}

func setIdentity(c *gin.Context, claims *providerClaims, raw string) {
	c.Set(CtxUserID, claims.Subject)
	c.Set(CtxEmail, claims.Email)
	c.Set(CtxRole, claims.AppRole())
	c.Set(CtxAccessToken, raw)
}
