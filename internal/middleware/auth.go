package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/GoPolymarket/itemsale/internal/config"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/GoPolymarket/itemsale/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	HeaderAPIKey        = "X-API-Key"
	HeaderCallerAddress = "X-Caller-Address"
	ContextCallerKey    = "caller"
)

// AuthMiddleware resolves the calling chain identity. Accepted credentials,
// in order: a bearer JWT whose subject is the caller address, a configured
// API key, and (only with auth disabled and trust_caller_header set) the
// X-Caller-Address header.
func AuthMiddleware(cfg *config.Config, callers *service.CallerRegistry) gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(cfg.Auth.JWTSecret))
	return func(c *gin.Context) {
		if token := extractBearer(c.GetHeader("Authorization")); token != "" {
			addr, err := parseCallerToken(token, secret, cfg.Auth.JWTIssuer)
			if err != nil {
				c.Error(apperrors.New(apperrors.ErrAuthFailed, "invalid token", err))
				c.Abort()
				return
			}
			c.Set(ContextCallerKey, callers.ForAddress(addr))
			c.Next()
			return
		}

		if apiKey := c.GetHeader(HeaderAPIKey); apiKey != "" {
			caller, ok := callers.ByAPIKey(apiKey)
			if !ok {
				c.Error(apperrors.New(apperrors.ErrAuthFailed, "invalid API key", nil))
				c.Abort()
				return
			}
			c.Set(ContextCallerKey, caller)
			c.Next()
			return
		}

		if !cfg.Auth.RequireAuth && cfg.Auth.TrustCallerHeader {
			if raw := c.GetHeader(HeaderCallerAddress); common.IsHexAddress(raw) {
				c.Set(ContextCallerKey, callers.ForAddress(common.HexToAddress(raw)))
				c.Next()
				return
			}
		}

		c.Error(apperrors.New(apperrors.ErrAuthFailed, "missing credentials", nil))
		c.Abort()
	}
}

// CallerFrom returns the caller placed by AuthMiddleware.
func CallerFrom(c *gin.Context) (*model.Caller, bool) {
	val, exists := c.Get(ContextCallerKey)
	if !exists {
		return nil, false
	}
	caller, ok := val.(*model.Caller)
	return caller, ok && caller != nil
}

func parseCallerToken(tokenString string, secret []byte, issuer string) (common.Address, error) {
	if len(secret) == 0 {
		return common.Address{}, errors.New("jwt secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(2 * time.Minute),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return common.Address{}, err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return common.Address{}, errors.New("token invalid")
	}
	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, errors.New("subject is not an address")
	}
	return common.HexToAddress(claims.Subject), nil
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
