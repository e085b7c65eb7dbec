package middleware

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/seatrail/ticket-ledger/internal/identity"
	"github.com/seatrail/ticket-ledger/internal/logger"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	CALLER_KEY     contextKey = "caller"
	JWT_CLAIMS_KEY contextKey = "jwt_claims"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTPublicKey string // RSA public key in PEM format
}

// AuthResult holds the result of authentication
type AuthResult struct {
	Success bool
	Claims  *jwt.RegisteredClaims
	Caller  identity.Caller
	Error   error
}

// Authenticate validates the Authorization header and returns the
// authenticated caller. The JWT issuer carries the organization and the
// subject carries the client identity.
func Authenticate(authHeader string, cfg AuthConfig) AuthResult {
	result := AuthResult{Success: false}

	if authHeader == "" {
		result.Error = errors.New("missing Authorization header")
		return result
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		result.Error = errors.New("invalid Authorization header format")
		return result
	}

	claims, err := validateJWT(parts[1], cfg.JWTPublicKey)
	if err != nil {
		result.Error = err
		return result
	}

	caller, err := identity.FromClaims(claims)
	if err != nil {
		result.Error = err
		return result
	}

	result.Success = true
	result.Claims = claims
	result.Caller = caller
	return result
}

// Auth returns a gin middleware that authenticates bearer JWTs and places
// the caller identity on both the gin context and the request context.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		result := Authenticate(authHeader, cfg)

		if !result.Success {
			logger.Warn("Authentication failed",
				zap.Error(result.Error),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication failed",
			})
			return
		}

		c.Set(string(CALLER_KEY), result.Caller)
		c.Set(string(JWT_CLAIMS_KEY), result.Claims)
		c.Request = c.Request.WithContext(identity.WithCaller(c.Request.Context(), result.Caller))

		logger.Debug("JWT authentication successful",
			zap.String("path", c.Request.URL.Path),
			zap.String("org", result.Caller.Org),
			zap.String("subject", result.Caller.ID),
		)

		c.Next()
	}
}

// validateJWT validates a JWT token with RSA signature and returns claims
func validateJWT(tokenString string, publicKeyPEM string) (*jwt.RegisteredClaims, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not configured")
	}

	publicKey, err := parseRSAPublicKey(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return publicKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	now := time.Now()
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
		return nil, errors.New("token has expired")
	}
	if claims.NotBefore != nil && claims.NotBefore.After(now) {
		return nil, errors.New("token not yet valid")
	}

	return claims, nil
}

// parseRSAPublicKey parses an RSA public key from PEM format
func parseRSAPublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("failed to parse PEM block containing public key")
	}

	// Try parsing as PKIX first, then PKCS1
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an RSA key")
	}

	return rsaKey, nil
}
