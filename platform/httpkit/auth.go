package httpkit

import (
	"errors"
	"net/http"
	"strings"

	"nurture_backend/platform/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextOperatorKey is the gin context key for the authenticated operator subject.
const ContextOperatorKey = "operator"

const (
	errMissingToken = "missing token"
	errInvalidToken = "invalid token"

	accessTokenType = "access"
)

// OperatorClaims are the claims of an operator access token.
type OperatorClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// AuthRequired accepts HS256 operator access tokens from the Authorization
// header and stores the subject under ContextOperatorKey.
func AuthRequired(cfg config.JWTConfig) gin.HandlerFunc {
	secret := []byte(cfg.GetJWTAccessSecret())
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, errMissingToken)
			return
		}

		claims, err := ParseOperatorToken(raw, secret)
		if err != nil {
			abortUnauthorized(c, errInvalidToken)
			return
		}

		c.Set(ContextOperatorKey, claims.Subject)
		c.Next()
	}
}

// ParseOperatorToken validates signature, expiry, token type and subject.
func ParseOperatorToken(raw string, secret []byte) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Type != accessTokenType || strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New(errInvalidToken)
	}
	return claims, nil
}

// OperatorID returns the authenticated operator subject, or "" when absent.
func OperatorID(c *gin.Context) string {
	return c.GetString(ContextOperatorKey)
}

func bearerToken(header string) (string, bool) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: message})
}
