// internal/middleware/jwt.go
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"

	"github.com/golang-jwt/jwt/v5"
)

// Token expiration time - 24 hours
const tokenExpiration = 24 * time.Hour

// ServiceKeyHeader carries the shared key of internal producers.
const ServiceKeyHeader = "X-Service-Key"

// Claims represents the JWT claims issued by the account service
type Claims struct {
	UserID string  `json:"user_id"`
	Name   string  `json:"name,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// TokenResolver turns a bearer token into a Principal.
type TokenResolver struct {
	secret []byte
	issuer string
}

func NewTokenResolver(secret, issuer string) *TokenResolver {
	return &TokenResolver{secret: []byte(secret), issuer: issuer}
}

// GenerateToken creates a new JWT token for the given user
func (tr *TokenResolver) GenerateToken(userID, name string, avatar *string) (string, error) {
	// Create token expiration time
	expirationTime := time.Now().Add(tokenExpiration)

	claims := &Claims{
		UserID: userID,
		Name:   name,
		Avatar: avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    tr.issuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tr.secret)
}

// ValidateToken validates the provided JWT token
func (tr *TokenResolver) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if tr.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tr.issuer))
	}
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Verify signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return tr.secret, nil
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}

	// Validate token and extract claims
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Resolve reads the token from the "token" query parameter (browsers cannot
// set headers on a WebSocket handshake) or from an Authorization bearer header.
func (tr *TokenResolver) Resolve(r *http.Request) (*models.Principal, error) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return nil, utils.NewAppError(utils.ErrAuthenticationRequired, "authentication required", nil)
		}
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}

	claims, err := tr.ValidateToken(tokenString)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrAuthenticationRequired, "invalid token", err)
	}

	p := &models.Principal{
		UserID: claims.UserID,
		Name:   claims.Name,
		Avatar: claims.Avatar,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// ServiceKeyMiddleware admits requests that present the shared service key.
// An empty key disables the endpoint.
func ServiceKeyMiddleware(key string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(ServiceKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Define a custom context key type to avoid collisions
type contextKey string

// PrincipalKey is the key used to store the principal in the context
const PrincipalKey contextKey = "principal"

// SetPrincipalInContext saves the principal in the request context
func SetPrincipalInContext(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipalFromContext retrieves the principal from the context
func GetPrincipalFromContext(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*models.Principal)
	return p, ok
}
