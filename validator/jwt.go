// Package validator verifies Firebase ID tokens on incoming requests.
// Tokens are signed by Google's securetoken service; the signing keys are
// fetched from the public JWKS endpoint and cached between requests.
package validator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/lestrrat-go/jwx/jwt"

	"nestling/api"
)

const accessKey = "access_info"

const jwksURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// Access holds the verified claims the handlers care about.
type Access struct {
	UserID      string
	DisplayName string
	Email       string
}

func (a *Access) Identity() api.Identity {
	return api.Identity{
		UserID:      a.UserID,
		DisplayName: a.DisplayName,
		Email:       a.Email,
	}
}

// FromContext returns the Access set by the middleware for this request.
func FromContext(c *gin.Context) (*Access, bool) {
	v, ok := c.Get(accessKey)
	if !ok {
		return nil, false
	}
	a, ok := v.(*Access)
	return a, ok
}

var (
	ErrNoAuthHeader      = errors.New("Authorization header is missing")
	ErrInvalidAuthHeader = errors.New("Authorization header is malformed")
)

// GetJWSFromRequest extracts a JWS string from an Authorization: Bearer <jws> header
func GetJWSFromRequest(req *http.Request) (string, error) {
	authHdr := req.Header.Get("Authorization")
	if authHdr == "" {
		return "", ErrNoAuthHeader
	}
	prefix := "Bearer "
	if !strings.HasPrefix(authHdr, prefix) {
		return "", ErrInvalidAuthHeader
	}
	return strings.TrimPrefix(authHdr, prefix), nil
}

type Validator struct {
	projectID string
	refresher *jwk.AutoRefresh
}

// New builds a Validator for the given Firebase project. The passed context
// bounds the background key refresh.
func New(ctx context.Context, projectID string) *Validator {
	ar := jwk.NewAutoRefresh(ctx)
	ar.Configure(jwksURL, jwk.WithMinRefreshInterval(time.Hour))
	return &Validator{
		projectID: projectID,
		refresher: ar,
	}
}

// Verify checks the token's signature, expiry, audience and issuer, and
// returns the caller's identity claims.
func (v *Validator) Verify(ctx context.Context, raw string) (*Access, error) {
	keys, err := v.refresher.Fetch(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signing keys: %w", err)
	}
	token, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	ac := &Access{UserID: token.Subject()}
	if name, ok := token.Get("name"); ok {
		ac.DisplayName, _ = name.(string)
	}
	if email, ok := token.Get("email"); ok {
		ac.Email, _ = email.(string)
	}
	if ac.UserID == "" {
		return nil, errors.New("token has no subject")
	}
	return ac, nil
}

// Middleware authenticates every request and stores the Access on the gin
// context for handlers to read through FromContext.
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := GetJWSFromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ac, err := v.Verify(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(accessKey, ac)
		c.Next()
	}
}
