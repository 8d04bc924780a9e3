package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/config"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/utils"
)

var (
	// ErrNoIdentity means the request carried neither a usable token nor a user id.
	ErrNoIdentity = errors.New("no user identity")
	// ErrInvalidUserID means the user id in the path is not a positive integer.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidToken means the token failed validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrIdentityMismatch means the token and the path name different users.
	ErrIdentityMismatch = errors.New("token does not match user id")
)

// Resolver extracts the user id of an incoming connection request.
type Resolver struct {
	jwt      *JWTConfig
	required bool
}

// NewResolver builds a resolver. Tokens are only checked when a secret is configured.
func NewResolver(cfg config.JWTConfig) *Resolver {
	return &Resolver{
		jwt:      NewJWTConfig(cfg, 0),
		required: cfg.Required,
	}
}

// Enabled reports whether tokens are validated at all.
func (r *Resolver) Enabled() bool {
	return len(r.jwt.Secret) > 0
}

// Required reports whether every request must present a valid token.
func (r *Resolver) Required() bool {
	return r.required && r.Enabled()
}

// Validate checks a raw token.
func (r *Resolver) Validate(token string) (*Claims, error) {
	if !r.Enabled() {
		return nil, ErrInvalidToken
	}
	claims, err := ValidateToken(r.jwt, token)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return claims, nil
}

// Resolve returns the user id for req. pathID is the user id from the route, possibly empty.
// A valid token wins; when both are present they must agree.
func (r *Resolver) Resolve(req *http.Request, pathID string) (int64, error) {
	var pathUID int64
	if pathID != "" {
		id, ok := utils.ParseUserID(pathID)
		if !ok {
			return 0, ErrInvalidUserID
		}
		pathUID = id
	}

	token := TokenFromRequest(req)
	if token != "" && r.Enabled() {
		claims, err := r.Validate(token)
		if err != nil {
			return 0, err
		}
		if pathUID != 0 && pathUID != claims.UserID {
			return 0, ErrIdentityMismatch
		}
		return claims.UserID, nil
	}

	if r.Required() {
		return 0, ErrNoIdentity
	}
	if pathUID == 0 {
		return 0, ErrNoIdentity
	}
	return pathUID, nil
}

// TokenFromRequest reads a token from the "token" query parameter or a Bearer header.
func TokenFromRequest(req *http.Request) string {
	if token := req.URL.Query().Get("token"); token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(req.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
