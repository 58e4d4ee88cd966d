package httpadapter

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

// StaffClaims are the claims of an agent or admin access token. The subject
// is the staff member id.
type StaffClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// StaffAuthenticator verifies HS256 bearer tokens issued to agents and admins.
type StaffAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
}

func NewStaffAuthenticator(secret, issuer, audience string) *StaffAuthenticator {
	return &StaffAuthenticator{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
	}
}

// Issue signs a token for actor. Operators use it to mint tokens for tooling.
func (a *StaffAuthenticator) Issue(actor domain.Actor, ttl time.Duration, now time.Time) (string, error) {
	if actor.Role != domain.RoleAgent && actor.Role != domain.RoleAdmin {
		return "", domain.WrapError(domain.ErrInvalidInput, "issue staff token", fmt.Errorf("role %q is not a staff role", actor.Role))
	}
	claims := StaffClaims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if a.issuer != "" {
		claims.Issuer = a.issuer
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate resolves the Authorization header to a staff actor.
func (a *StaffAuthenticator) Authenticate(header string) (domain.Actor, error) {
	raw, ok := bearerToken(header)
	if !ok {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("bearer token is required"))
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	claims := &StaffClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", fmt.Errorf("invalid token: %w", err))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("token has no subject"))
	}

	role := domain.ActorRole(claims.Role)
	if role != domain.RoleAgent && role != domain.RoleAdmin {
		return domain.Actor{}, domain.WrapError(domain.ErrForbidden, "authenticate", fmt.Errorf("role %q may not use staff endpoints", claims.Role))
	}
	return domain.Actor{ID: claims.Subject, Role: role}, nil
}

func bearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if len(headerValue) <= len(bearerPrefix) || !strings.EqualFold(headerValue[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(headerValue[len(bearerPrefix):])
	return token, token != ""
}

type staffHandlerFunc func(w http.ResponseWriter, r *http.Request, actor domain.Actor)

func (rt *Router) staff(next staffHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := rt.auth.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			if domain.IsKind(err, domain.ErrUnauthorized) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="termination-portal"`)
			}
			rt.writeError(w, r, err)
			return
		}
		next(w, r, actor)
	}
}
