package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/onlinex/onlinex/internal/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenCookieKey       = "token"
	defaultJwtExpiration = 24 * time.Hour

	accountIdClaim = "account-id"
	kindClaim      = "kind"
	expClaim       = "exp"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated identity attached to a request context.
// Temporary principals carry their expiry in the token itself, so an expired
// one never clears the middleware.
type Principal struct {
	AccountId int
	Kind      types.PrincipalKind
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

func (s *OnlinexApp) createJwt(p Principal, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		accountIdClaim: p.AccountId,
		kindClaim:      string(p.Kind),
		expClaim:       expiresAt.Unix(),
	})

	return token.SignedString(s.signingKey)
}

func createJwtCookie(tokenString string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *OnlinexApp) extractPrincipalFromToken(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return Principal{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, fmt.Errorf("invalid token claims")
	}

	accountId, ok := claims[accountIdClaim].(float64)
	if !ok {
		return Principal{}, fmt.Errorf("invalid account id claim")
	}

	kind, ok := claims[kindClaim].(string)
	if !ok {
		return Principal{}, fmt.Errorf("invalid kind claim")
	}

	return Principal{
		AccountId: int(accountId),
		Kind:      types.PrincipalKind(kind),
	}, nil
}
