package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	apperrors "satsync/internal/errors"
	"satsync/internal/tracing"
)

type ctxKey int

// ClaimsKey holds the verified *Claims of an authenticated request
const ClaimsKey ctxKey = 1

const tokenIssuer = "satsync"

// Claims identify the operator issuing commands
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 bearer tokens
type Signer struct {
	Secret []byte
	TTL    time.Duration
}

func (s *Signer) Sign(operator string) (string, error) {
	now := time.Now()
	claims := Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

func (s *Signer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// RequireAuth rejects requests without a valid bearer token. A nil signer
// or an empty secret disables the check.
func RequireAuth(signer *Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if signer == nil || len(signer.Secret) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				writeAuthError(w, r, "missing bearer token")
				return
			}
			claims, err := signer.Parse(strings.TrimPrefix(authz, "Bearer "))
			if err != nil {
				writeAuthError(w, r, "invalid bearer token")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFrom returns the verified claims of the request, if any
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

func writeAuthError(w http.ResponseWriter, r *http.Request, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(apperrors.ToHTTPResponse(apperrors.NewAuthError(reason), tracing.RequestID(r.Context())))
}
