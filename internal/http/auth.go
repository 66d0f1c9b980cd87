package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/agri-weather-service/internal/observability"
)

type authKey struct{}

var (
	errMissingBearer = errors.New("missing bearer token")
	errMissingSub    = errors.New("token has no subject")
)

// AuthMiddleware requires an HS256-signed bearer token with exp and sub claims. The subject
// is the user id passed to alert handlers.
func AuthMiddleware(secret []byte) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := validateToken(r.Header.Get("Authorization"), secret)
			if err != nil {
				observability.LoggerFrom(r.Context(), zap.NewNop()).Debug("authentication failed", zap.Error(err))
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "A valid bearer token is required")
				return
			}
			ctx := context.WithValue(r.Context(), authKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFrom returns the authenticated user id, or "" outside AuthMiddleware.
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(authKey{}).(string)
	return id
}

func validateToken(header string, secret []byte) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errMissingBearer
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, prefix))

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errMissingSub
	}
	return claims.Subject, nil
}
