package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const subjectContextKey contextKey = "subject"

const bearerPrefix = "Bearer "

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("could not validate credentials")
)

// BearerAuth accepts either the static API key or an HS256 token carrying
// a sub claim. With neither configured every request passes.
type BearerAuth struct {
	apiKey    string
	jwtSecret []byte
	logger    *log.Logger
}

// NewBearerAuth creates the bearer check.
func NewBearerAuth(apiKey, jwtSecret string, logger *log.Logger) *BearerAuth {
	if logger == nil {
		logger = log.New(log.Default().Writer(), "server/auth ", log.LstdFlags)
	}
	return &BearerAuth{
		apiKey:    strings.TrimSpace(apiKey),
		jwtSecret: []byte(strings.TrimSpace(jwtSecret)),
		logger:    logger,
	}
}

// Enabled reports whether any credential is configured.
func (a *BearerAuth) Enabled() bool {
	return a != nil && (a.apiKey != "" || len(a.jwtSecret) > 0)
}

// Middleware rejects requests without a valid bearer token.
func (a *BearerAuth) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := a.Authenticate(extractToken(r))
		if err != nil {
			a.logger.Printf("BearerAuth: rejected path=%s reason=%v", r.URL.Path, err)
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSONStatus(w, errorResponse{Detail: errInvalidToken.Error()}, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), subjectContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate validates token and returns the caller's subject.
func (a *BearerAuth) Authenticate(token string) (string, error) {
	if token == "" {
		return "", errMissingToken
	}
	if a.apiKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.apiKey)) == 1 {
		return "api-key", nil
	}
	if len(a.jwtSecret) == 0 {
		return "", errInvalidToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: token has no subject", errInvalidToken)
	}
	return subject, nil
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey).(string)
	return subject, ok
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > len(bearerPrefix) && strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(authHeader[len(bearerPrefix):])
	}
	return ""
}
