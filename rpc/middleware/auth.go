package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"liquidstake/crypto"
	"liquidstake/observability"
	"liquidstake/observability/logging"
)

// AuthConfig configures HS256 bearer token verification.
type AuthConfig struct {
	Secret    string
	Issuer    string
	ClockSkew time.Duration
}

type contextKey string

const contextKeyCaller contextKey = "lstake.caller"

var (
	ErrSecretNotConfigured = errors.New("auth: secret not configured")
	ErrMissingSubject      = errors.New("auth: token has no subject")
	errIssuerMismatch      = errors.New("auth: issuer mismatch")
)

// Authenticator resolves the calling account from a bearer token. Requests
// without an Authorization header pass through anonymously so read-only
// methods stay public; handlers that mutate state require CallerFromContext.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		logger: logger,
		secret: []byte(strings.TrimSpace(cfg.Secret)),
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		tokenString := extractBearer(header)
		if tokenString == "" {
			a.logger.Warn("malformed authorization header", logging.Bearer(header))
			observability.RPC().RecordThrottle("unauthenticated")
			http.Error(w, "authorization header must use Bearer scheme", http.StatusUnauthorized)
			return
		}
		caller, err := a.Verify(tokenString)
		if err != nil {
			a.logger.Warn("token validation failed", slog.Any("error", err), logging.Bearer(header))
			observability.RPC().RecordThrottle("unauthenticated")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify checks the token signature, expiry and issuer and returns the
// account named by its subject.
func (a *Authenticator) Verify(tokenString string) ([20]byte, error) {
	if len(a.secret) == 0 {
		return [20]byte{}, ErrSecretNotConfigured
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return [20]byte{}, err
	}
	if !token.Valid {
		return [20]byte{}, errors.New("auth: token invalid")
	}
	if a.cfg.Issuer != "" && claims.Issuer != a.cfg.Issuer {
		return [20]byte{}, errIssuerMismatch
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return [20]byte{}, ErrMissingSubject
	}
	return crypto.ParseAccount(claims.Subject)
}

// CallerFromContext returns the account authenticated for the request.
func CallerFromContext(ctx context.Context) ([20]byte, bool) {
	caller, ok := ctx.Value(contextKeyCaller).([20]byte)
	return caller, ok
}

// IssueToken signs a token naming caller as subject. It backs the
// development token command and tests.
func IssueToken(secret, issuer string, caller [20]byte, ttl time.Duration) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", ErrSecretNotConfigured
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  crypto.FormatAccount(caller),
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
