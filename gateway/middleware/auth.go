package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"kalelend/crypto"
)

// HeaderCaller names the caller when authentication is disabled. It is
// ignored whenever tokens are enforced.
const HeaderCaller = "X-Kalelend-Caller"

type AuthConfig struct {
	Enabled        bool
	HMACSecret     string
	Issuer         string
	Audience       string
	ScopeClaim     string
	OptionalPaths  []string
	AllowAnonymous bool
	ClockSkew      time.Duration
}

type contextKey string

const (
	ContextKeyToken  contextKey = "kalelend.token"
	ContextKeyScopes contextKey = "kalelend.scopes"
	ContextKeyCaller contextKey = "kalelend.caller"
)

// CallerFromContext returns the authenticated caller address, if any.
func CallerFromContext(ctx context.Context) (crypto.Address, bool) {
	addr, ok := ctx.Value(ContextKeyCaller).(crypto.Address)
	if !ok || addr.IsZero() {
		return crypto.Address{}, false
	}
	return addr, true
}

// WithCaller returns a copy of ctx carrying addr as the caller.
func WithCaller(ctx context.Context, addr crypto.Address) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, addr)
}

// Authenticator validates HMAC-signed JWTs whose subject is the caller's
// address.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
	once   sync.Once
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	auth := &Authenticator{cfg: cfg, logger: logger}
	auth.once.Do(func() {
		auth.secret = []byte(strings.TrimSpace(cfg.HMACSecret))
		if auth.cfg.ScopeClaim == "" {
			auth.cfg.ScopeClaim = "scope"
		}
		if auth.cfg.ClockSkew <= 0 {
			auth.cfg.ClockSkew = 2 * time.Minute
		}
	})
	return auth
}

func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.cfg.Enabled {
				next.ServeHTTP(w, a.withDevCaller(r))
				return
			}
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				if a.isOptional(r.URL.Path) && a.cfg.AllowAnonymous {
					next.ServeHTTP(w, r)
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := a.parseToken(tokenString)
			if err != nil {
				a.logger.Warn("auth: token validation failed", slog.Any("error", err))
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
				a.logger.Warn("auth: claim validation failed", slog.Any("error", err))
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			caller, err := subjectAddress(claims)
			if err != nil {
				a.logger.Warn("auth: subject rejected", slog.Any("error", err))
				writeAuthError(w, http.StatusUnauthorized, "invalid token subject")
				return
			}
			scopes := extractScopes(claims, a.cfg.ScopeClaim)
			if len(requiredScopes) > 0 && !hasScopes(scopes, requiredScopes) {
				writeAuthError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyToken, tokenString)
			ctx = context.WithValue(ctx, ContextKeyScopes, scopes)
			ctx = WithCaller(ctx, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) withDevCaller(r *http.Request) *http.Request {
	raw := strings.TrimSpace(r.Header.Get(HeaderCaller))
	if raw == "" {
		return r
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return r
	}
	return r.WithContext(WithCaller(r.Context(), addr))
}

func (a *Authenticator) isOptional(path string) bool {
	for _, prefix := range a.cfg.OptionalPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func subjectAddress(claims jwt.MapClaims) (crypto.Address, error) {
	sub, err := claims.GetSubject()
	if err != nil {
		return crypto.Address{}, err
	}
	if strings.TrimSpace(sub) == "" {
		return crypto.Address{}, errors.New("subject missing")
	}
	return crypto.DecodeAddress(sub)
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience missing")
		}
	}
	return nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	kind := "unauthenticated"
	if status == http.StatusForbidden {
		kind = "forbidden"
	}
	_, _ = w.Write([]byte(`{"error":{"kind":"` + kind + `","message":"` + message + `"}}`))
}

// TokenRequest describes a caller token to mint.
type TokenRequest struct {
	Subject  crypto.Address
	Issuer   string
	Audience string
	Scopes   []string
	TTL      time.Duration
	Now      time.Time
}

// IssueToken signs an HS256 token for req.Subject with secret.
func IssueToken(secret string, req TokenRequest) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("auth secret required")
	}
	if req.Subject.IsZero() {
		return "", errors.New("subject address required")
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	claims := jwt.MapClaims{
		"sub": req.Subject.String(),
		"iat": now.Unix(),
	}
	if req.TTL > 0 {
		claims["exp"] = now.Add(req.TTL).Unix()
	}
	if req.Issuer != "" {
		claims["iss"] = req.Issuer
	}
	if req.Audience != "" {
		claims["aud"] = req.Audience
	}
	if len(req.Scopes) > 0 {
		claims["scope"] = strings.Join(req.Scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
