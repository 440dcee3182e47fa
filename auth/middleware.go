package auth

import (
	"context"
	"net/http"
)

// Authenticator resolves a raw bearer token to a principal. *Service
// satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (Principal, error)
}

// Middleware guards HTTP handlers. Handler authenticates; Require layers an
// authorization check on top.
type Middleware struct {
	auth         Authenticator
	extractor    TokenExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
}

var principalContextKey = struct{}{}

func NewMiddleware(auth Authenticator, opts ...MiddlewareOption) (*Middleware, error) {
	cfg, err := newMiddlewareConfig(auth, opts...)
	if err != nil {
		return nil, err
	}
	return &Middleware{
		auth:         cfg.auth,
		extractor:    cfg.extractor,
		skipper:      cfg.skipper,
		errorHandler: cfg.errorHandler,
	}, nil
}

// Handler authenticates the request and attaches the resolved principal to
// the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	if m == nil {
		panic("auth: middleware is nil")
	}
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := m.extractor(r)
		if err != nil {
			m.errorHandler(w, r, ErrUnauthenticated)
			return
		}

		p, err := m.auth.Authenticate(r.Context(), raw)
		if err != nil {
			m.errorHandler(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require wraps a handler that must run behind Handler; it rejects
// principals whose role is outside the allowed set. An empty set allows any
// authenticated principal.
func (m *Middleware) Require(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				m.errorHandler(w, r, ErrUnauthenticated)
				return
			}
			if len(allowed) > 0 {
				if _, ok := allowed[p.Role]; !ok {
					m.errorHandler(w, r, ErrForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext returns the principal attached by Handler.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}
