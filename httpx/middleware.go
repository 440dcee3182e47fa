package httpx

import (
	"net/http"

	"github.com/jfellner/trailgate/auth"
)

// AuthMiddleware adapts auth.Middleware's authentication handler to an echo
// middleware. The resolved principal rides the request context.
func AuthMiddleware(mw *auth.Middleware) MiddlewareFunc {
	if mw == nil {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				return HTTPError(StatusUnauthorized, "auth middleware missing")
			}
		}
	}
	return adaptHTTPMiddleware(mw.Handler)
}

// RequireRoles adapts the authorization layer; it must run after
// AuthMiddleware in the chain.
func RequireRoles(mw *auth.Middleware, roles ...auth.Role) MiddlewareFunc {
	if mw == nil {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				return HTTPError(StatusForbidden, "auth middleware missing")
			}
		}
	}
	return adaptHTTPMiddleware(mw.Require(roles...))
}

func adaptHTTPMiddleware(wrap func(http.Handler) http.Handler) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			var nextErr error
			downstream := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				nextErr = next(c)
			})
			wrap(downstream).ServeHTTP(c.Response(), c.Request())
			return nextErr
		}
	}
}
