package gate

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/permissions"
)

type contextKey string

const navigationContextKey contextKey = "navigation"

// NavigationFromContext returns the navigation stored by RequireRoute.
func NavigationFromContext(ctx context.Context) (Navigation, bool) {
	nav, ok := ctx.Value(navigationContextKey).(Navigation)
	return nav, ok
}

// RequireRoute is a middleware that applies Navigate to the request path.
// Redirect decisions issue a 302, a login redirect carries the original path
// in the next query parameter. Pending renders loading, which defaults to a
// 202 with a short retry hint.
func RequireRoute(view View, loading http.Handler) func(http.Handler) http.Handler {
	if loading == nil {
		loading = http.HandlerFunc(LoadingHandler)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nav := Navigate(view, r.URL.Path)

			switch nav.Decision {
			case Render:
				ctx := context.WithValue(r.Context(), navigationContextKey, nav)
				next.ServeHTTP(w, r.WithContext(ctx))

			case Pending:
				loading.ServeHTTP(w, r)

			case NotFound:
				http.NotFound(w, r)

			default:
				location := nav.Decision.Location()
				if nav.Decision == RedirectLogin {
					location += "?next=" + url.QueryEscape(r.URL.RequestURI())
				}

				log.Debug().Str("path", r.URL.Path).Str("decision", nav.Decision.String()).Msg("redirecting")

				http.Redirect(w, r, location, http.StatusFound)
			}
		})
	}
}

// RequirePermission is a middleware that serves next only when p is granted.
// While loading it serves loading, on deny it serves fallback. A nil fallback
// responds 403.
func RequirePermission(view View, p permissions.Permission, loading, fallback http.Handler) func(http.Handler) http.Handler {
	if loading == nil {
		loading = http.HandlerFunc(LoadingHandler)
	}
	if fallback == nil {
		fallback = http.HandlerFunc(forbidden)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch Check(view.Permissions(), p) {
			case Allow:
				next.ServeHTTP(w, r)
			case Loading:
				loading.ServeHTTP(w, r)
			default:
				log.Debug().Str("path", r.URL.Path).Str("permission", p.Name()).Msg("permission denied")
				fallback.ServeHTTP(w, r)
			}
		})
	}
}

// RequireAction is RequirePermission using the action guard, a permission
// that is still loading is denied.
func RequireAction(view View, p permissions.Permission, fallback http.Handler) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = http.HandlerFunc(forbidden)
	}
	return RequirePermission(view, p, fallback, fallback)
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// LoadingHandler responds 202 and asks the client to retry shortly.
func LoadingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("loading permissions\n"))
}
