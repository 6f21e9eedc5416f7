package console

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/app"
	"github.com/wolfeidau/smartschedule/internal/assets"
	"github.com/wolfeidau/smartschedule/internal/gate"
	httpmiddleware "github.com/wolfeidau/smartschedule/internal/http"
	"github.com/wolfeidau/smartschedule/internal/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed templates
var templateFS embed.FS

// Config configures the console server.
type Config struct {
	Listen string
	// CORSOrigins may call the JSON API from a browser.
	CORSOrigins []string
	// TrustedOrigins may submit the HTML forms cross-origin.
	TrustedOrigins []string
}

// Server is the local admin console. Every page goes through the route guard
// and renders its sections with the permission guard.
type Server struct {
	app       *app.App
	cfg       Config
	tmpl      *assets.Templates
	resources []resource
	handler   http.Handler
}

// New builds the console for a.
func New(a *app.App, cfg Config) (*Server, error) {
	pages, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}

	tmpl, err := assets.New(pages, templateFuncs)
	if err != nil {
		return nil, fmt.Errorf("failed to load console templates: %w", err)
	}

	s := &Server{
		app:       a,
		cfg:       cfg,
		tmpl:      tmpl,
		resources: recordResources(a),
	}

	handler, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.handler = handler

	return s, nil
}

// Handler returns the fully wrapped console handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := configureHTTPServer(s.cfg.Listen, s.handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Listen).Msg("starting console")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info().Msg("shutting down console")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down console: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() (http.Handler, error) {
	mux := http.NewServeMux()

	static, err := fs.Sub(templateFS, "templates/static")
	if err != nil {
		return nil, err
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, gate.DashboardPath, http.StatusFound)
	})

	// JSON API, CORS instead of CSRF
	mux.HandleFunc("GET /api/session", s.apiSession)
	mux.HandleFunc("GET /api/permissions", s.apiPermissions)

	// forms
	requireRoute := gate.RequireRoute(s.app, http.HandlerFunc(s.loading))
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("POST /logout", s.logout)
	mux.Handle("POST /teams/select", requireRoute(http.HandlerFunc(s.selectTeam)))
	mux.Handle("POST /invites/{id}/accept", s.requireAuth(http.HandlerFunc(s.acceptInvite)))
	for _, res := range s.resources {
		mux.Handle("POST "+res.Path+"/{id}/delete", s.requirePath(res.Path,
			gate.RequireAction(s.app, res.Delete, nil)(s.deleteRecord(res))))
	}

	// pages, unknown paths are answered by the route guard
	mux.Handle("GET /", requireRoute(http.HandlerFunc(s.renderPage)))

	protection := csrf.New()
	for _, origin := range s.cfg.TrustedOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid trusted origin %q: %w", origin, err)
		}
	}

	api := withCORS(s.cfg.CORSOrigins, mux)
	html := protection.Handler(mux)

	// API routes get CORS, HTML routes get CSRF
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			api.ServeHTTP(w, r)
		} else {
			html.ServeHTTP(w, r)
		}
	})

	return httpmiddleware.RequestIDMiddleware()(
		logger.Requests(log.Logger)(
			otelhttp.NewHandler(handler, "console"),
		),
	), nil
}

// requireAuth redirects anonymous requests to the login page.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.app.IsAuthenticated() {
			http.Redirect(w, r, gate.LoginPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePath applies the route guard of path to a request for a sub path.
func (s *Server) requirePath(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nav := s.app.Route(path)
		if nav.Decision != gate.Render {
			if location := nav.Decision.Location(); location != "" {
				http.Redirect(w, r, location, http.StatusFound)
				return
			}
			s.loading(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAPIRoute returns true if the path is an API route that needs CORS instead of CSRF
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// withCORS adds CORS support to the JSON API.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", httpmiddleware.RequestIDHeader},
		ExposedHeaders:   []string{httpmiddleware.RequestIDHeader},
		AllowCredentials: true,
	})
	return middleware.Handler(h)
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
