package api

import (
	"log/slog"
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	customMiddleware "github.com/Jeffreasy/LaventeCareGateway/internal/api/middleware"
	"github.com/Jeffreasy/LaventeCareGateway/internal/audit"
	"github.com/Jeffreasy/LaventeCareGateway/internal/auth"
	"github.com/Jeffreasy/LaventeCareGateway/internal/mailer"
	"github.com/Jeffreasy/LaventeCareGateway/internal/whatsapp"
)

// Deps are the long-lived services the HTTP layer is built on.
type Deps struct {
	Auth  *auth.AuthService
	Gate  customMiddleware.Authenticator
	Store Pinger
	Queue *mailer.Queue
	Audit audit.AuditLogger

	CRM             CRMClient
	CRMCache        TokenCache
	SharePoint      SiteClient
	SharePointCache TokenCache

	WhatsApp            *whatsapp.Service
	WhatsAppVerifyToken string
	WhatsAppAppSecret   string

	Metrics            prometheus.Gatherer
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
}

type Server struct {
	Router  *chi.Mux
	Logger  *slog.Logger
	limiter *customMiddleware.IPRateLimiter
}

func NewServer(deps Deps) *Server {
	r := chi.NewRouter()
	s := &Server{Router: r, Logger: slog.Default()}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// before recovery so panics reach Sentry
	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	r.Use(sentryHandler.Handle)

	r.Use(customMiddleware.RequestLogger)
	r.Use(customMiddleware.PanicRecovery)
	r.Use(customMiddleware.CORS(deps.CORSAllowedOrigins))

	if deps.RateLimitRPS > 0 {
		s.limiter = customMiddleware.NewIPRateLimiter(rate.Limit(deps.RateLimitRPS), deps.RateLimitBurst)
	}

	requireAuth := customMiddleware.AuthMiddleware(deps.Gate)

	authHandler := NewAuthHandler(deps.Auth)
	emailHandler := NewEmailHandler(deps.Queue, deps.Audit)
	upstreamHandler := NewUpstreamHandler(deps.CRM, deps.SharePoint, deps.Audit)
	whatsAppHandler := NewWhatsAppHandler(deps.WhatsApp, deps.WhatsAppVerifyToken, deps.WhatsAppAppSecret)

	r.Get("/health", s.HealthHandler(deps.Store))
	r.Get("/health/email", EmailHealthHandler(deps.Queue))
	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/login/verify", authHandler.VerifyLogin)

		r.Route("/whatsapp", func(r chi.Router) {
			r.Get("/webhook", whatsAppHandler.VerifyWebhook)
			r.Post("/webhook", whatsAppHandler.ReceiveWebhook)
			r.Get("/auth/page", whatsAppHandler.AuthPage)
			r.Get("/auth/callback", whatsAppHandler.Callback)
			r.Post("/auth/associate", whatsAppHandler.Associate)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/refresh", authHandler.Refresh)
			r.Post("/auth/logout", authHandler.Logout)

			r.Post("/email/send", emailHandler.Send)
			r.Get("/email/queue/stats", emailHandler.Stats)
			r.Post("/email/queue/start", emailHandler.Start)
			r.Post("/email/queue/stop", emailHandler.Stop)

			r.Get("/crm/whoami", upstreamHandler.CRMWhoAmI)
			r.Get("/crm/token-info", upstreamHandler.TokenInfo(deps.CRMCache))
			r.Post("/crm/token-cache/clear", upstreamHandler.ClearTokenCache(deps.CRMCache))

			r.Get("/sharepoint/sites/{siteID}", upstreamHandler.SharePointSite)
			r.Get("/sharepoint/token-info", upstreamHandler.TokenInfo(deps.SharePointCache))
			r.Post("/sharepoint/token-cache/clear", upstreamHandler.ClearTokenCache(deps.SharePointCache))
		})
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}
