// Package api assembles the Fiber application: middleware, handlers and routes.
package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/warmpath/backend/internal/api/handlers"
	"github.com/warmpath/backend/internal/auth"
	"github.com/warmpath/backend/internal/googlecontacts"
	"github.com/warmpath/backend/internal/importer"
	"github.com/warmpath/backend/internal/metrics"
	"github.com/warmpath/backend/internal/middleware/ratelimit"
	"github.com/warmpath/backend/internal/middleware/security"
	"github.com/warmpath/backend/internal/middleware/session"
	"github.com/warmpath/backend/internal/middleware/validation"
	"github.com/warmpath/backend/internal/network"
	"github.com/warmpath/backend/internal/storage"
	"github.com/warmpath/backend/pkg/config"
	"github.com/warmpath/backend/pkg/logger"
)

// QueryCache is the optional result cache shared by queries and imports.
type QueryCache interface {
	network.Cache
	importer.Invalidator
}

type Deps struct {
	Config *config.Config
	Store  storage.Store
	// Cache may be nil.
	Cache    QueryCache
	Registry *prometheus.Registry
	Mailer   auth.Mailer
	// Google overrides the client built from Config.Google.
	Google handlers.GoogleClient
}

// Server is the assembled application plus the resources it owns.
type Server struct {
	App     *fiber.App
	Metrics *metrics.Metrics
	limiters []*ratelimit.RateLimiter
}

// Close releases background resources. It does not stop the listener.
func (s *Server) Close() {
	for _, l := range s.limiters {
		l.Stop()
	}
}

func NewServer(d Deps) *Server {
	cfg := d.Config
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	m := metrics.New(d.Registry)

	authSvc := auth.NewService(d.Store, d.Mailer, auth.Config{
		BaseURL:      cfg.Server.BaseURL,
		SessionTTL:   cfg.Auth.SessionTTL(),
		MagicLinkTTL: cfg.Auth.MagicLinkTTL(),
	})

	netOpts := []network.Option{network.WithMetrics(m)}
	impOpts := []importer.Option{importer.WithMetrics(m)}
	if d.Cache != nil {
		netOpts = append(netOpts, network.WithCache(d.Cache))
		impOpts = append(impOpts, importer.WithInvalidator(d.Cache))
	}
	netSvc := network.NewService(d.Store, netOpts...)
	imp := importer.New(d.Store, impOpts...)

	google := d.Google
	if google == nil && cfg.Google.GoogleEnabled() {
		google = googlecontacts.New(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI,
			googlecontacts.WithPageSize(cfg.Google.PageSize),
			googlecontacts.WithTimeout(cfg.Google.Timeout()),
		)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
		AppName:      "warmpath",
	})

	// Unauthenticated traffic is limited per IP. Signed-in users get a second
	// bucket keyed by user id once the session has resolved.
	ipLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:               logger.Named("ratelimit"),
	})
	userLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		KeyFunc: func(c *fiber.Ctx) string {
			return "user:" + session.UserID(c)
		},
		Logger: logger.Named("ratelimit"),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	origins := strings.Join(cfg.Server.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, DELETE, OPTIONS",
		AllowCredentials: origins != "" && origins != "*",
	}))
	app.Use(ipLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		Logger: logger.Named("validation"),
	}))

	healthHandler := handlers.NewHealthHandler(d.Store)
	authHandler := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Service:      authSvc,
		CookieName:   cfg.Auth.CookieName,
		SecureCookie: cfg.Auth.SecureCookie,
		Metrics:      m,
	})
	importHandler := handlers.NewImportHandler(handlers.ImportHandlerConfig{
		Importer:   imp,
		Google:     google,
		States:     auth.NewStateSigner(cfg.Auth.StateSecret),
		Auth:       authSvc,
		CookieName: cfg.Auth.CookieName,
		AppURL:     cfg.Server.BaseURL,
		Metrics:    m,
	})
	queryHandler := handlers.NewQueryHandler(netSvc)
	contactsHandler := handlers.NewContactsHandler(netSvc)

	app.Get("/metrics", metrics.Handler(d.Registry))

	api := app.Group("/api/v1")

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	authGroup := api.Group("/auth")
	authGroup.Post("/signin", authHandler.SignIn)
	authGroup.Get("/callback", authHandler.Callback)
	authGroup.Post("/signout", authHandler.SignOut)
	authGroup.Get("/session", authHandler.Session)

	// The Google callback resolves the session itself so that it can always
	// redirect instead of answering 401.
	api.Get("/network/import/google/callback", importHandler.GoogleCallback)

	net := api.Group("/network", session.Middleware(session.Config{
		Auth:       authSvc,
		CookieName: cfg.Auth.CookieName,
	}), userLimiter.Middleware())
	net.Post("/import/csv", importHandler.ImportCSV)
	net.Get("/import/google", importHandler.GoogleStart)
	net.Get("/import/options", importHandler.Options)
	net.Post("/query", validation.QueryFilters(validation.Config{
		MaxFilterLength: 200,
		Logger:          logger.Named("validation"),
	}), queryHandler.HandleQuery)
	net.Get("/contacts", contactsHandler.List)
	net.Post("/contacts", contactsHandler.Create)
	net.Delete("/contacts/:id", contactsHandler.Delete)

	return &Server{App: app, Metrics: m, limiters: []*ratelimit.RateLimiter{ipLimiter, userLimiter}}
}
