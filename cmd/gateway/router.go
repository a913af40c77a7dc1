package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/config"
	"github.com/zavolah/marketplace/internal/database"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/metrics"
	"github.com/zavolah/marketplace/internal/middleware"
	"github.com/zavolah/marketplace/internal/relay"
	"github.com/zavolah/marketplace/internal/webhook"
	"github.com/zavolah/marketplace/services/auth"
	"github.com/zavolah/marketplace/services/bookings"
	"github.com/zavolah/marketplace/services/chat"
	"github.com/zavolah/marketplace/services/marketplace"
	"github.com/zavolah/marketplace/services/orders"
	"github.com/zavolah/marketplace/services/payments"
	"github.com/zavolah/marketplace/services/products"
	"github.com/zavolah/marketplace/services/referrals"
	"github.com/zavolah/marketplace/services/staff"
	"github.com/zavolah/marketplace/services/users"
)

const (
	serviceName = "gateway"
	apiVersion  = "1.0.0"
)

// publicPaths bypass bearer token checks.
var publicPaths = []string{
	"/",
	"/health",
	"/metrics",
	"/api/auth/login",
	"/api/auth/register",
	"/api/payments/webhook/*",
}

// gateway holds the shared dependencies every route is built from.
type gateway struct {
	cfg      *config.Config
	logger   *logging.Logger
	client   *supabase.Client
	metrics  *metrics.Metrics
	store    *database.Store
	registry *relay.Registry
	limiter  *middleware.RateLimiter
}

func newGateway(cfg *config.Config, logger *logging.Logger, client *supabase.Client, m *metrics.Metrics, store *database.Store) *gateway {
	return &gateway{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		metrics: m,
		store:   store,
		limiter: middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger),
	}
}

// Router assembles the middleware chain and mounts every service under /api.
// CORS wraps the router itself so preflight requests are answered before
// route matching.
func (g *gateway) Router() http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.NewTracingMiddleware().Handler)
	r.Use(middleware.LoggingMiddleware(g.logger))
	r.Use(middleware.MetricsMiddleware(serviceName, g.metrics))
	r.Use(middleware.NewAuthMiddleware(g.tokenVerifier(), g.logger, g.cfg.Auth.Required, publicPaths).Handler)
	if g.cfg.RateLimit.RequestsPerSecond > 0 {
		r.Use(g.limiter.Handler)
	}

	r.HandleFunc("/", handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", g.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	g.registerServices(api)
	return middleware.NewCORSMiddleware(g.cfg.CORS.Origins()).Handler(r)
}

func (g *gateway) tokenVerifier() middleware.TokenVerifier {
	if g.cfg.Supabase.JWTSecret != "" {
		return middleware.NewJWTVerifier(g.cfg.Supabase.JWTSecret)
	}
	return middleware.NewIdentityVerifier(g.client.Auth())
}

func (g *gateway) registerServices(api *mux.Router) {
	orderOpts := []orders.Option{orders.WithSagaRecorder(g.metrics), orders.WithLogger(g.logger)}
	referralOpts := []referrals.Option{referrals.WithSagaRecorder(g.metrics), referrals.WithLogger(g.logger)}
	if g.store != nil {
		orderOpts = append(orderOpts, orders.WithTxStore(g.store))
		referralOpts = append(referralOpts, referrals.WithTxStore(g.store))
	}

	auth.NewHandler(g.client.Auth(), auth.NewSupabaseProfiles(g.client), g.metrics, g.logger).RegisterRoutes(api)
	products.NewHandler(products.NewSupabaseRepository(g.client), g.logger).RegisterRoutes(api)
	users.NewHandler(users.NewSupabaseRepository(g.client), g.logger).RegisterRoutes(api)
	orders.NewHandler(orders.NewSupabaseRepository(g.client, orderOpts...), g.logger).RegisterRoutes(api)
	marketplace.NewHandler(marketplace.NewSupabaseRepository(g.client), g.logger).RegisterRoutes(api)
	bookings.NewHandler(bookings.NewSupabaseRepository(g.client), g.logger).RegisterRoutes(api)
	staff.NewHandler(staff.NewSupabaseRepository(g.client), g.logger).RegisterRoutes(api)
	referrals.NewHandler(referrals.NewSupabaseRepository(g.client, referralOpts...), g.logger).RegisterRoutes(api)

	verifier := webhook.NewVerifier(g.cfg.Payments.StripeWebhookSecret, g.cfg.Payments.WebhookTolerance)
	payments.NewHandler(payments.NewSupabaseRepository(g.client), verifier, g.metrics, g.logger).RegisterRoutes(api)

	chatRepo := chat.NewSupabaseRepository(g.client, chat.WithSagaRecorder(g.metrics), chat.WithLogger(g.logger))
	g.registry = relay.NewRegistry(chatRepo, relay.WithObserver(g.metrics), relay.WithLogger(g.logger))
	chatSvc := chat.NewService(chatRepo, g.registry, g.logger)
	server := relay.NewServer(g.registry, chatSvc, relay.SessionConfig{
		SendBuffer:      g.cfg.Relay.SendBuffer,
		MaxMessageBytes: g.cfg.Relay.MaxMessageBytes,
		AllowedOrigins:  g.cfg.CORS.Origins(),
	}, g.logger)
	chat.NewHandler(chatSvc, server, g.logger).RegisterRoutes(api)
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Zavolah API is running!",
		"version": apiVersion,
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
	})
}
