package router

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/counsel-dev/counsel/internal/middleware"
	"github.com/counsel-dev/counsel/internal/middleware/metrics"
	rl "github.com/counsel-dev/counsel/internal/middleware/ratelimiter"
	"github.com/counsel-dev/counsel/internal/setup"
)

// New creates and configures a new mux router with all the routes.
// IMPORTANT! ratelimiters set with .Use limit request for all endpoints combined in that subrouter
func New(deps *setup.Dependencies) *mux.Router {
	r := mux.NewRouter()

	// Enable gzip compression for all responses
	r.Use(handlers.CompressHandler)

	r.Use(handlers.CORS(
		handlers.AllowedOrigins(deps.Config.Public.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	))

	r.Use(metrics.Middleware)

	// Add a wildcard OPTIONS handler to avoid 404s for preflight requests
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := deps.Handler
	authMw := deps.Auth

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/ready", h.Ready).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()

	loggedIn := v1.NewRoute().Subrouter()
	loggedIn.Use(authMw.NeedAuth())
	loggedIn.Use(middleware.RateLimit(rl.New(100, 100, 1*time.Hour))) // 100 RPS per user

	loggedIn.HandleFunc("/questions", h.CreateQuestion).Methods("POST")
	loggedIn.HandleFunc("/questions", h.ListQuestions).Methods("GET")
	loggedIn.HandleFunc("/questions/{question}", h.GetQuestion).Methods("GET")
	loggedIn.HandleFunc("/questions/{question}/messages", h.ListMessages).Methods("GET")
	// CreateMessage: 1 per second per user
	loggedIn.Handle("/questions/{question}/messages",
		middleware.RateLimit(rl.New(1, 1, 1*time.Hour))(http.HandlerFunc(h.CreateMessage))).Methods("POST")

	loggedIn.HandleFunc("/questions/{question}/claim", h.ClaimQuestion).Methods("POST")
	loggedIn.HandleFunc("/questions/{question}/participants", h.Participants).Methods("GET")
	loggedIn.HandleFunc("/questions/{question}/ws", h.ThreadSocket).Methods("GET")

	loggedIn.HandleFunc("/queue", h.Queue).Methods("GET")

	loggedIn.HandleFunc("/notifications", h.ListNotifications).Methods("GET")
	loggedIn.HandleFunc("/notifications/{notification}/read", h.MarkNotificationRead).Methods("PATCH")

	// Moderation routes
	mod := v1.NewRoute().Subrouter()
	mod.Use(authMw.ModeratorOnly())
	mod.HandleFunc("/questions/{question}/assign", h.AssignResponder).Methods("POST")
	mod.HandleFunc("/questions/{question}/close", h.CloseQuestion).Methods("POST")

	return r
}
