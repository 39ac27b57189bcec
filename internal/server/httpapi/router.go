// Package httpapi is the HTTP boundary of the server: a gin router that
// maps requests onto the session controller and the guard, and maps their
// errors back onto status codes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 32 << 10

// Sessions is the session controller; *users.Service implements it.
type Sessions interface {
	Register(ctx context.Context, username, email, password string) (*models.PublicUser, error)
	Login(ctx context.Context, email, password string) (*users.LoginResult, error)
	Logout(ctx context.Context, userID string) error
	RefreshToken(ctx context.Context, presented string) (*users.TokenPair, error)
}

// Authenticator resolves an access token to a user; *guard.Guard implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.PublicUser, error)
}

// Options tune the router.
type Options struct {
	// Production marks the token cookies Secure.
	Production bool
	// CORSOrigin is the browser origin allowed to send credentials; empty
	// disables CORS.
	CORSOrigin string
	// RateLimitPerSecond and RateLimitBurst bound the credential endpoints
	// per client IP; a zero rate disables limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
	// Metrics, when set, records request latencies and serves /metrics.
	Metrics *metrics.Metrics
	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

type handler struct {
	sessions Sessions
	guard    Authenticator
	log      logging.Logger
	opts     Options
}

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(sessions Sessions, guard Authenticator, log logging.Logger, opts Options) *gin.Engine {
	h := &handler{sessions: sessions, guard: guard, log: log, opts: opts}

	r := gin.New()
	r.Use(requestID(), recovery(log), accessLog(log, opts.Metrics))
	if opts.CORSOrigin != "" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{opts.CORSOrigin},
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(bodyLimit(maxBodyBytes))

	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	limit := rateLimit(newIPLimiter(opts.RateLimitPerSecond, opts.RateLimitBurst))

	v1 := r.Group("/v1/users")
	v1.POST("/register", limit, h.register)
	v1.POST("/login", limit, h.login)
	v1.POST("/refresh", limit, h.refresh)

	authed := v1.Group("", h.authenticate)
	authed.POST("/logout", h.logout)
	authed.GET("/me", h.me)

	return r
}

// NewServer wraps the router in an *http.Server with conservative timeouts.
func NewServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
