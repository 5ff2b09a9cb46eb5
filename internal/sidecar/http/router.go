// Package http is the loopback bridge between extension contexts and the
// message router.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/messaging"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/store"
	"github.com/aussiebroadwan/sidecar/pkg/httpx"
	"github.com/aussiebroadwan/sidecar/pkg/slogx"
)

// MaxMessageBytes caps the size of one inbound message.
const MaxMessageBytes = 1 << 20

// Limits are the rate limit profiles applied by the bridge.
type Limits struct {
	Login   httpx.RateLimitConfig
	Message httpx.RateLimitConfig
	Probe   httpx.RateLimitConfig
}

// DefaultLimits returns the httpx profiles.
func DefaultLimits() Limits {
	return Limits{
		Login:   httpx.LoginLimit,
		Message: httpx.MessageLimit,
		Probe:   httpx.ProbeLimit,
	}
}

// Router holds shared dependencies for the bridge handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	messages     *messaging.Router
	store        store.RefreshTokens
	extensionID  string
	buildVersion string
	startTime    time.Time
	limits       Limits
	secret       string
	logger       *slog.Logger
}

// RouterOption customises a Router.
type RouterOption func(*Router)

// WithBridgeSecret makes POST /v1/messages require SecretHeader to carry
// secret.
func WithBridgeSecret(secret string) RouterOption {
	return func(r *Router) { r.secret = secret }
}

func NewRouter(
	messages *messaging.Router,
	st store.RefreshTokens,
	extensionID, buildVersion string,
	limits Limits,
	logger *slog.Logger,
	opts ...RouterOption,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		messages:     messages,
		store:        st,
		extensionID:  extensionID,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		limits:       limits,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		CORSMiddleware(extensionID),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerMessages()
	r.registerSystem()
}

// ServeHTTP applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerMessages() {
	h := &MessagesHandler{Messages: r.messages}
	senderKey := httpx.CompositeKeyExtractor("|", httpx.OriginKeyExtractor, httpx.RemoteIPKeyExtractor)

	// Logins get their own, much smaller budget.
	r.Mux.Handle("POST /v1/messages",
		httpx.Chain(h,
			RequireSecret(r.secret),
			httpx.LimitBody(MaxMessageBytes),
			httpx.RateLimitMiddleware(r.limits.Message, senderKey, rateLimited),
			httpx.RateLimitMiddleware(r.limits.Login, messageTypeKey(messaging.TypeAuthLogin, senderKey), rateLimited),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitMiddleware(r.limits.Probe, httpx.RemoteIPKeyExtractor, nil),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitMiddleware(r.limits.Probe, httpx.RemoteIPKeyExtractor, nil),
		),
	)
}

func rateLimited(w http.ResponseWriter, _ *http.Request, _ int) {
	httpx.WriteJSON(w, http.StatusTooManyRequests,
		messaging.Failure(domain.CodeNetwork, "Too many requests. Please try again later."))
}
