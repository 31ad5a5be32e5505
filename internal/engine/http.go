package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hostplane/internal/auth"
	"hostplane/internal/cache"
	"hostplane/internal/common"

	"github.com/gorilla/mux"
)

const defaultRateLimitPerMinute = 60

type StartHttpServerOpts struct {
	Addr        string
	Engine      *Engine
	Done        chan common.Done
	ServiceLogs chan<- common.ServiceLog

	// JwtSecret validates caller tokens; every /api route requires a
	// valid token
	JwtSecret string

	// Cache backs per-user rate limiting; when nil, rate limiting is
	// disabled
	Cache cache.Cache

	// RateLimitPerMinute caps write requests per user per minute
	RateLimitPerMinute int64

	IpAllowlist     []string
	ReadinessChecks []func() error
}

func StartHttpServer(opts StartHttpServerOpts) error {
	if opts.Engine == nil {
		return fmt.Errorf("failed to receive an engine instance")
	}
	if opts.JwtSecret == "" {
		return fmt.Errorf("failed to receive a jwt secret")
	}

	router := newRouter(opts)

	serverOpts := common.NewHttpServerOpts{
		Addr:        opts.Addr,
		Done:        opts.Done,
		Handler:     router,
		ServiceLogs: opts.ServiceLogs,
	}
	if len(opts.IpAllowlist) > 0 {
		serverOpts.IpAllowlist = &common.NewHttpServerIpAllowlistOpts{
			AllowedIps: opts.IpAllowlist,
		}
	}

	server, err := common.NewHttpServer(serverOpts)
	if err != nil {
		return fmt.Errorf("failed to create a http server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func newRouter(opts StartHttpServerOpts) *mux.Router {
	router := mux.NewRouter()

	common.RegisterCommonHttpEndpoints(common.CommonHttpEndpointsOpts{
		Router:          router,
		ServiceLogs:     opts.ServiceLogs,
		ReadinessChecks: opts.ReadinessChecks,
	})

	rateLimit := opts.RateLimitPerMinute
	if rateLimit <= 0 {
		rateLimit = defaultRateLimitPerMinute
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(getJwtAuthMiddleware(opts.JwtSecret))
	api.Use(getRateLimitMiddleware(opts.Cache, rateLimit))

	api.HandleFunc("/requests", getSubmitRequestHandler(opts.Engine)).Methods(http.MethodPost)
	api.HandleFunc("/requests", getListRequestsHandler(opts.Engine)).Methods(http.MethodGet)
	api.HandleFunc("/requests/{requestId}", getGetRequestHandler(opts.Engine)).Methods(http.MethodGet)
	api.HandleFunc("/requests/{requestId}/approve", getApproveRequestHandler(opts.Engine)).Methods(http.MethodPost)
	api.HandleFunc("/requests/{requestId}/reject", getRejectRequestHandler(opts.Engine)).Methods(http.MethodPost)
	api.HandleFunc("/requests/{requestId}/cancel", getCancelRequestHandler(opts.Engine)).Methods(http.MethodPost)
	api.HandleFunc("/requests/{requestId}/verify", getVerifyRequestHandler(opts.Engine)).Methods(http.MethodGet)

	router.NotFoundHandler = common.GetNotFoundHandler()
	return router
}

func getJwtAuthMiddleware(jwtSecret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				common.SendHttpFailResponse(w, r, http.StatusUnauthorized, "missing bearer token", auth.ErrorJwtClaimsInvalid)
				return
			}
			claims, err := auth.ValidateJwt(jwtSecret, strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				common.SendHttpFailResponse(w, r, http.StatusUnauthorized, "invalid bearer token", err)
				return
			}
			requestContext := context.WithValue(r.Context(), common.HttpContextUserId, claims.UserID)
			requestContext = context.WithValue(requestContext, common.HttpContextUsername, claims.Username)
			next.ServeHTTP(w, r.WithContext(requestContext))
		})
	}
}

func getRateLimitMiddleware(rateLimitCache cache.Cache, limitPerMinute int64) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rateLimitCache == nil || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			userId, _ := r.Context().Value(common.HttpContextUserId).(string)
			key := fmt.Sprintf("ratelimit:%s:%s", userId, time.Now().UTC().Format("200601021504"))
			count, err := rateLimitCache.Increment(key, time.Minute)
			if err != nil {
				// fail open, losing rate limiting is better than
				// refusing all writes
				next.ServeHTTP(w, r)
				return
			}
			if count > limitPerMinute {
				common.SendHttpFailResponse(w, r, http.StatusTooManyRequests, "rate limit exceeded", fmt.Errorf("rate_limited"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
