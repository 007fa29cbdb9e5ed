package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/event-ticket-queue/internal/config"     // rate limit configuration
    "github.com/iliyamo/event-ticket-queue/internal/handler"    // import the handlers that implement business logic
    "github.com/iliyamo/event-ticket-queue/internal/middleware" // import middleware for JWT authentication and rate limiting
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: the health check and the public catalog views.
func RegisterRoutes(e *echo.Echo, ev *handler.EventHandler) {
    // The health endpoint can be used by load balancers or monitoring
    // systems to verify that the service is up and running.
    e.GET("/healthz", handler.Health)
    // Public browse endpoints: the event catalog and per-event
    // availability counters.  No authentication required so that a
    // listing page can render before login.
    e.GET("/v1/events", ev.List)
    e.GET("/v1/events/:id", ev.Get)
    e.GET("/v1/events/:id/availability", ev.Availability)
}

// RegisterAdmission registers the authenticated admission routes.  All
// handlers in this group run behind the JWTAuth middleware, so the
// opaque caller identity is always present in the context.  The join
// route additionally runs behind the Redis token bucket; pass a nil
// Redis client to disable throttling.
func RegisterAdmission(e *echo.Echo, a *handler.AdmissionHandler, ev *handler.EventHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
    // Protected endpoints live under /v1 with JWT verification applied
    // to the whole group.
    auth := e.Group("/v1")
    auth.Use(middleware.JWTAuth(jwtSecret))

    // Event creation is the bootstrap path for inventory.
    auth.POST("/events", ev.Create)

    // Joining is rate limited per user so nobody can churn the queue;
    // the remaining admission routes stay unthrottled since they only
    // act on positions the user already holds.
    auth.POST("/events/:id/queue", a.Join, middleware.NewTokenBucket(rlCfg, rdb))
    auth.GET("/events/:id/queue", a.Status)
    auth.DELETE("/events/:id/queue", a.Cancel)
    auth.POST("/events/:id/purchase", a.Finalize)
    auth.GET("/my-tickets", a.MyTickets)
}
