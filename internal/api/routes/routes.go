// internal/api/routes/routes.go
package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"pickup-map-api-server/config"
	"pickup-map-api-server/internal/api/handlers"
	"pickup-map-api-server/internal/api/middleware"
	"pickup-map-api-server/internal/models"
	"pickup-map-api-server/internal/socket"
)

// Geocoder covers both the autocomplete and the reverse lookup.
type Geocoder interface {
	handlers.LocationSearcher
	handlers.ReverseGeocoder
}

// Tokens signs tokens at login and checks them on admin routes.
type Tokens interface {
	handlers.TokenIssuer
	middleware.TokenParser
}

// Dependencies is everything the router wires into handlers.
type Dependencies struct {
	Config       config.Config
	Pickups      handlers.PickupStore
	Users        handlers.UserFinder
	Storage      handlers.PhotoStorage
	Geocoder     Geocoder
	Tokens       Tokens
	Hub          *socket.Hub
	Redis        redis.Cmdable
	HealthChecks []handlers.HealthCheck
}

// SetupRouter builds the gin engine with every route of the API.
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config

	router := gin.New()
	// Only listed proxies may set the client IP the rate limiter keys on.
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		zap.L().Error("invalid trusted proxies, trusting none", zap.Strings("trustedProxies", cfg.Server.TrustedProxies), zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	pickupHandler := &handlers.PickupHandler{
		Store:    deps.Pickups,
		Storage:  deps.Storage,
		Geocoder: deps.Geocoder,
		MaxBytes: cfg.Upload.MaxBytes,
	}
	adminHandler := &handlers.AdminHandler{Store: deps.Pickups, Hub: deps.Hub}
	userHandler := &handlers.UserHandler{Users: deps.Users, Tokens: deps.Tokens}
	geocodeHandler := &handlers.GeocodeHandler{Geocoder: deps.Geocoder}
	webSocketHandler := &handlers.WebSocketHandler{Hub: deps.Hub}
	healthHandler := &handlers.HealthHandler{Checks: deps.HealthChecks}

	router.GET("/healthz", healthHandler.Health)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/ws", webSocketHandler.ServeWs)

		auth := apiV1.Group("/auth")
		{
			auth.POST("/login", userHandler.Login)
		}

		pickups := apiV1.Group("/pickups")
		{
			pickups.POST("", middleware.IPRateLimiter(cfg.RateLimit.SubmitLimit, cfg.RateLimit.SubmitPeriod, deps.Redis), pickupHandler.SubmitPickup)
			pickups.GET("", pickupHandler.ListVisiblePickups)
			pickups.GET("/clusters", pickupHandler.GetPickupClusters)
			pickups.GET("/:id", pickupHandler.GetPickup)
		}

		geocode := apiV1.Group("/geocode")
		{
			geocode.GET("/search", geocodeHandler.SearchLocations)
		}

		admin := apiV1.Group("/admin")
		admin.Use(middleware.Authenticate(deps.Tokens))
		admin.Use(middleware.Authorize(models.RoleAdmin))
		{
			admin.GET("/pickups", adminHandler.ListPickupsForReview)
			admin.POST("/pickups/:id/approve", adminHandler.ApprovePickup)
			admin.POST("/pickups/:id/reject", adminHandler.RejectPickup)
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders: []string{middleware.HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}
