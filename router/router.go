// router/router.go

package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atlas-iam/gatekeeper/controller"
	"github.com/atlas-iam/gatekeeper/guardian"
	"github.com/atlas-iam/gatekeeper/middleware"
)

func SetupRouter(
	controllers *controller.Controllers,
	authMiddleware *middleware.AuthMiddleware,
	guard *guardian.Guardian,
	rateLimitRequests int,
	rateLimitDuration time.Duration,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.RateLimiter(rateLimitRequests, rateLimitDuration))
	router.Use(authMiddleware.Handler())

	api := router.Group("/api/v1")
	controllers.Auth.RegisterRoutes(api)

	// Policy administration sits behind the policy decision point itself.
	admin := api.Group("")
	admin.Use(guard.Middleware())
	controllers.Policy.RegisterRoutes(admin)

	return router
}
