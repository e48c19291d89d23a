package http

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter sets up the Gin router
func SetupRouter(h *Handlers) *gin.Engine {
	router := gin.Default()

	router.GET("/healthz", h.Healthz)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/challenge", h.Challenge)
		auth.POST("/verify", h.VerifyAndApply)
	}

	// Activation routes. Opening carries its own challenge signature, so
	// only the polling and cancel endpoints sit behind the session guard.
	activations := router.Group("/activations")
	{
		activations.POST("", h.OpenActivation)

		guarded := activations.Group("")
		guarded.Use(AuthMiddleware(h.auth))
		{
			guarded.GET("/:id", h.GetActivation)
			guarded.DELETE("/:id", h.CancelActivation)
		}
	}

	return router
}
