// Package router wires the gin engine: recovery, request logging, and
// per-route rate limits, then registers the one resource this service
// exposes.
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"paymentcore/internal/handler"
	"paymentcore/internal/middleware"
	"paymentcore/internal/orchestrator"
)

func Setup(env string, log *zap.Logger, svc *orchestrator.Service) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	paymentHandler := handler.NewPaymentHandler(svc)

	// Initiate moves money, so it gets a tighter quota than the
	// read-only status lookup.
	initiateLimit := middleware.RateLimit(middleware.NewInMemoryRateLimiter(30, 60*time.Second))
	statusLimit := middleware.RateLimit(middleware.NewInMemoryRateLimiter(200, 60*time.Second))

	v1 := r.Group("/api/v1/payments")
	v1.POST("/initiate", initiateLimit, paymentHandler.Initiate)
	v1.GET("/status/:id", statusLimit, paymentHandler.Status)

	return r
}
