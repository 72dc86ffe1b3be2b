package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"mukando/internal/handler"
	"mukando/internal/middleware"
	"mukando/internal/repository"
	"mukando/internal/service"
)

// Setup configures all routes for the Echo server.
func Setup(
	e *echo.Echo,
	svc *service.PaymentService,
	repo *repository.PaymentRepository,
	deduper middleware.CallbackDeduper,
	logger *zap.Logger,
) {
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	paymentHandler := handler.NewPaymentHandler(svc, repo, logger)

	e.POST("/payments", paymentHandler.Create)
	e.GET("/payments", paymentHandler.List)
	e.GET("/payments/:id/status", paymentHandler.Status)
	e.POST("/payments/callback", paymentHandler.Callback, middleware.CallbackDedup(deduper))
}
