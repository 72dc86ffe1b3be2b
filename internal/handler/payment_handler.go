package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mukando/internal/middleware"
	"mukando/internal/models"
	"mukando/internal/repository"
	"mukando/internal/service"
)

// PaymentHandler exposes the payment subsystem over HTTP: create, status,
// gateway callback, and an admin listing over the retained records.
type PaymentHandler struct {
	svc    *service.PaymentService
	repo   *repository.PaymentRepository
	logger *zap.Logger
}

func NewPaymentHandler(svc *service.PaymentService, repo *repository.PaymentRepository, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, repo: repo, logger: logger}
}

// Create handles POST /payments.
func (h *PaymentHandler) Create(c echo.Context) error {
	var req models.CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.AmountCents <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "amount_cents must be positive"})
	}

	p, err := h.svc.CreatePayment(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("Create payment failed", zap.Error(err))
		if p == nil {
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "payment could not be started"})
		}
		// The attempt is persisted; tell the caller which one failed.
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error":      "payment could not be started",
			"payment_id": p.ID,
			"reference":  p.Reference,
		})
	}

	return c.JSON(http.StatusOK, models.CreatePaymentResponse{
		PaymentID:    p.ID,
		Reference:    p.Reference,
		Status:       string(p.Status),
		RedirectURL:  p.RedirectURL,
		PollURL:      p.PollURL,
		Instructions: p.Instructions,
	})
}

// Status handles GET /payments/:id/status.
func (h *PaymentHandler) Status(c echo.Context) error {
	id := c.Param("id")

	p, err := h.svc.GetStatus(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "payment not found"})
		}
		// Poll failures still return the stored record; the caller retries
		// or waits for the webhook.
		if p == nil {
			h.logger.Error("Status lookup failed", zap.String("payment_id", id), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
		}
	}

	return c.JSON(http.StatusOK, statusProjection(p))
}

// Callback handles POST /payments/callback, the gateway-invoked webhook.
// It always answers 200 with a bare success flag: rejection detail stays in
// the logs, and an error status would only make the gateway retry forged
// payloads.
func (h *PaymentHandler) Callback(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil || len(body) == 0 {
		return c.JSON(http.StatusOK, models.CallbackResponse{Success: false})
	}

	result, err := h.svc.ProcessCallback(c.Request().Context(), string(body))
	if err != nil {
		h.logger.Warn("Callback rejected",
			zap.String("remote_ip", c.RealIP()),
			zap.Error(err))
		return c.JSON(http.StatusOK, models.CallbackResponse{Success: false})
	}

	c.Set(middleware.CallbackApplied, true)
	return c.JSON(http.StatusOK, models.CallbackResponse{Success: result.Success})
}

// List handles GET /payments, an admin projection with pagination + search.
func (h *PaymentHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	page, _ := strconv.Atoi(c.QueryParam("page"))
	q := c.QueryParam("q")
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if page <= 0 {
		page = 1
	}

	payments, total, err := h.repo.FindAll(limit, page, q)
	if err != nil {
		h.logger.Error("Failed to list payments", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to retrieve payments"})
	}

	items := make([]models.PaymentStatusResponse, 0, len(payments))
	for i := range payments {
		items = append(items, statusProjection(&payments[i]))
	}

	totalPages := int(total) / limit
	if int(total)%limit != 0 {
		totalPages++
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"payments": items,
		"pagination": map[string]interface{}{
			"total":        total,
			"total_pages":  totalPages,
			"current_page": page,
			"per_page":     limit,
		},
	})
}

func statusProjection(p *models.Payment) models.PaymentStatusResponse {
	resp := models.PaymentStatusResponse{
		PaymentID:         p.ID,
		Reference:         p.Reference,
		Status:            string(p.Status),
		AmountCents:       p.AmountCents,
		Currency:          p.Currency,
		ExternalPaymentID: p.ExternalPaymentID,
		FailureReason:     p.FailureReason,
	}
	if p.PaymentDate != nil {
		resp.PaymentDate = p.PaymentDate.UTC().Format(time.RFC3339)
	}
	return resp
}
