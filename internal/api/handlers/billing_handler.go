package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/launchkit/internal/api/middleware"
	"github.com/yoockh/launchkit/internal/models"
	"github.com/yoockh/launchkit/internal/services"
	"github.com/yoockh/launchkit/internal/utils"
)

const maxWebhookBytes = 64 << 10

type BillingHandler struct {
	svc services.BillingService
}

func NewBillingHandler(svc services.BillingService) *BillingHandler {
	return &BillingHandler{svc: svc}
}

func (h *BillingHandler) Subscription(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.Subscription(c.Request.Context(), userID))
}

func (h *BillingHandler) Checkout(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "BillingHandler.Checkout", err)
		return
	}

	url, err := h.svc.Checkout(c.Request.Context(), userID, c.GetString(middleware.CtxEmail), req.PriceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.RedirectURL{URL: url})
}

func (h *BillingHandler) Portal(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	url, err := h.svc.Portal(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.RedirectURL{URL: url})
}

func (h *BillingHandler) Webhook(c *gin.Context) {
	const op = "BillingHandler.Webhook"

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "Invalid payload", err))
		return
	}

	if err := h.svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
