package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/payment/reconciler"
	"ms-raffle/internal/utils"

	"github.com/gin-gonic/gin"
)

// maxNotificationBytes caps webhook bodies; gateway payloads are a few KB.
const maxNotificationBytes = 1 << 20

type NotificationReconciler interface {
	HandleNotification(ctx context.Context, header http.Header, query url.Values, body []byte) (*reconciler.Result, error)
}

type NotificationHandler struct {
	reconciler NotificationReconciler
	logger     *logger.Logger
}

func NewNotificationHandler(r NotificationReconciler, logger *logger.Logger) *NotificationHandler {
	return &NotificationHandler{reconciler: r, logger: logger}
}

func (h *NotificationHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.POST("/api/payments/notifications", h.HandleNotification)
}

// HandleNotification answers 200 whenever the delivery needs no retry,
// including ignored and not-yet-approved payments.
func (h *NotificationHandler) HandleNotification(c *gin.Context) {
	start := time.Now()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxNotificationBytes)
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid notification", err.Error()))
		return
	}

	result, err := h.reconciler.HandleNotification(c.Request.Context(), c.Request.Header, c.Request.URL.Query(), body)
	if err != nil {
		status, message := utils.StatusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("WEBHOOK", fmt.Sprintf("Notification failed: %v", err))
		} else {
			h.logger.Warn("WEBHOOK", fmt.Sprintf("Notification rejected (%d): %v", status, err))
		}
		c.JSON(status, utils.ErrorResponse(message, err.Error()))
		return
	}

	h.logger.LogAPI(c.Request.Method, c.Request.URL.Path, strconv.Itoa(http.StatusOK), time.Since(start).String())
	h.logger.Info("WEBHOOK", fmt.Sprintf("Payment %s: %s", result.PaymentID, result.Outcome))
	c.JSON(http.StatusOK, utils.SuccessResponse("Notification processed", result))
}

func (h *NotificationHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
