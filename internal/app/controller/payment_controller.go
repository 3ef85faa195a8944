package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dukkanhq/dukkan-backend/internal/app/service"
	apperrors "github.com/dukkanhq/dukkan-backend/internal/errors"
	"github.com/dukkanhq/dukkan-backend/internal/middleware"
	"github.com/dukkanhq/dukkan-backend/pkg/payment/paymob"
)

type PaymentController struct {
	paymentService service.PaymentService
	orderService   service.OrderService
}

func NewPaymentController(paymentService service.PaymentService, orderService service.OrderService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		orderService:   orderService,
	}
}

type CreatePaymentRequest struct {
	OrderID     uint   `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// CreatePayment starts the gateway handshake for a pending card order and
// returns the hosted checkout session. Authenticated users address their
// order by ID; guests by order number.
// POST /api/v1/payment/create
func (ctrl *PaymentController) CreatePayment(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	var (
		orderID   uint
		requester *uint
	)
	if userID, ok := middleware.GetUserID(c); ok {
		if req.OrderID == 0 {
			apperrors.BadRequest(c, apperrors.ValidationRequired, "order_id is required")
			return
		}
		orderID = req.OrderID
		requester = &userID
	} else {
		if req.OrderNumber == "" {
			apperrors.BadRequest(c, apperrors.ValidationRequired, "order_number is required")
			return
		}
		order, err := ctrl.orderService.GetOrderByNumber(req.OrderNumber)
		if err != nil {
			if errors.Is(err, service.ErrOrderNotFound) {
				apperrors.NotFound(c, apperrors.OrderNotFound, "Order not found")
				return
			}
			apperrors.InternalError(c, "")
			return
		}
		orderID = order.ID
	}

	session, err := ctrl.paymentService.InitiatePayment(c.Request.Context(), orderID, requester)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			apperrors.NotFound(c, apperrors.OrderNotFound, "Order not found")
		case errors.Is(err, service.ErrPaymentMethodNotAllowed):
			apperrors.BadRequest(c, apperrors.PaymentMethodNotAllowed,
				"Only card orders can be paid online")
		case errors.Is(err, service.ErrPaymentAlreadyProcessed):
			apperrors.Conflict(c, apperrors.PaymentAlreadyProcessed,
				"This order is not awaiting payment")
		case errors.Is(err, service.ErrPaymentNotFound):
			apperrors.NotFound(c, apperrors.PaymentNotFound, "Payment record not found")
		default:
			log.Error("Payment initiation failed", err, map[string]interface{}{
				"order_id": orderID,
			})
			apperrors.RespondWithError(c, http.StatusBadGateway,
				apperrors.PaymentGatewayUnavailable, "Payment gateway is unavailable")
		}
		return
	}

	log.Info("Payment session created", map[string]interface{}{
		"order_id":         orderID,
		"gateway_order_id": session.GatewayOrderID,
	})
	c.JSON(http.StatusOK, gin.H{
		"payment": session,
	})
}

// ProcessedCallback receives the gateway's transaction webhook. The HMAC
// travels as a query parameter; an invalid one is rejected before anything
// is read from the payload.
// POST /api/v1/payment/processed_callback
func (ctrl *PaymentController) ProcessedCallback(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	receivedHMAC := c.Query("hmac")
	if receivedHMAC == "" {
		apperrors.RespondWithError(c, http.StatusUnauthorized,
			apperrors.PaymentInvalidSignature, "Missing callback signature")
		return
	}

	var envelope paymob.CallbackEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		log.Warn("Malformed payment callback", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidFormat, "Malformed callback payload")
		return
	}

	if err := ctrl.paymentService.HandleProcessedCallback(envelope, receivedHMAC); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			apperrors.RespondWithError(c, http.StatusUnauthorized,
				apperrors.PaymentInvalidSignature, "Invalid callback signature")
		case errors.Is(err, service.ErrOrderNotFound):
			apperrors.NotFound(c, apperrors.OrderNotFound, "Order not found")
		case errors.Is(err, service.ErrPaymentNotFound):
			apperrors.NotFound(c, apperrors.PaymentNotFound, "Payment record not found")
		default:
			log.Error("Payment callback processing failed", err, map[string]interface{}{
				"transaction_id": envelope.Obj.ID,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
	})
}
