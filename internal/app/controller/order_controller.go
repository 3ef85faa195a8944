package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/internal/app/repository"
	"github.com/dukkanhq/dukkan-backend/internal/app/service"
	apperrors "github.com/dukkanhq/dukkan-backend/internal/errors"
	"github.com/dukkanhq/dukkan-backend/internal/middleware"
)

type OrderController struct {
	orderService service.OrderService
}

func NewOrderController(orderService service.OrderService) *OrderController {
	return &OrderController{
		orderService: orderService,
	}
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// Checkout creates an order from the authenticated user's cart
// POST /api/v1/orders
func (ctrl *OrderController) Checkout(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	var req service.CheckoutInput
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid checkout request", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	order, err := ctrl.orderService.CreateOrderFromCart(userID, req)
	if err != nil {
		ctrl.respondCheckoutError(c, err)
		return
	}

	log.Info("Order placed", map[string]interface{}{
		"user_id":      userID,
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	})
	c.JSON(http.StatusCreated, gin.H{
		"order": order,
	})
}

// GuestCheckout creates an order from a guest session's cart
// POST /api/v1/orders/guest
func (ctrl *OrderController) GuestCheckout(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	guestToken, ok := middleware.GetGuestToken(c)
	if !ok {
		apperrors.BadRequest(c, apperrors.CartSessionRequired, "Guest session token is required")
		return
	}

	var req service.CheckoutInput
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid guest checkout request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	order, err := ctrl.orderService.CreateGuestOrder(guestToken, req)
	if err != nil {
		ctrl.respondCheckoutError(c, err)
		return
	}

	log.Info("Guest order placed", map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	})
	c.JSON(http.StatusCreated, gin.H{
		"order": order,
	})
}

// GetMyOrders returns the authenticated user's order history
// GET /api/v1/orders
func (ctrl *OrderController) GetMyOrders(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	orders, err := ctrl.orderService.GetUserOrders(userID)
	if err != nil {
		log.Error("Failed to fetch user orders", err, map[string]interface{}{
			"user_id": userID,
		})
		apperrors.InternalError(c, "Failed to fetch orders")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

// GetOrder returns one of the authenticated user's orders
// GET /api/v1/orders/:id
func (ctrl *OrderController) GetOrder(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid order ID")
		return
	}

	order, err := ctrl.orderService.GetOrderByID(userID, uint(orderID))
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			apperrors.NotFound(c, apperrors.OrderNotFound, "Order not found")
			return
		}
		log.Error("Failed to fetch order", err, map[string]interface{}{
			"user_id":  userID,
			"order_id": orderID,
		})
		apperrors.InternalError(c, "Failed to fetch order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
	})
}

// TrackOrder returns an order by its public order number. Guests use this
// for order tracking; the number itself is the credential.
// GET /api/v1/orders/track/:orderNumber
func (ctrl *OrderController) TrackOrder(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	orderNumber := c.Param("orderNumber")
	if orderNumber == "" {
		apperrors.BadRequest(c, apperrors.ValidationRequired, "Order number is required")
		return
	}

	order, err := ctrl.orderService.GetOrderByNumber(orderNumber)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			apperrors.NotFound(c, apperrors.OrderNotFound, "Order not found")
			return
		}
		log.Error("Failed to track order", err, map[string]interface{}{
			"order_number": orderNumber,
		})
		apperrors.InternalError(c, "Failed to fetch order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
	})
}

// ListOrders returns all orders with optional filters (admin)
// GET /api/v1/admin/orders
func (ctrl *OrderController) ListOrders(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	filter := orderFilterFromQuery(c)
	orders, total, err := ctrl.orderService.ListOrders(filter)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrderStatus) {
			apperrors.BadRequest(c, apperrors.OrderInvalidStatus, "Unknown order status")
			return
		}
		log.Error("Failed to list orders", err, nil)
		apperrors.InternalError(c, "Failed to list orders")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  total,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})
}

// UpdateStatus moves an order along the status machine (admin)
// PUT /api/v1/admin/orders/:id/status
func (ctrl *OrderController) UpdateStatus(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid order ID")
		return
	}

	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	order, err := ctrl.orderService.UpdateOrderStatus(uint(orderID), model.OrderStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			apperrors.NotFound(c, apperrors.OrderNotFound, "Order not found")
		case errors.Is(err, service.ErrInvalidOrderStatus):
			apperrors.BadRequest(c, apperrors.OrderInvalidStatus, "Unknown order status")
		case errors.Is(err, service.ErrInvalidStatusTransition):
			apperrors.UnprocessableEntity(c, apperrors.OrderInvalidTransition,
				"Order cannot move to the requested status")
		default:
			log.Error("Failed to update order status", err, map[string]interface{}{
				"order_id": orderID,
			})
			apperrors.InternalError(c, "Failed to update order status")
		}
		return
	}

	log.Info("Order status updated", map[string]interface{}{
		"order_id": orderID,
		"status":   order.Status,
	})
	c.JSON(http.StatusOK, gin.H{
		"order": order,
	})
}

// ExportOrders streams the filtered orders as an XLSX download (admin)
// GET /api/v1/admin/orders/export
func (ctrl *OrderController) ExportOrders(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	file, err := ctrl.orderService.ExportOrdersExcel(orderFilterFromQuery(c))
	if err != nil {
		log.Error("Failed to export orders", err, nil)
		apperrors.InternalError(c, "Failed to export orders")
		return
	}

	filename := fmt.Sprintf("orders-%s.xlsx", time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := file.Write(c.Writer); err != nil {
		log.Error("Failed to write export file", err, nil)
	}
}

func (ctrl *OrderController) respondCheckoutError(c *gin.Context, err error) {
	log := middleware.GetLoggerFromContext(c)

	switch {
	case errors.Is(err, service.ErrEmptyCart):
		apperrors.BadRequest(c, apperrors.OrderEmptyCart, "Cart is empty")
	case errors.Is(err, service.ErrInvalidPaymentMethod):
		apperrors.BadRequest(c, apperrors.PaymentMethodNotAllowed, "Unsupported payment method")
	case errors.Is(err, service.ErrProductNotFound):
		apperrors.NotFound(c, apperrors.ProductNotFound, "A product in the cart no longer exists")
	case errors.Is(err, service.ErrInsufficientStock):
		apperrors.Conflict(c, apperrors.OrderInsufficientStock, "Not enough stock for one of the cart items")
	case errors.Is(err, service.ErrCartSessionRequired):
		apperrors.BadRequest(c, apperrors.CartSessionRequired, "Guest session token is required")
	default:
		log.Error("Checkout failed", err, nil)
		apperrors.InternalError(c, "Failed to create order")
	}
}

func orderFilterFromQuery(c *gin.Context) repository.OrderFilter {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return repository.OrderFilter{
		Status:        model.OrderStatus(c.Query("status")),
		PaymentMethod: model.PaymentMethod(c.Query("payment_method")),
		Page:          page,
		Limit:         limit,
	}
}
