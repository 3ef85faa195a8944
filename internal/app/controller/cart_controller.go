package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/internal/app/service"
	apperrors "github.com/dukkanhq/dukkan-backend/internal/errors"
	"github.com/dukkanhq/dukkan-backend/internal/middleware"
)

type CartController struct {
	cartService service.CartService
}

func NewCartController(cartService service.CartService) *CartController {
	return &CartController{
		cartService: cartService,
	}
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

type BatchAddRequest struct {
	Items []service.AddItemInput `json:"items" binding:"required,min=1,dive"`
}

// resolveOwner works out who the cart belongs to. Authenticated requests use
// the user ID; anonymous ones use the guest token header, minting a fresh
// token (echoed back in the response header) on first contact.
func (ctrl *CartController) resolveOwner(c *gin.Context) service.CartOwner {
	if userID, ok := middleware.GetUserID(c); ok {
		return service.CartOwner{UserID: &userID}
	}

	token, ok := middleware.GetGuestToken(c)
	if !ok {
		token = uuid.NewString()
	}
	c.Header(middleware.GuestTokenHeader, token)
	return service.CartOwner{GuestToken: token}
}

func cartTotals(cart *model.Cart) (int, float64) {
	var count int
	var total float64
	for _, item := range cart.Items {
		count += item.Quantity
		total += item.Product.Price * float64(item.Quantity)
	}
	return count, total
}

func respondWithCart(c *gin.Context, cart *model.Cart) {
	count, total := cartTotals(cart)
	c.JSON(http.StatusOK, gin.H{
		"cart":  cart,
		"count": count,
		"total": total,
	})
}

// GetCart returns the current cart for the user or guest session
// GET /api/v1/cart
func (ctrl *CartController) GetCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := ctrl.resolveOwner(c)

	cart, err := ctrl.cartService.GetCart(owner)
	if err != nil {
		log.Error("Failed to fetch cart", err, map[string]interface{}{
			"user_id": owner.UserID,
		})
		apperrors.InternalError(c, "Failed to fetch cart")
		return
	}

	log.Info("Cart fetched successfully", map[string]interface{}{
		"cart_id": cart.ID,
		"items":   len(cart.Items),
	})
	respondWithCart(c, cart)
}

// AddItem adds a product variant to the cart
// POST /api/v1/cart/items
func (ctrl *CartController) AddItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := ctrl.resolveOwner(c)

	var req service.AddItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid add to cart request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	cart, err := ctrl.cartService.AddItem(owner, req)
	if err != nil {
		ctrl.respondCartError(c, err, req.ProductID)
		return
	}

	log.Info("Item added to cart", map[string]interface{}{
		"cart_id":    cart.ID,
		"product_id": req.ProductID,
	})
	respondWithCart(c, cart)
}

// BatchAddItems adds several product variants in one request
// POST /api/v1/cart/items/batch
func (ctrl *CartController) BatchAddItems(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := ctrl.resolveOwner(c)

	var req BatchAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid batch add request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	cart, err := ctrl.cartService.BatchAddItems(owner, req.Items)
	if err != nil {
		ctrl.respondCartError(c, err, 0)
		return
	}

	log.Info("Batch add completed", map[string]interface{}{
		"cart_id": cart.ID,
		"items":   len(req.Items),
	})
	respondWithCart(c, cart)
}

// UpdateItem changes the quantity of a cart line
// PUT /api/v1/cart/items/:id
func (ctrl *CartController) UpdateItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := ctrl.resolveOwner(c)

	itemID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid cart item ID")
		return
	}

	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	cart, err := ctrl.cartService.UpdateItemQuantity(owner, uint(itemID), req.Quantity)
	if err != nil {
		ctrl.respondCartError(c, err, 0)
		return
	}

	log.Info("Cart item updated", map[string]interface{}{
		"item_id":  itemID,
		"quantity": req.Quantity,
	})
	respondWithCart(c, cart)
}

// RemoveItem deletes a cart line
// DELETE /api/v1/cart/items/:id
func (ctrl *CartController) RemoveItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := ctrl.resolveOwner(c)

	itemID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid cart item ID")
		return
	}

	cart, err := ctrl.cartService.RemoveItem(owner, uint(itemID))
	if err != nil {
		ctrl.respondCartError(c, err, 0)
		return
	}

	log.Info("Cart item removed", map[string]interface{}{
		"item_id": itemID,
	})
	respondWithCart(c, cart)
}

// ClearCart empties the cart
// DELETE /api/v1/cart
func (ctrl *CartController) ClearCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	owner := ctrl.resolveOwner(c)

	if err := ctrl.cartService.ClearCart(owner); err != nil {
		log.Error("Failed to clear cart", err, nil)
		apperrors.InternalError(c, "Failed to clear cart")
		return
	}

	log.Info("Cart cleared", nil)
	c.JSON(http.StatusOK, gin.H{
		"message": "Cart cleared",
	})
}

// MergeCart folds the guest session cart into the authenticated user's cart
// POST /api/v1/cart/merge
func (ctrl *CartController) MergeCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	guestToken, ok := middleware.GetGuestToken(c)
	if !ok {
		log.Warn("Cart merge without guest token", map[string]interface{}{
			"user_id": userID,
		})
		apperrors.BadRequest(c, apperrors.CartSessionRequired, "Guest session token is required")
		return
	}

	cart, err := ctrl.cartService.MergeGuestCart(userID, guestToken)
	if err != nil {
		log.Error("Failed to merge guest cart", err, map[string]interface{}{
			"user_id": userID,
		})
		apperrors.InternalError(c, "Failed to merge cart")
		return
	}

	log.Info("Guest cart merged", map[string]interface{}{
		"user_id": userID,
		"cart_id": cart.ID,
	})
	respondWithCart(c, cart)
}

func (ctrl *CartController) respondCartError(c *gin.Context, err error, productID uint) {
	log := middleware.GetLoggerFromContext(c)

	switch {
	case errors.Is(err, service.ErrProductNotFound):
		log.Warn("Product not found for cart", map[string]interface{}{
			"product_id": productID,
		})
		apperrors.NotFound(c, apperrors.ProductNotFound, "Product not found")
	case errors.Is(err, service.ErrCartItemNotFound):
		apperrors.NotFound(c, apperrors.CartItemNotFound, "Cart item not found")
	case errors.Is(err, service.ErrInvalidQuantity):
		apperrors.BadRequest(c, apperrors.CartInvalidQuantity, "Quantity must be at least 1")
	case errors.Is(err, service.ErrInsufficientStock):
		apperrors.Conflict(c, apperrors.CartInsufficientStock, "Not enough stock for the requested quantity")
	case errors.Is(err, service.ErrCartSessionRequired):
		apperrors.BadRequest(c, apperrors.CartSessionRequired, "Guest session token is required")
	default:
		log.Error("Cart operation failed", err, nil)
		apperrors.InternalError(c, "")
	}
}
