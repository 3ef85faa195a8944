package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/internal/app/repository"
	"github.com/dukkanhq/dukkan-backend/pkg/logger"
	"github.com/dukkanhq/dukkan-backend/pkg/util"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrEmptyCart               = errors.New("cart is empty")
	ErrInvalidPaymentMethod    = errors.New("invalid payment method")
	ErrInvalidOrderStatus      = errors.New("invalid order status")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

// CheckoutInput carries the shipping and payment details for an order.
// Totals are never part of the input: the server computes them from the
// product table inside the checkout transaction.
type CheckoutInput struct {
	FullName      string `json:"full_name" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Phone         string `json:"phone" binding:"required"`
	Address       string `json:"address" binding:"required"`
	City          string `json:"city" binding:"required"`
	Country       string `json:"country"`
	Notes         string `json:"notes"`
	PaymentMethod string `json:"payment_method" binding:"required"`
}

type OrderService interface {
	CreateOrderFromCart(userID uint, input CheckoutInput) (*model.Order, error)
	CreateGuestOrder(guestToken string, input CheckoutInput) (*model.Order, error)
	GetOrderByID(userID, orderID uint) (*model.Order, error)
	GetOrderByNumber(orderNumber string) (*model.Order, error)
	GetUserOrders(userID uint) ([]model.Order, error)
	ListOrders(filter repository.OrderFilter) ([]model.Order, int64, error)
	UpdateOrderStatus(orderID uint, status model.OrderStatus) (*model.Order, error)
	ExpireStalePayments(olderThan time.Duration) (int, error)
	ExportOrdersExcel(filter repository.OrderFilter) (*excelize.File, error)
}

type orderService struct {
	orderRepo repository.OrderRepository
	cartRepo  repository.CartRepository
	db        *gorm.DB
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	db *gorm.DB,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		cartRepo:  cartRepo,
		db:        db,
	}
}

func (s *orderService) CreateOrderFromCart(userID uint, input CheckoutInput) (*model.Order, error) {
	logger.Info("Creating order from user cart", map[string]interface{}{
		"user_id":        userID,
		"payment_method": input.PaymentMethod,
	})

	cart, err := s.cartRepo.FindByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, err
	}
	return s.createOrder(&userID, cart, input)
}

func (s *orderService) CreateGuestOrder(guestToken string, input CheckoutInput) (*model.Order, error) {
	logger.Info("Creating guest order", map[string]interface{}{
		"payment_method": input.PaymentMethod,
	})

	if guestToken == "" {
		return nil, ErrCartSessionRequired
	}
	cart, err := s.cartRepo.FindByGuestToken(guestToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, err
	}
	return s.createOrder(nil, cart, input)
}

// createOrder is the single checkout path for both registered users and
// guests. Everything between the stock checks and the cart clear runs in one
// transaction: either the order exists with stock decremented and the cart
// empty, or nothing changed.
func (s *orderService) createOrder(userID *uint, cart *model.Cart, input CheckoutInput) (*model.Order, error) {
	method := model.PaymentMethod(input.PaymentMethod)
	if method != model.PaymentMethodCard && method != model.PaymentMethodCashOnDelivery {
		logger.Warn("Order creation failed: invalid payment method", map[string]interface{}{
			"payment_method": input.PaymentMethod,
		})
		return nil, ErrInvalidPaymentMethod
	}

	if len(cart.Items) == 0 {
		logger.Warn("Cannot create order: cart is empty", map[string]interface{}{
			"cart_id": cart.ID,
		})
		return nil, ErrEmptyCart
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during order creation, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"cart_id": cart.ID,
			})
		}
	}()

	// Resolve and lock every product before touching stock, so a vanished
	// product is reported ahead of any stock shortage elsewhere in the cart.
	products := make([]model.Product, len(cart.Items))
	for i, cartItem := range cart.Items {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&products[i], cartItem.ProductID).Error; err != nil {
			tx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Warn("Product not found during order creation", map[string]interface{}{
					"cart_id":    cart.ID,
					"product_id": cartItem.ProductID,
				})
				return nil, ErrProductNotFound
			}
			logger.Error("Failed to fetch product during order creation", err, map[string]interface{}{
				"cart_id":    cart.ID,
				"product_id": cartItem.ProductID,
			})
			return nil, err
		}
	}

	var (
		totalAmount float64
		orderItems  []model.OrderItem
	)

	for i, cartItem := range cart.Items {
		product := products[i]

		// Guarded decrement: the WHERE clause re-checks stock so two
		// concurrent checkouts cannot both take the last unit.
		res := tx.Model(&model.Product{}).
			Where("id = ? AND stock_quantity >= ?", product.ID, cartItem.Quantity).
			Update("stock_quantity", gorm.Expr("stock_quantity - ?", cartItem.Quantity))
		if res.Error != nil {
			tx.Rollback()
			logger.Error("Failed to decrement product stock", res.Error, map[string]interface{}{
				"cart_id":    cart.ID,
				"product_id": product.ID,
			})
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			tx.Rollback()
			logger.Warn("Order creation failed: insufficient product stock", map[string]interface{}{
				"cart_id":    cart.ID,
				"product_id": product.ID,
				"requested":  cartItem.Quantity,
				"available":  product.StockQuantity,
			})
			return nil, ErrInsufficientStock
		}

		orderItems = append(orderItems, model.OrderItem{
			ProductID: cartItem.ProductID,
			Quantity:  cartItem.Quantity,
			Price:     product.Price,
			Size:      cartItem.Size,
			Color:     cartItem.Color,
		})
		totalAmount += product.Price * float64(cartItem.Quantity)
	}

	order := &model.Order{
		OrderNumber:   util.GenerateOrderNumber(),
		UserID:        userID,
		FullName:      input.FullName,
		Email:         input.Email,
		Phone:         input.Phone,
		Address:       input.Address,
		City:          input.City,
		Country:       input.Country,
		Notes:         input.Notes,
		TotalAmount:   totalAmount,
		Status:        model.OrderStatusPending,
		PaymentMethod: method,
		OrderItems:    orderItems,
		Payment: &model.PaymentInfo{
			Amount: totalAmount,
			Status: model.PaymentStatusPending,
		},
	}

	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		logger.Error("Failed to create order", err, map[string]interface{}{
			"cart_id":      cart.ID,
			"total_amount": totalAmount,
		})
		return nil, err
	}

	if err := tx.Where("cart_id = ?", cart.ID).Delete(&model.CartItem{}).Error; err != nil {
		tx.Rollback()
		logger.Error("Failed to clear cart after order creation", err, map[string]interface{}{
			"cart_id": cart.ID,
		})
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		logger.Error("Failed to commit order transaction", err, map[string]interface{}{
			"cart_id":  cart.ID,
			"order_id": order.ID,
		})
		return nil, err
	}

	logger.Info("Order created successfully", map[string]interface{}{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"total_amount":   totalAmount,
		"item_count":     len(orderItems),
		"payment_method": method,
	})

	return s.orderRepo.FindByID(order.ID)
}

func (s *orderService) GetOrderByID(userID, orderID uint) (*model.Order, error) {
	logger.Debug("Fetching order by ID", map[string]interface{}{
		"user_id":  userID,
		"order_id": orderID,
	})

	order, err := s.orderRepo.FindByID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Order not found", map[string]interface{}{
				"user_id":  userID,
				"order_id": orderID,
			})
			return nil, ErrOrderNotFound
		}
		logger.Error("Failed to fetch order", err, map[string]interface{}{
			"user_id":  userID,
			"order_id": orderID,
		})
		return nil, err
	}

	// Foreign orders are reported as missing, not forbidden.
	if order.UserID == nil || *order.UserID != userID {
		logger.Warn("Order access denied: ownership mismatch", map[string]interface{}{
			"user_id":  userID,
			"order_id": orderID,
			"owner_id": order.UserID,
		})
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(orderNumber string) (*model.Order, error) {
	logger.Debug("Fetching order by order number", map[string]interface{}{
		"order_number": orderNumber,
	})

	order, err := s.orderRepo.FindByOrderNumber(orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *orderService) GetUserOrders(userID uint) ([]model.Order, error) {
	logger.Debug("Fetching user orders", map[string]interface{}{
		"user_id": userID,
	})

	orders, err := s.orderRepo.FindByUserID(userID)
	if err != nil {
		logger.Error("Failed to fetch user orders", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}
	return orders, nil
}

func (s *orderService) ListOrders(filter repository.OrderFilter) ([]model.Order, int64, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, ErrInvalidOrderStatus
	}
	return s.orderRepo.List(filter)
}

func (s *orderService) UpdateOrderStatus(orderID uint, status model.OrderStatus) (*model.Order, error) {
	logger.Info("Updating order status", map[string]interface{}{
		"order_id":   orderID,
		"new_status": status,
	})

	if !status.Valid() {
		return nil, ErrInvalidOrderStatus
	}

	order, err := s.orderRepo.FindByID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if !order.Status.CanTransitionTo(status) {
		logger.Warn("Rejected order status update: illegal transition", map[string]interface{}{
			"order_id":   orderID,
			"from":       order.Status,
			"new_status": status,
		})
		return nil, ErrInvalidStatusTransition
	}

	if status == model.OrderStatusCancelled {
		return s.cancelOrder(order)
	}

	if err := s.orderRepo.UpdateStatus(orderID, status); err != nil {
		return nil, err
	}

	logger.Info("Order status updated successfully", map[string]interface{}{
		"order_id": orderID,
		"status":   status,
	})
	return s.orderRepo.FindByID(orderID)
}

// cancelOrder flips the order to cancelled and restores the decremented
// stock in the same transaction.
func (s *orderService) cancelOrder(order *model.Order) (*model.Order, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during order cancellation, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"order_id": order.ID,
			})
		}
	}()

	// The caller's snapshot may be stale: a payment callback can settle the
	// order between its read and this transaction. Re-check under lock.
	var current model.Order
	if err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&current, order.ID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if !current.Status.CanTransitionTo(model.OrderStatusCancelled) {
		tx.Rollback()
		logger.Warn("Cancellation rejected: order no longer cancellable", map[string]interface{}{
			"order_id": order.ID,
			"status":   current.Status,
		})
		return nil, ErrInvalidStatusTransition
	}
	var payment model.PaymentInfo
	if err := tx.Where("order_id = ?", order.ID).First(&payment).Error; err == nil &&
		payment.Status == model.PaymentStatusSuccess {
		tx.Rollback()
		logger.Warn("Cancellation rejected: payment already settled", map[string]interface{}{
			"order_id": order.ID,
		})
		return nil, ErrInvalidStatusTransition
	}

	for _, item := range order.OrderItems {
		if err := tx.Model(&model.Product{}).
			Where("id = ?", item.ProductID).
			Update("stock_quantity", gorm.Expr("stock_quantity + ?", item.Quantity)).Error; err != nil {
			tx.Rollback()
			logger.Error("Failed to restore product stock on cancellation", err, map[string]interface{}{
				"order_id":   order.ID,
				"product_id": item.ProductID,
			})
			return nil, err
		}
	}

	if err := tx.Model(&model.Order{}).Where("id = ?", order.ID).
		Update("status", model.OrderStatusCancelled).Error; err != nil {
		tx.Rollback()
		logger.Error("Failed to mark order cancelled", err, map[string]interface{}{
			"order_id": order.ID,
		})
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		logger.Error("Failed to commit order cancellation", err, map[string]interface{}{
			"order_id": order.ID,
		})
		return nil, err
	}

	logger.Info("Order cancelled and stock restored", map[string]interface{}{
		"order_id":   order.ID,
		"item_count": len(order.OrderItems),
	})
	return s.orderRepo.FindByID(order.ID)
}

// ExpireStalePayments cancels card orders whose payment has been pending for
// longer than olderThan and restores their stock. Returns the number of
// orders expired.
func (s *orderService) ExpireStalePayments(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	logger.Info("Expiring stale payment-pending orders", map[string]interface{}{
		"cutoff": cutoff,
	})

	orders, err := s.orderRepo.FindStalePendingCardOrders(cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range orders {
		if _, err := s.cancelOrder(&orders[i]); err != nil {
			logger.Error("Failed to expire stale order", err, map[string]interface{}{
				"order_id": orders[i].ID,
			})
			continue
		}

		payment, err := s.orderRepo.FindPaymentByOrderID(orders[i].ID)
		if err == nil && payment.Status == model.PaymentStatusPending {
			payment.Status = model.PaymentStatusFailed
			if err := s.orderRepo.UpdatePayment(payment); err != nil {
				logger.Error("Failed to mark expired payment as failed", err, map[string]interface{}{
					"order_id": orders[i].ID,
				})
			}
		}
		expired++
	}

	logger.Info("Stale payment expiry finished", map[string]interface{}{
		"expired": expired,
	})
	return expired, nil
}

// ExportOrdersExcel builds an XLSX workbook of the orders matching the
// filter, one row per order.
func (s *orderService) ExportOrdersExcel(filter repository.OrderFilter) (*excelize.File, error) {
	logger.Info("Exporting orders to Excel", map[string]interface{}{
		"status": filter.Status,
	})

	filter.Limit = 0 // export is unpaginated
	orders, _, err := s.orderRepo.List(filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Orders"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{
		"Order Number", "Date", "Customer", "Email", "Phone",
		"City", "Items", "Total", "Payment Method", "Status",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, order := range orders {
		itemCount := 0
		for _, item := range order.OrderItems {
			itemCount += item.Quantity
		}
		values := []interface{}{
			order.OrderNumber,
			order.CreatedAt.Format("2006-01-02 15:04"),
			order.FullName,
			order.Email,
			order.Phone,
			order.City,
			itemCount,
			order.TotalAmount,
			string(order.PaymentMethod),
			string(order.Status),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	logger.Info("Orders exported to Excel", map[string]interface{}{
		"count": len(orders),
	})
	return f, nil
}
