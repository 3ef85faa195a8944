package repository

import (
	"errors"
	"time"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/pkg/logger"
	"gorm.io/gorm"
)

// OrderFilter narrows admin listings. Zero values mean "no constraint".
type OrderFilter struct {
	Status        model.OrderStatus
	PaymentMethod model.PaymentMethod
	Page          int
	Limit         int
}

type OrderRepository interface {
	FindByID(id uint) (*model.Order, error)
	FindByOrderNumber(orderNumber string) (*model.Order, error)
	FindByUserID(userID uint) ([]model.Order, error)
	List(filter OrderFilter) ([]model.Order, int64, error)
	Update(order *model.Order) error
	UpdateStatus(id uint, status model.OrderStatus) error
	FindStalePendingCardOrders(before time.Time) ([]model.Order, error)
	FindPaymentByOrderID(orderID uint) (*model.PaymentInfo, error)
	FindPaymentByTransactionID(transactionID string) (*model.PaymentInfo, error)
	UpdatePayment(payment *model.PaymentInfo) error
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) preloadOrder() *gorm.DB {
	return r.db.Preload("OrderItems").
		Preload("OrderItems.Product").
		Preload("Payment")
}

func (r *orderRepository) FindByID(id uint) (*model.Order, error) {
	logger.Debug("Finding order by ID in database", map[string]interface{}{
		"order_id": id,
	})

	var order model.Order
	if err := r.preloadOrder().First(&order, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find order by ID in database", err, map[string]interface{}{
				"order_id": id,
			})
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByOrderNumber(orderNumber string) (*model.Order, error) {
	logger.Debug("Finding order by order number in database", map[string]interface{}{
		"order_number": orderNumber,
	})

	var order model.Order
	if err := r.preloadOrder().Where("order_number = ?", orderNumber).First(&order).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find order by order number in database", err, map[string]interface{}{
				"order_number": orderNumber,
			})
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByUserID(userID uint) ([]model.Order, error) {
	logger.Debug("Finding orders by user ID in database", map[string]interface{}{
		"user_id": userID,
	})

	var orders []model.Order
	if err := r.preloadOrder().Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		logger.Error("Failed to find orders by user ID in database", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}

	logger.Debug("Orders found by user ID in database", map[string]interface{}{
		"user_id": userID,
		"count":   len(orders),
	})
	return orders, nil
}

func (r *orderRepository) List(filter OrderFilter) ([]model.Order, int64, error) {
	logger.Debug("Listing orders in database", map[string]interface{}{
		"status": filter.Status,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})

	query := r.db.Model(&model.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentMethod != "" {
		query = query.Where("payment_method = ?", filter.PaymentMethod)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		logger.Error("Failed to count orders in database", err, nil)
		return nil, 0, err
	}

	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.Limit).Limit(filter.Limit)
	}

	var orders []model.Order
	if err := query.Preload("OrderItems").Preload("OrderItems.Product").Preload("Payment").
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		logger.Error("Failed to list orders in database", err, nil)
		return nil, 0, err
	}

	logger.Debug("Orders listed in database", map[string]interface{}{
		"count": len(orders),
		"total": total,
	})
	return orders, total, nil
}

func (r *orderRepository) Update(order *model.Order) error {
	logger.Debug("Updating order in database", map[string]interface{}{
		"order_id": order.ID,
		"status":   order.Status,
	})

	if err := r.db.Save(order).Error; err != nil {
		logger.Error("Failed to update order in database", err, map[string]interface{}{
			"order_id": order.ID,
		})
		return err
	}
	return nil
}

func (r *orderRepository) UpdateStatus(id uint, status model.OrderStatus) error {
	logger.Debug("Updating order status in database", map[string]interface{}{
		"order_id": id,
		"status":   status,
	})

	if err := r.db.Model(&model.Order{}).Where("id = ?", id).
		Update("status", status).Error; err != nil {
		logger.Error("Failed to update order status in database", err, map[string]interface{}{
			"order_id": id,
			"status":   status,
		})
		return err
	}
	return nil
}

// FindStalePendingCardOrders returns card orders still awaiting payment that
// were created before the cutoff. Used by the expiry job.
func (r *orderRepository) FindStalePendingCardOrders(before time.Time) ([]model.Order, error) {
	logger.Debug("Finding stale pending card orders in database", map[string]interface{}{
		"before": before,
	})

	var orders []model.Order
	err := r.db.Preload("OrderItems").
		Joins("JOIN payment_infos ON payment_infos.order_id = orders.id").
		Where("orders.status = ?", model.OrderStatusPending).
		Where("orders.payment_method = ?", model.PaymentMethodCard).
		Where("payment_infos.status = ?", model.PaymentStatusPending).
		Where("orders.created_at < ?", before).
		Find(&orders).Error
	if err != nil {
		logger.Error("Failed to find stale pending card orders in database", err, nil)
		return nil, err
	}

	logger.Debug("Stale pending card orders found in database", map[string]interface{}{
		"count": len(orders),
	})
	return orders, nil
}

func (r *orderRepository) FindPaymentByOrderID(orderID uint) (*model.PaymentInfo, error) {
	var payment model.PaymentInfo
	if err := r.db.Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find payment by order ID in database", err, map[string]interface{}{
				"order_id": orderID,
			})
		}
		return nil, err
	}
	return &payment, nil
}

func (r *orderRepository) FindPaymentByTransactionID(transactionID string) (*model.PaymentInfo, error) {
	var payment model.PaymentInfo
	if err := r.db.Where("transaction_id = ?", transactionID).First(&payment).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find payment by transaction ID in database", err, map[string]interface{}{
				"transaction_id": transactionID,
			})
		}
		return nil, err
	}
	return &payment, nil
}

func (r *orderRepository) UpdatePayment(payment *model.PaymentInfo) error {
	logger.Debug("Updating payment info in database", map[string]interface{}{
		"payment_id": payment.ID,
		"order_id":   payment.OrderID,
		"status":     payment.Status,
	})

	if err := r.db.Save(payment).Error; err != nil {
		logger.Error("Failed to update payment info in database", err, map[string]interface{}{
			"payment_id": payment.ID,
			"order_id":   payment.OrderID,
		})
		return err
	}
	return nil
}
