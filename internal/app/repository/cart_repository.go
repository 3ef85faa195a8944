package repository

import (
	"errors"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/pkg/logger"
	"gorm.io/gorm"
)

type CartRepository interface {
	FindByID(id uint) (*model.Cart, error)
	FindByUserID(userID uint) (*model.Cart, error)
	FindByGuestToken(token string) (*model.Cart, error)
	FindOrCreateByUserID(userID uint) (*model.Cart, error)
	FindOrCreateByGuestToken(token string) (*model.Cart, error)
	FindItemByID(itemID uint) (*model.CartItem, error)
	FindItemByVariant(cartID, productID uint, size, color string) (*model.CartItem, error)
	CreateItem(item *model.CartItem) error
	UpdateItem(item *model.CartItem) error
	DeleteItem(itemID uint) error
	ClearItems(cartID uint) error
	IsGuestSessionMerged(sessionID string) (bool, error)
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) preloadCart() *gorm.DB {
	return r.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("cart_items.created_at ASC")
	}).Preload("Items.Product")
}

func (r *cartRepository) FindByID(id uint) (*model.Cart, error) {
	var cart model.Cart
	if err := r.preloadCart().First(&cart, id).Error; err != nil {
		logger.Error("Failed to find cart by ID in database", err, map[string]interface{}{
			"cart_id": id,
		})
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepository) FindByUserID(userID uint) (*model.Cart, error) {
	logger.Debug("Finding cart by user ID in database", map[string]interface{}{
		"user_id": userID,
	})

	var cart model.Cart
	if err := r.preloadCart().Where("user_id = ?", userID).First(&cart).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find cart by user ID in database", err, map[string]interface{}{
				"user_id": userID,
			})
		}
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepository) FindByGuestToken(token string) (*model.Cart, error) {
	logger.Debug("Finding cart by guest token in database", nil)

	var cart model.Cart
	if err := r.preloadCart().Where("guest_token = ?", token).First(&cart).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find cart by guest token in database", err, nil)
		}
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepository) FindOrCreateByUserID(userID uint) (*model.Cart, error) {
	cart, err := r.FindByUserID(userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	logger.Debug("Creating cart for user in database", map[string]interface{}{
		"user_id": userID,
	})

	cart = &model.Cart{UserID: &userID}
	if err := r.db.Create(cart).Error; err != nil {
		logger.Error("Failed to create cart for user in database", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}
	return cart, nil
}

func (r *cartRepository) FindOrCreateByGuestToken(token string) (*model.Cart, error) {
	cart, err := r.FindByGuestToken(token)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	logger.Debug("Creating cart for guest session in database", nil)

	cart = &model.Cart{GuestToken: &token}
	if err := r.db.Create(cart).Error; err != nil {
		logger.Error("Failed to create cart for guest session in database", err, nil)
		return nil, err
	}
	return cart, nil
}

func (r *cartRepository) FindItemByID(itemID uint) (*model.CartItem, error) {
	var item model.CartItem
	if err := r.db.Preload("Product").First(&item, itemID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find cart item by ID in database", err, map[string]interface{}{
				"item_id": itemID,
			})
		}
		return nil, err
	}
	return &item, nil
}

func (r *cartRepository) FindItemByVariant(cartID, productID uint, size, color string) (*model.CartItem, error) {
	var item model.CartItem
	err := r.db.Where(
		"cart_id = ? AND product_id = ? AND size = ? AND color = ?",
		cartID, productID, size, color,
	).First(&item).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find cart item by variant in database", err, map[string]interface{}{
				"cart_id":    cartID,
				"product_id": productID,
			})
		}
		return nil, err
	}
	return &item, nil
}

func (r *cartRepository) CreateItem(item *model.CartItem) error {
	logger.Debug("Creating cart item in database", map[string]interface{}{
		"cart_id":    item.CartID,
		"product_id": item.ProductID,
		"quantity":   item.Quantity,
	})

	if err := r.db.Create(item).Error; err != nil {
		logger.Error("Failed to create cart item in database", err, map[string]interface{}{
			"cart_id":    item.CartID,
			"product_id": item.ProductID,
		})
		return err
	}
	return nil
}

func (r *cartRepository) UpdateItem(item *model.CartItem) error {
	logger.Debug("Updating cart item in database", map[string]interface{}{
		"item_id":  item.ID,
		"quantity": item.Quantity,
	})

	if err := r.db.Save(item).Error; err != nil {
		logger.Error("Failed to update cart item in database", err, map[string]interface{}{
			"item_id": item.ID,
		})
		return err
	}
	return nil
}

func (r *cartRepository) DeleteItem(itemID uint) error {
	logger.Debug("Deleting cart item in database", map[string]interface{}{
		"item_id": itemID,
	})

	if err := r.db.Delete(&model.CartItem{}, itemID).Error; err != nil {
		logger.Error("Failed to delete cart item in database", err, map[string]interface{}{
			"item_id": itemID,
		})
		return err
	}
	return nil
}

func (r *cartRepository) ClearItems(cartID uint) error {
	logger.Debug("Clearing cart items in database", map[string]interface{}{
		"cart_id": cartID,
	})

	if err := r.db.Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error; err != nil {
		logger.Error("Failed to clear cart items in database", err, map[string]interface{}{
			"cart_id": cartID,
		})
		return err
	}
	return nil
}

func (r *cartRepository) IsGuestSessionMerged(sessionID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.MergedGuestSession{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	if err != nil {
		logger.Error("Failed to check merged guest session in database", err, nil)
		return false, err
	}
	return count > 0, nil
}
