package service

import (
	"errors"
	"fmt"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/internal/app/repository"
	"github.com/dukkanhq/dukkan-backend/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrCartItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrInsufficientStock   = errors.New("insufficient product stock")
	ErrCartSessionRequired = errors.New("cart owner is required")
)

// CartOwner identifies who a cart belongs to: a registered user or an
// anonymous guest session. Exactly one of the two must be set.
type CartOwner struct {
	UserID     *uint
	GuestToken string
}

func (o CartOwner) valid() bool {
	return (o.UserID != nil) != (o.GuestToken != "")
}

// AddItemInput is one line of an add request.
type AddItemInput struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

type CartService interface {
	GetCart(owner CartOwner) (*model.Cart, error)
	AddItem(owner CartOwner, input AddItemInput) (*model.Cart, error)
	BatchAddItems(owner CartOwner, inputs []AddItemInput) (*model.Cart, error)
	UpdateItemQuantity(owner CartOwner, itemID uint, quantity int) (*model.Cart, error)
	RemoveItem(owner CartOwner, itemID uint) (*model.Cart, error)
	ClearCart(owner CartOwner) error
	MergeGuestCart(userID uint, guestToken string) (*model.Cart, error)
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	db          *gorm.DB
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, db *gorm.DB) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		db:          db,
	}
}

func (s *cartService) findOrCreateCart(owner CartOwner) (*model.Cart, error) {
	if !owner.valid() {
		return nil, ErrCartSessionRequired
	}
	if owner.UserID != nil {
		return s.cartRepo.FindOrCreateByUserID(*owner.UserID)
	}
	return s.cartRepo.FindOrCreateByGuestToken(owner.GuestToken)
}

func (s *cartService) GetCart(owner CartOwner) (*model.Cart, error) {
	logger.Debug("Fetching cart", map[string]interface{}{
		"user_id":  owner.UserID,
		"is_guest": owner.UserID == nil,
	})

	cart, err := s.findOrCreateCart(owner)
	if err != nil {
		if !errors.Is(err, ErrCartSessionRequired) {
			logger.Error("Failed to fetch cart", err, map[string]interface{}{
				"user_id": owner.UserID,
			})
		}
		return nil, err
	}
	return s.cartRepo.FindByID(cart.ID)
}

func (s *cartService) AddItem(owner CartOwner, input AddItemInput) (*model.Cart, error) {
	logger.Info("Adding item to cart", map[string]interface{}{
		"user_id":    owner.UserID,
		"is_guest":   owner.UserID == nil,
		"product_id": input.ProductID,
		"quantity":   input.Quantity,
		"size":       input.Size,
		"color":      input.Color,
	})

	if input.Quantity < 1 {
		logger.Warn("Rejected cart add: invalid quantity", map[string]interface{}{
			"product_id": input.ProductID,
			"quantity":   input.Quantity,
		})
		return nil, ErrInvalidQuantity
	}

	product, err := s.productRepo.FindByID(input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Rejected cart add: product not found", map[string]interface{}{
				"product_id": input.ProductID,
			})
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	cart, err := s.findOrCreateCart(owner)
	if err != nil {
		return nil, err
	}

	// Same (product, size, color) tuple merges into the existing line.
	newQuantity := input.Quantity
	existing, err := s.cartRepo.FindItemByVariant(cart.ID, input.ProductID, input.Size, input.Color)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		newQuantity += existing.Quantity
	}

	if newQuantity > product.StockQuantity {
		logger.Warn("Rejected cart add: insufficient stock", map[string]interface{}{
			"product_id": input.ProductID,
			"requested":  newQuantity,
			"available":  product.StockQuantity,
		})
		return nil, ErrInsufficientStock
	}

	if existing != nil {
		existing.Quantity = newQuantity
		if err := s.cartRepo.UpdateItem(existing); err != nil {
			return nil, err
		}
	} else {
		item := &model.CartItem{
			CartID:    cart.ID,
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
			Size:      input.Size,
			Color:     input.Color,
		}
		if err := s.cartRepo.CreateItem(item); err != nil {
			return nil, err
		}
	}

	logger.Info("Item added to cart", map[string]interface{}{
		"cart_id":    cart.ID,
		"product_id": input.ProductID,
		"quantity":   newQuantity,
	})
	return s.cartRepo.FindByID(cart.ID)
}

func (s *cartService) BatchAddItems(owner CartOwner, inputs []AddItemInput) (*model.Cart, error) {
	logger.Info("Batch adding items to cart", map[string]interface{}{
		"user_id":    owner.UserID,
		"item_count": len(inputs),
	})

	var cart *model.Cart
	var err error
	for _, input := range inputs {
		cart, err = s.AddItem(owner, input)
		if err != nil {
			return nil, err
		}
	}
	if cart == nil {
		return s.GetCart(owner)
	}
	return cart, nil
}

func (s *cartService) UpdateItemQuantity(owner CartOwner, itemID uint, quantity int) (*model.Cart, error) {
	logger.Info("Updating cart item quantity", map[string]interface{}{
		"user_id":  owner.UserID,
		"item_id":  itemID,
		"quantity": quantity,
	})

	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	cart, item, err := s.findOwnedItem(owner, itemID)
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.FindByID(item.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if quantity > product.StockQuantity {
		logger.Warn("Rejected quantity update: insufficient stock", map[string]interface{}{
			"item_id":   itemID,
			"requested": quantity,
			"available": product.StockQuantity,
		})
		return nil, ErrInsufficientStock
	}

	item.Quantity = quantity
	if err := s.cartRepo.UpdateItem(item); err != nil {
		return nil, err
	}
	return s.cartRepo.FindByID(cart.ID)
}

func (s *cartService) RemoveItem(owner CartOwner, itemID uint) (*model.Cart, error) {
	logger.Info("Removing item from cart", map[string]interface{}{
		"user_id": owner.UserID,
		"item_id": itemID,
	})

	cart, _, err := s.findOwnedItem(owner, itemID)
	if err != nil {
		return nil, err
	}

	if err := s.cartRepo.DeleteItem(itemID); err != nil {
		return nil, err
	}
	return s.cartRepo.FindByID(cart.ID)
}

func (s *cartService) ClearCart(owner CartOwner) error {
	logger.Info("Clearing cart", map[string]interface{}{
		"user_id":  owner.UserID,
		"is_guest": owner.UserID == nil,
	})

	cart, err := s.findOrCreateCart(owner)
	if err != nil {
		return err
	}
	return s.cartRepo.ClearItems(cart.ID)
}

// findOwnedItem resolves the owner's cart and verifies the item belongs to
// it. A foreign item is reported as not found rather than forbidden.
func (s *cartService) findOwnedItem(owner CartOwner, itemID uint) (*model.Cart, *model.CartItem, error) {
	cart, err := s.findOrCreateCart(owner)
	if err != nil {
		return nil, nil, err
	}

	item, err := s.cartRepo.FindItemByID(itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrCartItemNotFound
		}
		return nil, nil, err
	}
	if item.CartID != cart.ID {
		logger.Warn("Cart item access denied: ownership mismatch", map[string]interface{}{
			"item_id":       itemID,
			"item_cart_id":  item.CartID,
			"owner_cart_id": cart.ID,
		})
		return nil, nil, ErrCartItemNotFound
	}
	return cart, item, nil
}

// MergeGuestCart folds a guest session's cart into the user's cart. Matching
// variant lines are summed, everything else is moved over. The guest session
// is recorded as merged inside the same transaction, so replaying the merge
// (double-tap login, retried request) leaves the user cart unchanged.
func (s *cartService) MergeGuestCart(userID uint, guestToken string) (*model.Cart, error) {
	logger.Info("Merging guest cart into user cart", map[string]interface{}{
		"user_id": userID,
	})

	if guestToken == "" {
		return nil, ErrCartSessionRequired
	}

	merged, err := s.cartRepo.IsGuestSessionMerged(guestToken)
	if err != nil {
		return nil, err
	}
	if merged {
		logger.Info("Guest session already merged, skipping", map[string]interface{}{
			"user_id": userID,
		})
		return s.GetCart(CartOwner{UserID: &userID})
	}

	userCart, err := s.cartRepo.FindOrCreateByUserID(userID)
	if err != nil {
		return nil, err
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during cart merge, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"user_id": userID,
			})
		}
	}()

	var guestCart model.Cart
	err = tx.Preload("Items").Where("guest_token = ?", guestToken).First(&guestCart).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		tx.Rollback()
		logger.Error("Failed to fetch guest cart during merge", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}

	if err == nil {
		var userItems []model.CartItem
		if err := tx.Where("cart_id = ?", userCart.ID).Find(&userItems).Error; err != nil {
			tx.Rollback()
			logger.Error("Failed to fetch user cart items during merge", err, map[string]interface{}{
				"user_id": userID,
			})
			return nil, err
		}

		for _, guestItem := range guestCart.Items {
			var target *model.CartItem
			for i := range userItems {
				if userItems[i].MatchesVariant(guestItem.ProductID, guestItem.Size, guestItem.Color) {
					target = &userItems[i]
					break
				}
			}

			if target != nil {
				target.Quantity += guestItem.Quantity
				if err := tx.Model(&model.CartItem{}).Where("id = ?", target.ID).
					Update("quantity", target.Quantity).Error; err != nil {
					tx.Rollback()
					logger.Error("Failed to merge cart item quantities", err, map[string]interface{}{
						"user_id": userID,
						"item_id": target.ID,
					})
					return nil, err
				}
				continue
			}

			moved := model.CartItem{
				CartID:    userCart.ID,
				ProductID: guestItem.ProductID,
				Quantity:  guestItem.Quantity,
				Size:      guestItem.Size,
				Color:     guestItem.Color,
			}
			if err := tx.Create(&moved).Error; err != nil {
				tx.Rollback()
				logger.Error("Failed to move guest cart item", err, map[string]interface{}{
					"user_id":    userID,
					"product_id": guestItem.ProductID,
				})
				return nil, err
			}
		}

		if err := tx.Where("cart_id = ?", guestCart.ID).Delete(&model.CartItem{}).Error; err != nil {
			tx.Rollback()
			logger.Error("Failed to clear guest cart after merge", err, map[string]interface{}{
				"user_id": userID,
			})
			return nil, err
		}
		if err := tx.Unscoped().Delete(&model.Cart{}, guestCart.ID).Error; err != nil {
			tx.Rollback()
			logger.Error("Failed to delete guest cart after merge", err, map[string]interface{}{
				"user_id": userID,
			})
			return nil, err
		}
	}

	// Marking the session merged rides the same transaction as the item
	// moves, which is what makes a replayed merge a no-op.
	record := model.MergedGuestSession{SessionID: guestToken, UserID: userID}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		logger.Error("Failed to record merged guest session", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		logger.Error("Failed to commit cart merge transaction", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}

	logger.Info("Guest cart merged successfully", map[string]interface{}{
		"user_id": userID,
		"cart_id": userCart.ID,
	})
	return s.cartRepo.FindByID(userCart.ID)
}
