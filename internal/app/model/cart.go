package model

import (
	"time"

	"gorm.io/gorm"
)

// Cart belongs to exactly one actor: a registered user (UserID set) or an
// anonymous guest session (GuestToken set). Never both, never neither once
// created.
type Cart struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	UserID     *uint          `gorm:"uniqueIndex" json:"user_id,omitempty"`
	GuestToken *string        `gorm:"uniqueIndex;type:varchar(64)" json:"guest_token,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Items []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (Cart) TableName() string {
	return "carts"
}

// CartItem lines are unique per (product, size, color) within a cart;
// adding a matching tuple increments the quantity instead of inserting.
type CartItem struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CartID    uint           `gorm:"not null;index" json:"cart_id"`
	ProductID uint           `gorm:"not null;index" json:"product_id"`
	Quantity  int            `gorm:"not null;default:1" json:"quantity"`
	Size      string         `gorm:"type:varchar(20)" json:"size,omitempty"`
	Color     string         `gorm:"type:varchar(30)" json:"color,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Cart    Cart    `gorm:"foreignKey:CartID" json:"-"`
	Product Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

// MatchesVariant reports whether the line holds the same product variant.
func (i CartItem) MatchesVariant(productID uint, size, color string) bool {
	return i.ProductID == productID && i.Size == size && i.Color == color
}

// MergedGuestSession records a guest cart session that has already been
// merged into a user cart. The row is written inside the merge transaction,
// so a replayed merge for the same session is a no-op.
type MergedGuestSession struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	SessionID string    `gorm:"uniqueIndex;not null;type:varchar(64)" json:"session_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (MergedGuestSession) TableName() string {
	return "merged_guest_sessions"
}
