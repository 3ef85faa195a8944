package model

import (
	"time"

	"gorm.io/gorm"
)

type OrderStatus string
type PaymentMethod string

const (
	OrderStatusPending    OrderStatus = "pending"    // placed, awaiting payment or confirmation
	OrderStatusProcessing OrderStatus = "processing" // accepted by fulfillment
	OrderStatusShipped    OrderStatus = "shipped"    // handed to carrier
	OrderStatusPaid       OrderStatus = "paid"       // payment confirmed
	OrderStatusCompleted  OrderStatus = "completed"  // delivered and settled
	OrderStatusCancelled  OrderStatus = "cancelled"  // aborted, stock restored

	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// orderStatusTransitions is the closed transition table. Statuses are not
// free-form strings: an update must follow an edge here, which rules out
// things like completed -> pending or cancelled -> paid.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusPaid, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusPaid, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusPaid, OrderStatusCompleted},
	OrderStatusPaid:       {OrderStatusShipped, OrderStatusCompleted},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

// Valid reports whether s is one of the enumerated order statuses.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatusTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Order struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	OrderNumber   string         `gorm:"uniqueIndex;not null;type:varchar(40)" json:"order_number"`
	UserID        *uint          `gorm:"index" json:"user_id,omitempty"` // nil for guest orders
	FullName      string         `gorm:"not null" json:"full_name"`
	Email         string         `gorm:"not null" json:"email"`
	Phone         string         `gorm:"not null" json:"phone"`
	Address       string         `gorm:"type:text;not null" json:"address"`
	City          string         `gorm:"not null" json:"city"`
	Country       string         `json:"country"`
	Notes         string         `gorm:"type:text" json:"notes"`
	TotalAmount   float64        `gorm:"not null" json:"total_amount"`
	Status        OrderStatus    `gorm:"type:varchar(20);default:'pending'" json:"status"`
	PaymentMethod PaymentMethod  `gorm:"type:varchar(20);default:'card'" json:"payment_method"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User       *User        `gorm:"foreignKey:UserID" json:"-"`
	OrderItems []OrderItem  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"order_items,omitempty"`
	Payment    *PaymentInfo `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"payment,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem snapshots the unit price at order time; later product price
// changes never touch existing orders.
type OrderItem struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	OrderID   uint           `gorm:"not null;index" json:"order_id"`
	ProductID uint           `gorm:"not null;index" json:"product_id"`
	Quantity  int            `gorm:"not null" json:"quantity"`
	Price     float64        `gorm:"not null" json:"price"`
	Size      string         `gorm:"type:varchar(20)" json:"size,omitempty"`
	Color     string         `gorm:"type:varchar(30)" json:"color,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Order   Order   `gorm:"foreignKey:OrderID" json:"-"`
	Product Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
