package model

import (
	"time"

	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentInfo is one-to-one with Order. Amount always equals the order's
// TotalAmount; gateway identifiers are filled in once the gateway responds.
type PaymentInfo struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	OrderID        uint           `gorm:"uniqueIndex;not null" json:"order_id"`
	Amount         float64        `gorm:"not null" json:"amount"`
	Status         PaymentStatus  `gorm:"type:varchar(20);default:'pending'" json:"status"`
	Provider       string         `gorm:"type:varchar(50)" json:"provider,omitempty"`
	TransactionID  string         `gorm:"type:varchar(64);index" json:"transaction_id,omitempty"`
	GatewayOrderID string         `gorm:"type:varchar(64)" json:"gateway_order_id,omitempty"`
	PaidAt         *time.Time     `json:"paid_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Order Order `gorm:"foreignKey:OrderID" json:"-"`
}

func (PaymentInfo) TableName() string {
	return "payment_infos"
}
