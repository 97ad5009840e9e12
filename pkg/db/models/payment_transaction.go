package models

import "time"

// PaymentTransaction is the write-once marker keyed by the encrypted redirect token.
type PaymentTransaction struct {
	ID            string    `gorm:"column:id;primaryKey"`
	TransactionID string    `gorm:"column:transaction_id;not null"`
	Email         string    `gorm:"column:email;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (PaymentTransaction) TableName() string {
	return "paypal_transactions"
}
