package models

import "time"

// StandalonePurchase grants permanent access to a single route.
type StandalonePurchase struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Email     string    `gorm:"column:email;not null;uniqueIndex:standalone_purchases_email_route_key,priority:1"`
	Route     string    `gorm:"column:route;not null;uniqueIndex:standalone_purchases_email_route_key,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (StandalonePurchase) TableName() string {
	return "standalone_purchases"
}
