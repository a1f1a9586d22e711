package entities

import "time"

// Payment records money received from a member
type Payment struct {
	SyncMeta

	MemberID       string     `gorm:"column:member_id;type:uuid;not null;index:idx_payments_member" json:"member_id"`
	SubscriptionID *string    `gorm:"column:subscription_id;type:uuid" json:"subscription_id,omitempty"`
	AmountCent     int64      `gorm:"column:amount_cent;not null" json:"amount_cent"`
	Currency       string     `gorm:"column:currency;type:varchar(3);not null;default:USD" json:"currency"`
	Method         string     `gorm:"column:method;type:varchar(30)" json:"method"`
	Status         string     `gorm:"column:status;type:varchar(30);not null;default:completed" json:"status"`
	PaidAt         *time.Time `gorm:"column:paid_at" json:"paid_at,omitempty"`
}

func (Payment) TableName() string { return "payments" }

func (Payment) EntityType() string { return EntityTypePayment }
