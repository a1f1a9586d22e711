package entities

import "time"

// Subscription is a member's active plan
type Subscription struct {
	SyncMeta

	MemberID  string     `gorm:"column:member_id;type:uuid;not null;index:idx_subscriptions_member" json:"member_id"`
	Plan      string     `gorm:"column:plan;type:varchar(50);not null" json:"plan"`
	PriceCent int64      `gorm:"column:price_cent;not null;default:0" json:"price_cent"`
	Currency  string     `gorm:"column:currency;type:varchar(3);not null;default:USD" json:"currency"`
	StartsAt  time.Time  `gorm:"column:starts_at" json:"starts_at"`
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	AutoRenew bool       `gorm:"column:auto_renew;not null;default:false" json:"auto_renew"`
}

func (Subscription) TableName() string { return "subscriptions" }

func (Subscription) EntityType() string { return EntityTypeSubscription }
