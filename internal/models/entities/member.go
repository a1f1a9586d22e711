package entities

import "time"

// Member is a studio member
type Member struct {
	SyncMeta

	FirstName string     `gorm:"column:first_name;type:varchar(100);not null" json:"first_name"`
	LastName  string     `gorm:"column:last_name;type:varchar(100);not null" json:"last_name"`
	Email     string     `gorm:"column:email;type:varchar(255);index" json:"email"`
	Phone     string     `gorm:"column:phone;type:varchar(50)" json:"phone"`
	JoinedAt  *time.Time `gorm:"column:joined_at" json:"joined_at,omitempty"`
	IsActive  bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`
	Notes     string     `gorm:"column:notes;type:text" json:"notes,omitempty"`
}

func (Member) TableName() string { return "members" }

func (Member) EntityType() string { return EntityTypeMember }
