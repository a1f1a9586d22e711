package entities

import "time"

// Booking links a member to a class. MemberID and ClassID are lookups by id,
// not ownership; the store owns every entity.
type Booking struct {
	SyncMeta

	MemberID string    `gorm:"column:member_id;type:uuid;not null;index:idx_bookings_member" json:"member_id"`
	ClassID  string    `gorm:"column:class_id;type:uuid;not null;index:idx_bookings_class" json:"class_id"`
	Status   string    `gorm:"column:status;type:varchar(30);not null;default:confirmed" json:"status"`
	BookedAt time.Time `gorm:"column:booked_at" json:"booked_at"`
}

func (Booking) TableName() string { return "bookings" }

func (Booking) EntityType() string { return EntityTypeBooking }
