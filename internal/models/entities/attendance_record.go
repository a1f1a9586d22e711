package entities

import "time"

// AttendanceRecord marks a member as checked in to a class
type AttendanceRecord struct {
	SyncMeta

	BookingID   string    `gorm:"column:booking_id;type:uuid;not null;index:idx_attendance_booking" json:"booking_id"`
	MemberID    string    `gorm:"column:member_id;type:uuid;not null;index:idx_attendance_member" json:"member_id"`
	ClassID     string    `gorm:"column:class_id;type:uuid;not null" json:"class_id"`
	CheckedInAt time.Time `gorm:"column:checked_in_at" json:"checked_in_at"`
}

func (AttendanceRecord) TableName() string { return "attendance_records" }

func (AttendanceRecord) EntityType() string { return EntityTypeAttendanceRecord }
