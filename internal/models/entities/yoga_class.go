package entities

import "time"

// YogaClass is a scheduled class on the studio timetable
type YogaClass struct {
	SyncMeta

	Name        string    `gorm:"column:name;type:varchar(150);not null" json:"name"`
	Instructor  string    `gorm:"column:instructor;type:varchar(100)" json:"instructor"`
	Level       string    `gorm:"column:level;type:varchar(30)" json:"level"`
	Capacity    int       `gorm:"column:capacity;not null;default:0" json:"capacity"`
	StartsAt    time.Time `gorm:"column:starts_at;index" json:"starts_at"`
	DurationMin int       `gorm:"column:duration_min;not null;default:60" json:"duration_min"`
	Room        string    `gorm:"column:room;type:varchar(50)" json:"room,omitempty"`
}

func (YogaClass) TableName() string { return "yoga_classes" }

func (YogaClass) EntityType() string { return EntityTypeYogaClass }
