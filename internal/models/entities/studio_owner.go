package entities

// StudioOwner is the operator account for a studio
type StudioOwner struct {
	SyncMeta

	Name       string `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Email      string `gorm:"column:email;type:varchar(255);uniqueIndex" json:"email"`
	StudioName string `gorm:"column:studio_name;type:varchar(150)" json:"studio_name"`
	Timezone   string `gorm:"column:timezone;type:varchar(64)" json:"timezone,omitempty"`
}

func (StudioOwner) TableName() string { return "studio_owners" }

func (StudioOwner) EntityType() string { return EntityTypeStudioOwner }
