package models

// Class groups students under an owning teacher.
type Class struct {
	BaseModel

	Name     string `gorm:"not null" json:"name"`
	Subject  string `json:"subject"`
	OwnerID  string `gorm:"type:uuid;index;not null" json:"owner_id"`
	Archived bool   `gorm:"default:false" json:"archived"`

	Owner       *Profile          `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Memberships []ClassMembership `gorm:"foreignKey:ClassID" json:"-"`
}
