package models

// ClassMembership joins one student profile to one class. The composite
// unique index makes re-joining idempotent at the storage layer.
type ClassMembership struct {
	BaseModel

	ClassID string `gorm:"type:uuid;uniqueIndex:idx_class_member;not null" json:"class_id"`
	UserID  string `gorm:"type:uuid;uniqueIndex:idx_class_member;not null" json:"user_id"`
	Role    string `gorm:"not null;default:student" json:"role"`

	Class   *Class   `gorm:"foreignKey:ClassID" json:"class,omitempty"`
	Profile *Profile `gorm:"foreignKey:UserID" json:"profile,omitempty"`
}
