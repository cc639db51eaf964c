package models

import "gorm.io/datatypes"

// OnboardingProfile stores the generated learner profile produced from a
// student's onboarding survey, along with the raw answers for audit.
type OnboardingProfile struct {
	BaseModel

	UserID  string         `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Survey  datatypes.JSON `gorm:"not null" json:"survey"`
	Summary string         `gorm:"type:text" json:"summary"`
	Track   Track          `gorm:"not null" json:"track"`

	// Generator records which backend produced the summary ("openai" model
	// name, or "static" for the deterministic fallback).
	Generator string `json:"generator"`

	Profile *Profile `gorm:"foreignKey:UserID" json:"-"`
}
