package models

import "time"

// Role enumerates platform-wide roles carried by a Profile.
type Role string

const (
	RoleStudent    Role = "student"
	RoleTeacher    Role = "teacher"
	RoleSuperadmin Role = "superadmin"
)

// Rank orders roles so a redemption can refuse silent downgrades.
func (r Role) Rank() int {
	switch r {
	case RoleSuperadmin:
		return 3
	case RoleTeacher:
		return 2
	case RoleStudent:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleSuperadmin
}

// Track classifies a student's learning track, set once during onboarding.
type Track string

const (
	TrackGeneral  Track = "general"
	TrackBusiness Track = "business"
)

// Profile is the per-identity record carrying role and account metadata.
// Its ID equals the owning Account's ID (one row per authenticated identity).
type Profile struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	Role      Role   `gorm:"not null;index" json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Track     *Track `json:"track,omitempty"`

	// PasswordChanged tracks whether a teacher replaced the provisioned
	// temporary credential. Meaningless for other roles.
	PasswordChanged bool `gorm:"default:false" json:"password_changed"`
	IsActive        bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
