package models

import "time"

// InviteKind discriminates the three invite variants sharing one table.
type InviteKind string

const (
	InviteKindTeacher InviteKind = "teacher"
	InviteKindStudent InviteKind = "student"
	InviteKindClass   InviteKind = "class"
)

// Default invite lifetimes applied when the issuer does not specify one.
const (
	TeacherInviteExpiry = 14 * 24 * time.Hour
	StudentInviteExpiry = 30 * 24 * time.Hour
	ClassInviteExpiry   = 30 * 24 * time.Hour
)

// Invite is a bounded-use, time-limited authorization token. Teacher and
// student invites are bound to an email and single-use; class invites may be
// redeemed up to MaxUses times by distinct students. Rows are deactivated,
// never deleted, so redemption history stays auditable.
type Invite struct {
	BaseModel

	Code        string     `gorm:"uniqueIndex;not null" json:"code"`
	Kind        InviteKind `gorm:"not null;index" json:"kind"`
	Email       string     `gorm:"index" json:"email,omitempty"`
	ClassID     *string    `gorm:"type:uuid;index" json:"class_id,omitempty"`
	RoleGranted Role       `gorm:"not null" json:"role_granted"`
	Track       *Track     `json:"track,omitempty"`
	MaxUses     int        `gorm:"not null;default:1" json:"max_uses"`
	UsedCount   int        `gorm:"not null;default:0" json:"used_count"`
	ExpiresAt   time.Time  `gorm:"index;not null" json:"expires_at"`
	Active      bool       `gorm:"not null;default:true" json:"active"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	CreatedBy   string     `gorm:"type:uuid;index" json:"created_by"`

	Class *Class `gorm:"constraint:OnDelete:SET NULL" json:"class,omitempty"`
}

// Redeemable reports whether the invite can still be consumed at the given
// instant. This is the invariant re-checked inside the redemption transaction.
func (i *Invite) Redeemable(now time.Time) bool {
	return i.Active &&
		i.RevokedAt == nil &&
		now.Before(i.ExpiresAt) &&
		i.UsedCount < i.MaxUses
}
