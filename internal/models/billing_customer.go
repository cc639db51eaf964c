package models

import "time"

// BillingCustomer maps an account to its Stripe customer and current plan.
type BillingCustomer struct {
	BaseModel

	UserID           string     `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	StripeCustomerID string     `gorm:"uniqueIndex;not null" json:"stripe_customer_id"`
	Plan             string     `json:"plan"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`

	Profile *Profile `gorm:"foreignKey:UserID" json:"-"`
}
