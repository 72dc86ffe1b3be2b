package models

import "time"

// PaymentStatus is the closed set of states a payment can be in. Gateway
// status vocabulary never escapes internal/paynow; everything downstream
// works with these four values only.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusPaid      PaymentStatus = "paid"
	StatusCancelled PaymentStatus = "cancelled"
	StatusFailed    PaymentStatus = "failed"
)

// Terminal reports whether no further transition is accepted from s.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusPaid, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Payment maps to the `payments` table. One row per payment attempt,
// retained forever for audit. Amounts are held in cents.
type Payment struct {
	ID                string        `gorm:"column:id;primaryKey;size:36" json:"id"`
	Reference         string        `gorm:"column:reference;size:64;uniqueIndex" json:"reference"`
	AmountCents       int64         `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Currency          string        `gorm:"column:currency;size:3" json:"currency"`
	Purpose           string        `gorm:"column:purpose;size:255" json:"purpose"`
	Method            string        `gorm:"column:method;size:32" json:"method"`
	Status            PaymentStatus `gorm:"column:status;size:16;index" json:"status"`
	ExternalPaymentID string        `gorm:"column:external_payment_id;size:64" json:"external_payment_id,omitempty"`
	RedirectURL       string        `gorm:"column:redirect_url;size:512" json:"redirect_url,omitempty"`
	PollURL           string        `gorm:"column:poll_url;size:512" json:"poll_url,omitempty"`
	Instructions      string        `gorm:"column:instructions;type:text" json:"instructions,omitempty"`
	GatewayResponse   string        `gorm:"column:gateway_response;type:text" json:"-"`
	FailureReason     string        `gorm:"column:failure_reason;size:512" json:"failure_reason,omitempty"`
	PaymentDate       *time.Time    `gorm:"column:payment_date" json:"payment_date,omitempty"`
	CreatedAt         time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
