package models

// CreatePaymentRequest is the body of POST /payments.
type CreatePaymentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Purpose     string `json:"purpose"`
	Method      string `json:"method"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// CreatePaymentResponse is returned to the collaborator that started a
// payment. RedirectURL is set for standard checkout, Instructions for
// express checkout.
type CreatePaymentResponse struct {
	PaymentID    string `json:"payment_id"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	PollURL      string `json:"poll_url,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// PaymentStatusResponse is the projection served by GET /payments/:id/status.
type PaymentStatusResponse struct {
	PaymentID         string `json:"payment_id"`
	Reference         string `json:"reference"`
	Status            string `json:"status"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	PaymentDate       string `json:"payment_date,omitempty"`
	FailureReason     string `json:"failure_reason,omitempty"`
}

// CallbackResponse acknowledges a gateway webhook. Rejection detail is
// logged server-side, never returned to the gateway.
type CallbackResponse struct {
	Success bool `json:"success"`
}
