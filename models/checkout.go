package models

import (
	"errors"
	"strings"
)

type CheckoutStep string
type PaymentMethod string
type PaymentState string

const (
	// Checkout steps (forward-only)
	StepDetails      CheckoutStep = "details"      // Collecting shipping/contact info
	StepPayment      CheckoutStep = "payment"      // Awaiting manual transfer proof
	StepConfirmation CheckoutStep = "confirmation" // Terminal

	// Payment methods
	PaymentMethodCOD            PaymentMethod = "cod"             // Cash on delivery
	PaymentMethodHostedGateway  PaymentMethod = "hosted_gateway"  // Redirect/callback gateway
	PaymentMethodManualTransfer PaymentMethod = "manual_transfer" // Bank/UPI transfer with proof

	// Payment states carried into the confirmation step
	PaymentStateSettled             PaymentState = "settled"              // COD or verified gateway payment
	PaymentStatePendingVerification PaymentState = "pending_verification" // Manual transfer, backend reconciles
)

// MapPaymentMethod converts a request string to a PaymentMethod.
func MapPaymentMethod(method string) (PaymentMethod, error) {
	switch strings.ToLower(method) {
	case string(PaymentMethodCOD):
		return PaymentMethodCOD, nil
	case string(PaymentMethodHostedGateway):
		return PaymentMethodHostedGateway, nil
	case string(PaymentMethodManualTransfer):
		return PaymentMethodManualTransfer, nil
	default:
		return "", errors.New("invalid payment method")
	}
}

type ShippingInfo struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Address    string `json:"address"`
	Apartment  string `json:"apartment"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

type ContactInfo struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type AppliedCoupon struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
}
