package checkout

import (
	"context"

	"github.com/namestrings/checkout-api/cartstore"
	"github.com/namestrings/checkout-api/models"
)

// CreateOrderRequest is the payload sent to the remote Order Service.
// OrderRef is generated client-side and doubles as the idempotency key.
type CreateOrderRequest struct {
	OrderRef      string
	Lines         []cartstore.Line
	Shipping      models.ShippingInfo
	Contact       models.ContactInfo
	PaymentMethod models.PaymentMethod
	CouponCode    string
	Totals        Totals
}

// OrderService is the remote order backend. ValidateCoupon returns
// ErrCouponRejected (possibly wrapped) when the code is not valid for
// the given subtotal.
type OrderService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (orderID string, err error)
	SubmitPaymentProof(ctx context.Context, orderID, proofRef string) error
	ValidateCoupon(ctx context.Context, code string, subtotal int64) (models.AppliedCoupon, error)
}

// GatewaySession describes one hosted payment attempt. The UI hands
// these fields to the gateway's hosted page.
type GatewaySession struct {
	GatewayOrderRef string `json:"gateway_order_ref"`
	KeyID           string `json:"key_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// GatewayCallback is the completion notification relayed by the UI after
// the hosted page closes. It is never trusted on its own; Verify must
// confirm it server-side.
type GatewayCallback struct {
	GatewayOrderRef string `json:"gateway_order_ref"`
	PaymentRef      string `json:"payment_ref"`
	Signature       string `json:"signature"`
}

// PaymentGateway is the hosted gateway adapter. Verify returns
// ErrPaymentFailed (possibly wrapped) when the notification does not
// check out.
type PaymentGateway interface {
	CreateSession(ctx context.Context, orderID string, amount int64, contact models.ContactInfo) (GatewaySession, error)
	Verify(ctx context.Context, callback GatewayCallback) error
}
