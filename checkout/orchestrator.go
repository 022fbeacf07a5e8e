package checkout

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/namestrings/checkout-api/cartstore"
	"github.com/namestrings/checkout-api/models"
)

// DetailsInput is everything the details form submits in one go.
type DetailsInput struct {
	Shipping      models.ShippingInfo
	Contact       models.ContactInfo
	PaymentMethod string
	CouponCode    string
}

// Orchestrator drives checkout sessions through the forward-only
// details -> payment -> confirmation flow. It owns the session registry
// and is the single caller of cart Clear.
type Orchestrator struct {
	orders  OrderService
	gateway PaymentGateway
	pricing Pricing

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewOrchestrator(orders OrderService, gateway PaymentGateway, pricing Pricing) *Orchestrator {
	return &Orchestrator{
		orders:   orders,
		gateway:  gateway,
		pricing:  pricing,
		sessions: make(map[string]*Session),
	}
}

// Begin opens a session over the buyer's cart. The cart must be
// non-empty; the session starts at the details step.
func (o *Orchestrator) Begin(cart *cartstore.Store, buyerID string) (*Session, error) {
	if cart.Snapshot().Count == 0 {
		return nil, ErrEmptyCart
	}

	session := &Session{
		ID:      uuid.NewString(),
		BuyerID: buyerID,
		Step:    models.StepDetails,
		cart:    cart,
	}

	o.mu.Lock()
	o.sessions[session.ID] = session
	o.mu.Unlock()
	return session, nil
}

// PruneTerminal drops confirmed sessions that reached the terminal step
// before cutoff, so the registry does not grow for the process lifetime.
// Recently confirmed sessions stay readable for the confirmation page.
func (o *Orchestrator) PruneTerminal(cutoff time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	pruned := 0
	for id, session := range o.sessions {
		session.mu.Lock()
		expired := session.Step == models.StepConfirmation && session.confirmedAt.Before(cutoff)
		session.mu.Unlock()
		if expired {
			delete(o.sessions, id)
			pruned++
		}
	}
	return pruned
}

func (o *Orchestrator) Session(id string) (*Session, error) {
	o.mu.RLock()
	session, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// SubmitDetails validates the form, applies the coupon if one was
// entered, creates the remote order (exactly once per session, however
// many times this is retried) and branches on the payment method.
func (o *Orchestrator) SubmitDetails(ctx context.Context, sessionID string, input DetailsInput) (*Session, error) {
	session, err := o.Session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.Step != models.StepDetails {
		return session, ErrInvalidTransition
	}

	if session.OrderID == "" {
		if err := o.prepareOrder(ctx, session, input); err != nil {
			return session, err
		}
	}
	// A session with an order already created skips straight to the
	// payment branch: totals and buyer details were locked in when the
	// order was made, and re-submitting must reuse the same order.

	switch session.PaymentMethod {
	case models.PaymentMethodCOD:
		o.confirm(session, models.PaymentStateSettled)
		return session, nil

	case models.PaymentMethodHostedGateway:
		// One open gateway session at a time per order. A retry only
		// opens a new one after the previous was cancelled or failed
		// verification, both of which reset session.Gateway.
		if session.Gateway != nil {
			return session, ErrInvalidTransition
		}
		gw, err := o.gateway.CreateSession(ctx, session.OrderID, session.Totals.Total, session.Contact)
		if err != nil {
			return session, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		session.Gateway = &gw
		session.emit(StatusAwaitingGateway)
		return session, nil

	case models.PaymentMethodManualTransfer:
		session.Step = models.StepPayment
		session.emit(StatusAwaitingProof)
		return session, nil
	}

	return session, fmt.Errorf("unhandled payment method %q", session.PaymentMethod)
}

// prepareOrder runs the first-submission work: validation, coupon,
// totals, remote order creation. Called with the session lock held and
// only while no order exists yet.
func (o *Orchestrator) prepareOrder(ctx context.Context, session *Session, input DetailsInput) error {
	method, err := models.MapPaymentMethod(input.PaymentMethod)
	if err != nil {
		return &ValidationError{Field: "payment_method", Reason: err.Error()}
	}
	if err := validateDetails(input.Shipping, input.Contact); err != nil {
		return err
	}

	snapshot := session.cart.Snapshot()
	if snapshot.Count == 0 {
		return ErrEmptyCart
	}

	session.Shipping = input.Shipping
	session.Contact = input.Contact
	session.PaymentMethod = method

	var discount int64
	if code := strings.TrimSpace(input.CouponCode); code != "" {
		coupon, err := o.orders.ValidateCoupon(ctx, code, snapshot.Subtotal)
		if err != nil {
			// Coupon rejection never blocks checkout, it just drops
			// the discount and surfaces a dismissible notice.
			session.AppliedCoupon = nil
			session.CouponNotice = couponNotice(code, err)
			log.Printf("coupon %q rejected for session %s: %v", code, session.ID, err)
		} else {
			session.AppliedCoupon = &coupon
			session.CouponNotice = ""
			discount = coupon.DiscountAmount
		}
	}

	session.Totals = o.pricing.Compute(snapshot.Subtotal, discount)

	if session.OrderRef == "" {
		session.OrderRef = generateOrderRef()
	}

	req := CreateOrderRequest{
		OrderRef:      session.OrderRef,
		Lines:         snapshot.Lines,
		Shipping:      session.Shipping,
		Contact:       session.Contact,
		PaymentMethod: session.PaymentMethod,
		Totals:        session.Totals,
	}
	if session.AppliedCoupon != nil {
		req.CouponCode = session.AppliedCoupon.Code
	}

	orderID, err := o.orders.CreateOrder(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOrderCreation, err)
	}
	session.OrderID = orderID
	return nil
}

// CompleteGatewayPayment handles the hosted gateway's completion
// notification. The callback is verified server-side before it counts;
// a rejected or failed callback leaves the session at the details step
// with the order retained for retry.
func (o *Orchestrator) CompleteGatewayPayment(ctx context.Context, sessionID string, callback GatewayCallback) (*Session, error) {
	session, err := o.Session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.Step != models.StepDetails || session.PaymentMethod != models.PaymentMethodHostedGateway || session.Gateway == nil {
		return session, ErrInvalidTransition
	}
	if callback.GatewayOrderRef != session.Gateway.GatewayOrderRef {
		return session, fmt.Errorf("%w: callback order reference does not match session", ErrPaymentFailed)
	}

	if err := o.gateway.Verify(ctx, callback); err != nil {
		session.Gateway = nil
		session.emit(StatusPaymentFailed)
		return session, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	o.confirm(session, models.PaymentStateSettled)
	return session, nil
}

// CancelGatewayPayment records that the buyer dismissed the hosted
// gateway. Not an error: the session stays at details with its order
// intact, so a retry reuses the same order instead of creating another.
func (o *Orchestrator) CancelGatewayPayment(sessionID string) (*Session, error) {
	session, err := o.Session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.Step != models.StepDetails || session.PaymentMethod != models.PaymentMethodHostedGateway {
		return session, ErrInvalidTransition
	}
	session.Gateway = nil
	session.emit(StatusGatewayCancelled)
	return session, nil
}

// SubmitProof attaches the manual-transfer proof reference to the order
// and advances to confirmation. A transient submission failure is logged
// and noted but does not trap the buyer at the payment step: the backend
// reconciles pending verifications asynchronously.
//
// TODO: revisit the swallow-and-advance behavior with the order backend
// team; a permanently failing submit currently looks identical to a
// successful one from the buyer's side.
func (o *Orchestrator) SubmitProof(ctx context.Context, sessionID, proofRef string) (*Session, error) {
	session, err := o.Session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.Step != models.StepPayment {
		return session, ErrInvalidTransition
	}
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return session, &ValidationError{Field: "proof_reference", Reason: "must not be empty"}
	}

	session.ProofReference = proofRef
	if err := o.orders.SubmitPaymentProof(ctx, session.OrderID, proofRef); err != nil {
		session.ProofNotice = "proof submission is being retried by the backend"
		log.Printf("proof submission failed for order %s: %v", session.OrderID, err)
	}

	o.confirm(session, models.PaymentStatePendingVerification)
	return session, nil
}

// confirm is the single place a session reaches the terminal step and
// the single caller of cart Clear, which runs exactly once per session.
// Called with the session lock held.
func (o *Orchestrator) confirm(session *Session, state models.PaymentState) {
	if !session.cartCleared {
		session.cartCleared = true
		if err := session.cart.Clear(); err != nil {
			// The in-memory cart is already empty; only the durable
			// tombstone write failed. The order exists remotely, so
			// confirmation proceeds.
			log.Printf("cart clear failed for session %s: %v", session.ID, err)
		}
	}
	session.Step = models.StepConfirmation
	session.PaymentState = state
	session.confirmedAt = time.Now()
	if state == models.PaymentStateSettled {
		session.emit(StatusSettled)
	} else {
		session.emit(StatusPendingVerification)
	}
}

var postalCodePattern = regexp.MustCompile(`^[0-9]{6}$`)
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validateDetails(shipping models.ShippingInfo, contact models.ContactInfo) error {
	required := []struct{ field, value string }{
		{"email", contact.Email},
		{"phone", contact.Phone},
		{"first_name", shipping.FirstName},
		{"last_name", shipping.LastName},
		{"address", shipping.Address},
		{"city", shipping.City},
		{"state", shipping.State},
		{"postal_code", shipping.PostalCode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.field, Reason: "is required"}
		}
	}
	if !emailPattern.MatchString(contact.Email) {
		return &ValidationError{Field: "email", Reason: "is not a valid email address"}
	}
	if !postalCodePattern.MatchString(shipping.PostalCode) {
		return &ValidationError{Field: "postal_code", Reason: "must be exactly 6 digits"}
	}
	return nil
}

func couponNotice(code string, err error) string {
	return fmt.Sprintf("Coupon %s could not be applied: %v", strings.ToUpper(code), err)
}

// generateOrderRef builds the idempotency reference sent with the
// create-order call, e.g. 20250908130500-<uuid>.
func generateOrderRef() string {
	return time.Now().Format("20060102150405") + "-" + uuid.NewString()
}
