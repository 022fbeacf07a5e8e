package checkout

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/namestrings/checkout-api/cartstore"
	"github.com/namestrings/checkout-api/models"
)

// Session statuses pushed to subscribers as the flow progresses.
const (
	StatusAwaitingGateway     = "awaiting_gateway"
	StatusPaymentFailed       = "payment_failed"
	StatusGatewayCancelled    = "gateway_cancelled"
	StatusAwaitingProof       = "awaiting_proof"
	StatusSettled             = "settled"
	StatusPendingVerification = "pending_verification"
)

// Event is a step/status transition pushed to websocket subscribers.
type Event struct {
	SessionID string              `json:"session_id"`
	Step      models.CheckoutStep `json:"step"`
	Status    string              `json:"status"`
	OrderID   string              `json:"order_id,omitempty"`
}

// Session is one checkout attempt. It is transient: sessions live in
// memory only and do not survive a restart. The flow is forward-only;
// once an order exists the details step can no longer be re-entered.
// Fields are guarded by mu; JSON output goes through MarshalJSON.
type Session struct {
	ID            string
	BuyerID       string
	Step          models.CheckoutStep
	Shipping      models.ShippingInfo
	Contact       models.ContactInfo
	PaymentMethod models.PaymentMethod

	AppliedCoupon *models.AppliedCoupon
	// CouponNotice carries the dismissible rejection message when a
	// coupon was entered but not accepted.
	CouponNotice string

	// OrderID is set exactly once, when the remote order is created, and
	// is immutable afterwards. OrderRef is the client-generated
	// idempotency reference sent with that create call.
	OrderID  string
	OrderRef string

	Totals  Totals
	Gateway *GatewaySession

	ProofReference string
	// ProofNotice records a transient proof-submission failure. The
	// session still confirms; the backend reconciles asynchronously.
	ProofNotice string

	// PaymentState is meaningful once Step is confirmation: settled for
	// COD and verified gateway payments, pending verification for
	// manual transfers.
	PaymentState models.PaymentState

	mu          sync.Mutex
	cart        *cartstore.Store
	cartCleared bool
	confirmedAt time.Time
	subscribers map[chan Event]struct{}
}

// sessionView mirrors Session's exported fields. Serialization goes
// through a copy taken under the session lock, never the live struct:
// the orchestrator mutates sessions while HTTP handlers render them.
type sessionView struct {
	ID            string               `json:"id"`
	BuyerID       string               `json:"buyer_id"`
	Step          models.CheckoutStep  `json:"step"`
	Shipping      models.ShippingInfo  `json:"shipping"`
	Contact       models.ContactInfo   `json:"contact"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`

	AppliedCoupon *models.AppliedCoupon `json:"applied_coupon,omitempty"`
	CouponNotice  string                `json:"coupon_notice,omitempty"`

	OrderID  string `json:"order_id,omitempty"`
	OrderRef string `json:"order_ref,omitempty"`

	Totals  Totals          `json:"totals"`
	Gateway *GatewaySession `json:"gateway,omitempty"`

	ProofReference string `json:"proof_reference,omitempty"`
	ProofNotice    string `json:"proof_notice,omitempty"`

	PaymentState models.PaymentState `json:"payment_state,omitempty"`
}

func (s *Session) view() sessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := sessionView{
		ID:             s.ID,
		BuyerID:        s.BuyerID,
		Step:           s.Step,
		Shipping:       s.Shipping,
		Contact:        s.Contact,
		PaymentMethod:  s.PaymentMethod,
		CouponNotice:   s.CouponNotice,
		OrderID:        s.OrderID,
		OrderRef:       s.OrderRef,
		Totals:         s.Totals,
		ProofReference: s.ProofReference,
		ProofNotice:    s.ProofNotice,
		PaymentState:   s.PaymentState,
	}
	if s.AppliedCoupon != nil {
		coupon := *s.AppliedCoupon
		v.AppliedCoupon = &coupon
	}
	if s.Gateway != nil {
		gw := *s.Gateway
		v.Gateway = &gw
	}
	return v
}

// MarshalJSON renders a consistent snapshot of the session.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.view())
}

// Subscribe registers a listener for this session's transitions. The
// returned cancel func must be called when the listener goes away.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, 8)
	if s.subscribers == nil {
		s.subscribers = make(map[chan Event]struct{})
	}
	s.subscribers[ch] = struct{}{}

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

// emit must be called with s.mu held. Slow subscribers drop events
// rather than block the state machine.
func (s *Session) emit(status string) {
	ev := Event{SessionID: s.ID, Step: s.Step, Status: status, OrderID: s.OrderID}
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
