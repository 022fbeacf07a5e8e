package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/namestrings/checkout-api/cartstore"
	"github.com/namestrings/checkout-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCartRepository struct {
	m          sync.Mutex
	saved      map[string][]cartstore.Line
	emptySaves int
}

func newMemoryCartRepository() *memoryCartRepository {
	return &memoryCartRepository{saved: make(map[string][]cartstore.Line)}
}

func (m *memoryCartRepository) Load(key string) ([]cartstore.Line, bool, error) {
	m.m.Lock()
	defer m.m.Unlock()
	lines, ok := m.saved[key]
	return lines, ok, nil
}

func (m *memoryCartRepository) Save(key string, lines []cartstore.Line) error {
	m.m.Lock()
	defer m.m.Unlock()
	if len(lines) == 0 {
		m.emptySaves++
	}
	m.saved[key] = lines
	return nil
}

func (m *memoryCartRepository) PruneStale(time.Time) (int64, error) { return 0, nil }

type mockOrderService struct {
	m           sync.Mutex
	createCalls int
	createErr   error
	lastCreate  CreateOrderRequest

	coupon    models.AppliedCoupon
	couponErr error

	proofCalls []string
	proofErr   error
}

func (s *mockOrderService) CreateOrder(_ context.Context, req CreateOrderRequest) (string, error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.createCalls++
	s.lastCreate = req
	if s.createErr != nil {
		return "", s.createErr
	}
	return fmt.Sprintf("order-%d", s.createCalls), nil
}

func (s *mockOrderService) SubmitPaymentProof(_ context.Context, orderID, proofRef string) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.proofCalls = append(s.proofCalls, orderID+":"+proofRef)
	return s.proofErr
}

func (s *mockOrderService) ValidateCoupon(_ context.Context, code string, _ int64) (models.AppliedCoupon, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.couponErr != nil {
		return models.AppliedCoupon{}, s.couponErr
	}
	return s.coupon, nil
}

type mockGateway struct {
	m         sync.Mutex
	sessions  int
	createErr error
	verifyErr error
}

func (g *mockGateway) CreateSession(_ context.Context, orderID string, amount int64, _ models.ContactInfo) (GatewaySession, error) {
	g.m.Lock()
	defer g.m.Unlock()
	if g.createErr != nil {
		return GatewaySession{}, g.createErr
	}
	g.sessions++
	return GatewaySession{
		GatewayOrderRef: fmt.Sprintf("gw-%s-%d", orderID, g.sessions),
		KeyID:           "key_test",
		Amount:          amount,
		Currency:        "INR",
	}, nil
}

func (g *mockGateway) Verify(context.Context, GatewayCallback) error {
	g.m.Lock()
	defer g.m.Unlock()
	return g.verifyErr
}

var testProduct = cartstore.Product{ID: "prod-a", Name: "Name Necklace", Image: "a.jpg", UnitPrice: 600}

func validDetails(method string) DetailsInput {
	return DetailsInput{
		Shipping: models.ShippingInfo{
			FirstName:  "Asha",
			LastName:   "Iyer",
			Address:    "12 MG Road",
			City:       "Bengaluru",
			State:      "Karnataka",
			PostalCode: "560001",
		},
		Contact: models.ContactInfo{
			Email: "asha@example.com",
			Phone: "+919876543210",
		},
		PaymentMethod: method,
	}
}

func newFixture(t *testing.T) (*Orchestrator, *mockOrderService, *mockGateway, *cartstore.Store, *memoryCartRepository) {
	t.Helper()
	repo := newMemoryCartRepository()
	cart, err := cartstore.Open(repo, "buyer-1")
	require.NoError(t, err)

	orders := &mockOrderService{}
	gw := &mockGateway{}
	orchestrator := NewOrchestrator(orders, gw, Pricing{FreeShippingThreshold: 1000, ShippingFee: 99})
	return orchestrator, orders, gw, cart, repo
}

func TestShippingCostStepFunction(t *testing.T) {
	pricing := Pricing{FreeShippingThreshold: 1000, ShippingFee: 99}

	assert.Equal(t, int64(99), pricing.ShippingCost(500))
	assert.Equal(t, int64(99), pricing.ShippingCost(999))
	assert.Equal(t, int64(0), pricing.ShippingCost(1000))
	assert.Equal(t, int64(0), pricing.ShippingCost(1200))
}

func TestComputeTotals(t *testing.T) {
	pricing := Pricing{FreeShippingThreshold: 1000, ShippingFee: 99}

	withCoupon := pricing.Compute(1200, 300)
	assert.Equal(t, int64(900), withCoupon.Total)
	assert.Equal(t, int64(0), withCoupon.Shipping)

	noCoupon := pricing.Compute(500, 0)
	assert.Equal(t, int64(599), noCoupon.Total)
	assert.Equal(t, int64(99), noCoupon.Shipping)
}

func TestBeginRequiresNonEmptyCart(t *testing.T) {
	orchestrator, _, _, cart, _ := newFixture(t)

	_, err := orchestrator.Begin(cart, "buyer-1")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCODHappyPath(t *testing.T) {
	orchestrator, orders, _, cart, _ := newFixture(t)

	require.NoError(t, cart.Add(testProduct, 1, nil))
	require.NoError(t, cart.Add(testProduct, 1, nil))
	snap := cart.Snapshot()
	require.Len(t, snap.Lines, 1)
	require.Equal(t, 2, snap.Lines[0].Quantity)

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("cod"))
	require.NoError(t, err)

	assert.Equal(t, models.StepConfirmation, session.Step)
	assert.Equal(t, models.PaymentStateSettled, session.PaymentState)
	assert.NotEmpty(t, session.OrderID)
	assert.Equal(t, 1, orders.createCalls)
	assert.Empty(t, cart.Snapshot().Lines)

	// Subtotal 1200 clears the free-shipping threshold
	assert.Equal(t, int64(1200), session.Totals.Subtotal)
	assert.Equal(t, int64(1200), session.Totals.Total)
}

func TestValidationBlocksDetails(t *testing.T) {
	orchestrator, orders, _, cart, _ := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	input := validDetails("cod")
	input.Shipping.PostalCode = "5600" // too short
	_, err = orchestrator.SubmitDetails(context.Background(), session.ID, input)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "postal_code", validation.Field)
	assert.Equal(t, 0, orders.createCalls)
	assert.Equal(t, models.StepDetails, session.Step)
	assert.NotEmpty(t, cart.Snapshot().Lines)

	input.Shipping.PostalCode = "abc123"
	_, err = orchestrator.SubmitDetails(context.Background(), session.ID, input)
	require.ErrorAs(t, err, &validation)

	input.Contact.Email = "not-an-email"
	input.Shipping.PostalCode = "560001"
	_, err = orchestrator.SubmitDetails(context.Background(), session.ID, input)
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "email", validation.Field)
}

func TestCouponAppliedToTotals(t *testing.T) {
	orchestrator, orders, _, cart, _ := newFixture(t)
	orders.coupon = models.AppliedCoupon{Code: "SAVE300", DiscountAmount: 300}
	require.NoError(t, cart.Add(testProduct, 2, nil)) // subtotal 1200

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	input := validDetails("cod")
	input.CouponCode = "SAVE300"
	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, input)
	require.NoError(t, err)

	require.NotNil(t, session.AppliedCoupon)
	assert.Equal(t, int64(300), session.AppliedCoupon.DiscountAmount)
	assert.Equal(t, int64(900), session.Totals.Total)
	assert.Equal(t, "SAVE300", orders.lastCreate.CouponCode)
}

func TestCouponRejectionDegradesWithoutBlocking(t *testing.T) {
	orchestrator, orders, _, cart, _ := newFixture(t)
	orders.couponErr = fmt.Errorf("%w: expired", ErrCouponRejected)
	require.NoError(t, cart.Add(testProduct, 2, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	input := validDetails("cod")
	input.CouponCode = "EXPIRED"
	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, input)
	require.NoError(t, err)

	assert.Nil(t, session.AppliedCoupon)
	assert.NotEmpty(t, session.CouponNotice)
	assert.Equal(t, models.StepConfirmation, session.Step)
	assert.Equal(t, int64(1200), session.Totals.Total)
	assert.Empty(t, orders.lastCreate.CouponCode)
}

func TestOrderCreationFailureIsRetryable(t *testing.T) {
	orchestrator, orders, _, cart, _ := newFixture(t)
	orders.createErr = errors.New("connection refused")
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	_, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("cod"))
	assert.ErrorIs(t, err, ErrOrderCreation)
	assert.Equal(t, models.StepDetails, session.Step)
	assert.Empty(t, session.OrderID)
	assert.NotEmpty(t, cart.Snapshot().Lines)

	// Re-submitting after the backend recovers succeeds
	orders.createErr = nil
	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("cod"))
	require.NoError(t, err)
	assert.Equal(t, models.StepConfirmation, session.Step)
}

func TestGatewaySuccessFlow(t *testing.T) {
	orchestrator, orders, gw, cart, _ := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("hosted_gateway"))
	require.NoError(t, err)

	// The session waits at details until the gateway reports back
	assert.Equal(t, models.StepDetails, session.Step)
	require.NotNil(t, session.Gateway)
	assert.Equal(t, 1, orders.createCalls)
	assert.Equal(t, 1, gw.sessions)
	assert.NotEmpty(t, cart.Snapshot().Lines)

	session, err = orchestrator.CompleteGatewayPayment(context.Background(), session.ID, GatewayCallback{
		GatewayOrderRef: session.Gateway.GatewayOrderRef,
		PaymentRef:      "pay_123",
		Signature:       "sig",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StepConfirmation, session.Step)
	assert.Equal(t, models.PaymentStateSettled, session.PaymentState)
	assert.Empty(t, cart.Snapshot().Lines)
}

func TestGatewayCancelThenRetryReusesOrder(t *testing.T) {
	orchestrator, orders, gw, cart, _ := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("hosted_gateway"))
	require.NoError(t, err)
	firstOrderID := session.OrderID

	// Buyer dismisses the hosted page: not an error
	session, err = orchestrator.CancelGatewayPayment(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepDetails, session.Step)
	assert.Nil(t, session.Gateway)
	assert.Equal(t, firstOrderID, session.OrderID)

	// Retry opens a fresh gateway session against the same order
	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("hosted_gateway"))
	require.NoError(t, err)
	assert.Equal(t, firstOrderID, session.OrderID)
	assert.Equal(t, 1, orders.createCalls)
	assert.Equal(t, 2, gw.sessions)
}

func TestGatewayVerificationFailureReturnsToDetails(t *testing.T) {
	orchestrator, _, gw, cart, _ := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)
	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("hosted_gateway"))
	require.NoError(t, err)

	gw.verifyErr = fmt.Errorf("%w: signature mismatch", ErrPaymentFailed)
	_, err = orchestrator.CompleteGatewayPayment(context.Background(), session.ID, GatewayCallback{
		GatewayOrderRef: session.Gateway.GatewayOrderRef,
		PaymentRef:      "pay_123",
		Signature:       "bad",
	})
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.Equal(t, models.StepDetails, session.Step)
	assert.NotEmpty(t, session.OrderID)
	assert.NotEmpty(t, cart.Snapshot().Lines)
}

func TestGatewayCallbackRefMismatchRejected(t *testing.T) {
	orchestrator, _, _, cart, _ := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)
	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("hosted_gateway"))
	require.NoError(t, err)

	_, err = orchestrator.CompleteGatewayPayment(context.Background(), session.ID, GatewayCallback{
		GatewayOrderRef: "someone-elses-ref",
		PaymentRef:      "pay_123",
		Signature:       "sig",
	})
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.Equal(t, models.StepDetails, session.Step)
}

func TestManualTransferScenario(t *testing.T) {
	orchestrator, orders, _, cart, repo := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("manual_transfer"))
	require.NoError(t, err)

	assert.Equal(t, models.StepPayment, session.Step)
	assert.NotEmpty(t, session.OrderID)
	assert.NotEmpty(t, cart.Snapshot().Lines, "cart must survive until confirmation")

	session, err = orchestrator.SubmitProof(context.Background(), session.ID, "UTR12345")
	require.NoError(t, err)

	assert.Equal(t, models.StepConfirmation, session.Step)
	assert.Equal(t, models.PaymentStatePendingVerification, session.PaymentState)
	assert.Empty(t, cart.Snapshot().Lines)
	require.Len(t, orders.proofCalls, 1)
	assert.Equal(t, session.OrderID+":UTR12345", orders.proofCalls[0])
	assert.Equal(t, 1, repo.emptySaves)
}

func TestProofSubmissionFailureStillConfirms(t *testing.T) {
	orchestrator, orders, _, cart, _ := newFixture(t)
	orders.proofErr = errors.New("gateway timeout")
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)
	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("manual_transfer"))
	require.NoError(t, err)

	session, err = orchestrator.SubmitProof(context.Background(), session.ID, "UTR12345")
	require.NoError(t, err)

	assert.Equal(t, models.StepConfirmation, session.Step)
	assert.Equal(t, models.PaymentStatePendingVerification, session.PaymentState)
	assert.NotEmpty(t, session.ProofNotice)
	assert.Empty(t, cart.Snapshot().Lines)
}

func TestEmptyProofRejected(t *testing.T) {
	orchestrator, _, _, cart, _ := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)
	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("manual_transfer"))
	require.NoError(t, err)

	_, err = orchestrator.SubmitProof(context.Background(), session.ID, "   ")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "proof_reference", validation.Field)
	assert.Equal(t, models.StepPayment, session.Step)
}

func TestConfirmationIsTerminal(t *testing.T) {
	orchestrator, _, _, cart, repo := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)
	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("cod"))
	require.NoError(t, err)
	require.Equal(t, models.StepConfirmation, session.Step)

	_, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("cod"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = orchestrator.SubmitProof(context.Background(), session.ID, "UTR12345")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The cart was cleared exactly once
	assert.Equal(t, 1, repo.emptySaves)
}

func TestSessionEventsPublished(t *testing.T) {
	orchestrator, _, _, cart, _ := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	events, cancel := session.Subscribe()
	defer cancel()

	_, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("cod"))
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, models.StepConfirmation, ev.Step)
		assert.Equal(t, StatusSettled, ev.Status)
		assert.NotEmpty(t, ev.OrderID)
	default:
		t.Fatal("expected a settled event")
	}
}

func TestPaymentReference(t *testing.T) {
	orchestrator, _, _, cart, _ := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil)) // subtotal 600, total 699

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	merchant := Merchant{Name: "Name Strings", VPA: "namestrings@upi"}

	// Not available before the payment step
	_, err = orchestrator.PaymentReference(session.ID, merchant)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("manual_transfer"))
	require.NoError(t, err)

	ref, err := orchestrator.PaymentReference(session.ID, merchant)
	require.NoError(t, err)
	assert.Equal(t, "namestrings@upi", ref.MerchantVPA)
	assert.Equal(t, int64(699), ref.Amount)
	assert.Equal(t, session.OrderID, ref.OrderID)
	assert.Contains(t, ref.IntentURI, "upi://pay?")
	assert.Contains(t, ref.IntentURI, "am=699")
	assert.Contains(t, ref.IntentURI, "pa=namestrings%40upi")
}

func TestResubmitWithOpenGatewaySessionRejected(t *testing.T) {
	orchestrator, orders, gw, cart, _ := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)
	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("hosted_gateway"))
	require.NoError(t, err)
	require.NotNil(t, session.Gateway)
	openRef := session.Gateway.GatewayOrderRef

	// While a gateway session is pending, re-submitting must not open a
	// second one; the buyer cancels or the callback resolves it first.
	_, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("hosted_gateway"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 1, gw.sessions)
	assert.Equal(t, 1, orders.createCalls)
	require.NotNil(t, session.Gateway)
	assert.Equal(t, openRef, session.Gateway.GatewayOrderRef)

	// After a cancel the retry goes through again
	_, err = orchestrator.CancelGatewayPayment(session.ID)
	require.NoError(t, err)
	session, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("hosted_gateway"))
	require.NoError(t, err)
	assert.Equal(t, 2, gw.sessions)
}

func TestSessionMarshalsConsistentlyDuringMutation(t *testing.T) {
	orchestrator, _, _, cart, _ := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	session, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	// HTTP handlers render the live session with encoding/json while
	// other requests drive it through the orchestrator.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if _, err := json.Marshal(session); err != nil {
				t.Errorf("marshal failed: %v", err)
				return
			}
		}
	}()

	_, err = orchestrator.SubmitDetails(context.Background(), session.ID, validDetails("cod"))
	require.NoError(t, err)
	<-done

	raw, err := json.Marshal(session)
	require.NoError(t, err)
	var view map[string]any
	require.NoError(t, json.Unmarshal(raw, &view))
	assert.Equal(t, session.ID, view["id"])
	assert.Equal(t, string(models.StepConfirmation), view["step"])
	assert.NotEmpty(t, view["order_id"])
	assert.Equal(t, string(models.PaymentStateSettled), view["payment_state"])
}

func TestPruneTerminalDropsConfirmedSessions(t *testing.T) {
	orchestrator, _, _, cart, _ := newFixture(t)
	require.NoError(t, cart.Add(testProduct, 1, nil))

	confirmed, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)
	_, err = orchestrator.SubmitDetails(context.Background(), confirmed.ID, validDetails("cod"))
	require.NoError(t, err)

	require.NoError(t, cart.Add(testProduct, 1, nil))
	inflight, err := orchestrator.Begin(cart, "buyer-1")
	require.NoError(t, err)

	// Inside the retention window nothing goes
	assert.Equal(t, 0, orchestrator.PruneTerminal(time.Now().Add(-time.Hour)))

	dropped := orchestrator.PruneTerminal(time.Now().Add(time.Hour))
	assert.Equal(t, 1, dropped)

	_, err = orchestrator.Session(confirmed.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = orchestrator.Session(inflight.ID)
	assert.NoError(t, err)
}

func TestSessionNotFound(t *testing.T) {
	orchestrator, _, _, _, _ := newFixture(t)

	_, err := orchestrator.Session("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = orchestrator.SubmitDetails(context.Background(), "missing", validDetails("cod"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
