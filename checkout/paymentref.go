package checkout

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/namestrings/checkout-api/models"
)

// Merchant identifies the payee for manual transfers. VPA is the UPI
// virtual payment address buyers send to.
type Merchant struct {
	Name string
	VPA  string
}

func MerchantFromEnv() (Merchant, error) {
	m := Merchant{
		Name: os.Getenv("MERCHANT_NAME"),
		VPA:  os.Getenv("MERCHANT_VPA"),
	}
	if m.Name == "" || m.VPA == "" {
		return Merchant{}, fmt.Errorf("merchant configuration missing")
	}
	return m, nil
}

// PaymentReference is what the payment step presents for a manual
// transfer: where to pay, how much, and which order the payment is for.
// IntentURI is the same data as a UPI deep link, which the QR endpoint
// renders as a scannable image.
type PaymentReference struct {
	MerchantName string `json:"merchant_name"`
	MerchantVPA  string `json:"merchant_vpa"`
	Amount       int64  `json:"amount"`
	OrderID      string `json:"order_id"`
	IntentURI    string `json:"intent_uri"`
}

// PaymentReference returns the manual-transfer reference for a session
// sitting at the payment step.
func (o *Orchestrator) PaymentReference(sessionID string, merchant Merchant) (PaymentReference, error) {
	session, err := o.Session(sessionID)
	if err != nil {
		return PaymentReference{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.Step != models.StepPayment || session.PaymentMethod != models.PaymentMethodManualTransfer {
		return PaymentReference{}, ErrInvalidTransition
	}

	ref := PaymentReference{
		MerchantName: merchant.Name,
		MerchantVPA:  merchant.VPA,
		Amount:       session.Totals.Total,
		OrderID:      session.OrderID,
	}
	ref.IntentURI = upiIntent(ref)
	return ref, nil
}

func upiIntent(ref PaymentReference) string {
	q := url.Values{}
	q.Set("pa", ref.MerchantVPA)
	q.Set("pn", ref.MerchantName)
	q.Set("am", strconv.FormatInt(ref.Amount, 10))
	q.Set("cu", "INR")
	q.Set("tn", "Order "+ref.OrderID)
	return "upi://pay?" + q.Encode()
}
