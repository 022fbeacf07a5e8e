package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/namestrings/checkout-api/checkout"
	"github.com/namestrings/checkout-api/models"
)

// Client is the hosted payment gateway adapter. It implements
// checkout.PaymentGateway.
type Client struct {
	keyID     string
	keySecret string
	apiURL    string
	sandbox   bool
	http      *http.Client
}

// NewClientFromEnv reads the gateway configuration. Sandbox mode skips
// the local signature check (the sandbox gateway does not sign
// callbacks) but still verifies remotely.
func NewClientFromEnv() (*Client, error) {
	c := &Client{
		keyID:     os.Getenv("GATEWAY_KEY_ID"),
		keySecret: os.Getenv("GATEWAY_KEY_SECRET"),
		apiURL:    os.Getenv("GATEWAY_API_URL"),
		http:      &http.Client{},
	}
	mode := strings.ToLower(os.Getenv("GATEWAY_MODE"))
	c.sandbox = mode == "sandbox" || mode == "dev"

	if c.keyID == "" || c.keySecret == "" || c.apiURL == "" {
		return nil, fmt.Errorf("gateway configuration missing")
	}
	return c, nil
}

type createSessionResponse struct {
	GatewayOrderRef string `json:"gateway_order_ref"`
	Currency        string `json:"currency"`
	Error           *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CreateSession opens a hosted payment session for an order. The
// returned descriptor is handed to the gateway's hosted page by the UI.
func (c *Client) CreateSession(ctx context.Context, orderID string, amount int64, contact models.ContactInfo) (checkout.GatewaySession, error) {
	payload := map[string]interface{}{
		"key_id":   c.keyID,
		"order_id": orderID,
		"amount":   amount,
		"contact": map[string]string{
			"email": contact.Email,
			"phone": contact.Phone,
		},
	}

	body, err := c.post(ctx, "/payment/create-order", payload)
	if err != nil {
		return checkout.GatewaySession{}, err
	}

	var parsed createSessionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return checkout.GatewaySession{}, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	if parsed.Error != nil {
		return checkout.GatewaySession{}, fmt.Errorf("gateway error: %s", parsed.Error.Message)
	}
	if parsed.GatewayOrderRef == "" {
		return checkout.GatewaySession{}, fmt.Errorf("gateway returned empty order reference")
	}

	currency := parsed.Currency
	if currency == "" {
		currency = "INR"
	}
	return checkout.GatewaySession{
		GatewayOrderRef: parsed.GatewayOrderRef,
		KeyID:           c.keyID,
		Amount:          amount,
		Currency:        currency,
	}, nil
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason"`
}

// Verify confirms a completion notification. The client-reported success
// is never trusted: the signature is checked against the gateway secret
// and the payload is forwarded to the gateway's verify endpoint.
func (c *Client) Verify(ctx context.Context, callback checkout.GatewayCallback) error {
	if callback.GatewayOrderRef == "" || callback.PaymentRef == "" {
		return fmt.Errorf("%w: incomplete callback payload", checkout.ErrPaymentFailed)
	}

	if !c.sandbox {
		expected := SignCallback(c.keySecret, callback.GatewayOrderRef, callback.PaymentRef)
		if !hmac.Equal([]byte(expected), []byte(callback.Signature)) {
			return fmt.Errorf("%w: invalid callback signature", checkout.ErrPaymentFailed)
		}
	}

	payload := map[string]string{
		"gateway_order_ref": callback.GatewayOrderRef,
		"payment_ref":       callback.PaymentRef,
		"signature":         callback.Signature,
	}
	body, err := c.post(ctx, "/payment/verify", payload)
	if err != nil {
		return fmt.Errorf("%w: %v", checkout.ErrPaymentFailed, err)
	}

	var parsed verifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("%w: failed to parse verify response: %v", checkout.ErrPaymentFailed, err)
	}
	if !parsed.Verified {
		reason := parsed.Reason
		if reason == "" {
			reason = "gateway rejected the payment"
		}
		return fmt.Errorf("%w: %s", checkout.ErrPaymentFailed, reason)
	}
	return nil
}

// SignCallback computes the callback signature: HMAC-SHA256 over
// "<gatewayOrderRef>|<paymentRef>", hex-encoded.
func SignCallback(secret, gatewayOrderRef, paymentRef string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(gatewayOrderRef + "|" + paymentRef))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway API error (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
