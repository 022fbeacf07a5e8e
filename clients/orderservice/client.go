package orderservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/namestrings/checkout-api/cartstore"
	"github.com/namestrings/checkout-api/checkout"
	"github.com/namestrings/checkout-api/models"
)

// Client talks to the remote Order Service. It implements
// checkout.OrderService.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey, http: &http.Client{}}
}

func NewClientFromEnv() (*Client, error) {
	baseURL := os.Getenv("ORDER_SERVICE_URL")
	apiKey := os.Getenv("ORDER_SERVICE_API_KEY")
	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("order service configuration missing")
	}
	return NewClient(baseURL, apiKey), nil
}

type orderLine struct {
	ProductID     string            `json:"product_id"`
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	UnitPrice     int64             `json:"unit_price"`
	Quantity      int               `json:"quantity"`
	Customization map[string]string `json:"customization"`
}

type createOrderPayload struct {
	OrderRef      string              `json:"order_ref"`
	Items         []orderLine         `json:"items"`
	Shipping      models.ShippingInfo `json:"shipping_address"`
	Contact       models.ContactInfo  `json:"contact"`
	PaymentMethod string              `json:"payment_method"`
	CouponCode    string              `json:"coupon_code,omitempty"`
	Subtotal      int64               `json:"subtotal"`
	ShippingCost  int64               `json:"shipping_cost"`
	Discount      int64               `json:"discount_amount"`
	Total         int64               `json:"total"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

// CreateOrder posts the full order payload and returns the remote order
// identifier.
func (c *Client) CreateOrder(ctx context.Context, req checkout.CreateOrderRequest) (string, error) {
	payload := createOrderPayload{
		OrderRef:      req.OrderRef,
		Items:         toOrderLines(req.Lines),
		Shipping:      req.Shipping,
		Contact:       req.Contact,
		PaymentMethod: string(req.PaymentMethod),
		CouponCode:    req.CouponCode,
		Subtotal:      req.Totals.Subtotal,
		ShippingCost:  req.Totals.Shipping,
		Discount:      req.Totals.Discount,
		Total:         req.Totals.Total,
	}

	var resp createOrderResponse
	if err := c.post(ctx, "/orders", payload, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("order service returned empty order id")
	}
	return resp.ID, nil
}

// SubmitPaymentProof attaches a manual-transfer proof reference to an
// existing order.
func (c *Client) SubmitPaymentProof(ctx context.Context, orderID, proofRef string) error {
	payload := map[string]string{"proof_reference": proofRef}
	return c.post(ctx, "/orders/"+url.PathEscape(orderID)+"/submit-payment", payload, nil)
}

type couponResponse struct {
	Valid          bool   `json:"valid"`
	DiscountAmount int64  `json:"discount_amount"`
	Message        string `json:"message"`
}

// ValidateCoupon asks the Order Service whether the code applies at the
// given subtotal. Rejections come back wrapped in
// checkout.ErrCouponRejected so the orchestrator can degrade gracefully.
func (c *Client) ValidateCoupon(ctx context.Context, code string, subtotal int64) (models.AppliedCoupon, error) {
	q := url.Values{}
	q.Set("code", code)
	q.Set("subtotal", strconv.FormatInt(subtotal, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/coupons/validate?"+q.Encode(), nil)
	if err != nil {
		return models.AppliedCoupon{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return models.AppliedCoupon{}, fmt.Errorf("%w: %v", checkout.ErrCouponRejected, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var parsed couponResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK || !parsed.Valid {
		reason := parsed.Message
		if reason == "" {
			reason = fmt.Sprintf("coupon service status %d", resp.StatusCode)
		}
		return models.AppliedCoupon{}, fmt.Errorf("%w: %s", checkout.ErrCouponRejected, reason)
	}

	return models.AppliedCoupon{Code: code, DiscountAmount: parsed.DiscountAmount}, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach order service: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("order service error (%d): %s", resp.StatusCode, string(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse order service response: %w", err)
		}
	}
	return nil
}

func toOrderLines(lines []cartstore.Line) []orderLine {
	out := make([]orderLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, orderLine{
			ProductID:     line.ProductID,
			Name:          line.Name,
			Image:         line.Image,
			UnitPrice:     line.UnitPrice,
			Quantity:      line.Quantity,
			Customization: line.Customization,
		})
	}
	return out
}
