package orderservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/namestrings/checkout-api/cartstore"
	"github.com/namestrings/checkout-api/checkout"
	"github.com/namestrings/checkout-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	var got createOrderPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"id": "order-77"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	orderID, err := client.CreateOrder(context.Background(), checkout.CreateOrderRequest{
		OrderRef: "20250908130500-ref",
		Lines: []cartstore.Line{
			{ProductID: "prod-a", Name: "Name Necklace", UnitPrice: 600, Quantity: 2,
				Customization: map[string]string{"name": "Alex"}},
		},
		Shipping:      models.ShippingInfo{FirstName: "Asha", PostalCode: "560001"},
		Contact:       models.ContactInfo{Email: "asha@example.com"},
		PaymentMethod: models.PaymentMethodCOD,
		Totals:        checkout.Totals{Subtotal: 1200, Shipping: 0, Discount: 300, Total: 900},
	})
	require.NoError(t, err)

	assert.Equal(t, "order-77", orderID)
	assert.Equal(t, "20250908130500-ref", got.OrderRef)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Alex", got.Items[0].Customization["name"])
	assert.Equal(t, int64(900), got.Total)
	assert.Equal(t, "cod", got.PaymentMethod)
}

func TestCreateOrderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "test-key").CreateOrder(context.Background(), checkout.CreateOrderRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order service error (500)")
}

func TestSubmitPaymentProof(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/order-77/submit-payment", r.URL.Path)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "UTR12345", payload["proof_reference"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "test-key").SubmitPaymentProof(context.Background(), "order-77", "UTR12345")
	assert.NoError(t, err)
}

func TestValidateCoupon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coupons/validate", r.URL.Path)
		assert.Equal(t, "SAVE300", r.URL.Query().Get("code"))
		assert.Equal(t, "1200", r.URL.Query().Get("subtotal"))
		json.NewEncoder(w).Encode(map[string]interface{}{"valid": true, "discount_amount": 300})
	}))
	defer srv.Close()

	coupon, err := NewClient(srv.URL, "test-key").ValidateCoupon(context.Background(), "SAVE300", 1200)
	require.NoError(t, err)
	assert.Equal(t, "SAVE300", coupon.Code)
	assert.Equal(t, int64(300), coupon.DiscountAmount)
}

func TestValidateCouponRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"valid": false, "message": "Minimum order amount is 500"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "test-key").ValidateCoupon(context.Background(), "SAVE300", 100)
	assert.ErrorIs(t, err, checkout.ErrCouponRejected)
	assert.Contains(t, err.Error(), "Minimum order amount")
}

func TestValidateCouponInvalidEvenWith200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"valid": false, "message": "expired"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "test-key").ValidateCoupon(context.Background(), "OLD", 1200)
	assert.ErrorIs(t, err, checkout.ErrCouponRejected)
}
