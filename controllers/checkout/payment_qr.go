package checkoutControllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/namestrings/checkout-api/checkout"
	qrcode "github.com/skip2/go-qrcode"
)

// GET /checkout/:sessionID/payment-qr
//
// Renders the manual-transfer payment reference as a scannable UPI QR
// code. Only available while the session sits at the payment step.
func PaymentQR(orchestrator *checkout.Orchestrator, merchant checkout.Merchant) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, err := orchestrator.PaymentReference(c.Param("sessionID"), merchant)
		if err != nil {
			respondCheckoutError(c, err)
			return
		}

		png, err := qrcode.Encode(ref.IntentURI, qrcode.Medium, 256)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR code"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	}
}

// GET /checkout/:sessionID/payment-reference
func GetPaymentReference(orchestrator *checkout.Orchestrator, merchant checkout.Merchant) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, err := orchestrator.PaymentReference(c.Param("sessionID"), merchant)
		if err != nil {
			respondCheckoutError(c, err)
			return
		}
		c.JSON(http.StatusOK, ref)
	}
}
