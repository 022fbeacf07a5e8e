package routes

import (
	"github.com/gin-gonic/gin"
	checkoutControllers "github.com/namestrings/checkout-api/controllers/checkout"
	"github.com/namestrings/checkout-api/middleware"
)

// SetupCheckoutRoutes registers all "/checkout" endpoints.
func SetupCheckoutRoutes(r *gin.Engine, deps Deps) {
	checkoutGroup := r.Group("/checkout")
	checkoutGroup.Use(middleware.ValidateToken)
	{
		// Open a session over the buyer's cart
		checkoutGroup.POST("/", checkoutControllers.BeginCheckout(deps.Orchestrator, deps.Carts))

		// Current session state (safe to poll after a reload)
		checkoutGroup.GET("/:sessionID", checkoutControllers.GetSession(deps.Orchestrator))

		// Submit shipping/contact details and branch on payment method
		checkoutGroup.POST("/:sessionID/details", checkoutControllers.SubmitDetails(deps.Orchestrator))

		// Hosted gateway completion notification (verified server-side)
		checkoutGroup.POST("/:sessionID/gateway/callback", checkoutControllers.GatewayCallback(deps.Orchestrator))

		// Buyer dismissed the hosted gateway; order is retained for retry
		checkoutGroup.POST("/:sessionID/gateway/cancel", checkoutControllers.CancelGateway(deps.Orchestrator))

		// Manual transfer proof submission
		checkoutGroup.POST("/:sessionID/proof", checkoutControllers.SubmitProof(deps.Orchestrator))

		// Manual transfer payment reference + scannable form
		checkoutGroup.GET("/:sessionID/payment-reference", checkoutControllers.GetPaymentReference(deps.Orchestrator, deps.Merchant))
		checkoutGroup.GET("/:sessionID/payment-qr", checkoutControllers.PaymentQR(deps.Orchestrator, deps.Merchant))

		// Session event stream
		checkoutGroup.GET("/:sessionID/ws", checkoutControllers.SessionEvents(deps.Orchestrator))
	}
}
