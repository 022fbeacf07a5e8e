package checkoutControllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/namestrings/checkout-api/cartstore"
	"github.com/namestrings/checkout-api/checkout"
	"github.com/namestrings/checkout-api/models"
)

type DetailsInput struct {
	Email         string `json:"email" binding:"required"`
	Phone         string `json:"phone" binding:"required"`
	FirstName     string `json:"first_name" binding:"required"`
	LastName      string `json:"last_name" binding:"required"`
	Address       string `json:"address" binding:"required"`
	Apartment     string `json:"apartment"`
	City          string `json:"city" binding:"required"`
	State         string `json:"state" binding:"required"`
	PostalCode    string `json:"postal_code" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	CouponCode    string `json:"coupon_code"`
}

type ProofInput struct {
	ProofReference string `json:"proof_reference" binding:"required"`
}

// POST /checkout
func BeginCheckout(orchestrator *checkout.Orchestrator, carts *cartstore.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		buyerIDVal, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		buyerID := buyerIDVal.(string)

		store, err := carts.Store(buyerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cart"})
			return
		}

		session, err := orchestrator.Begin(store, buyerID)
		if err != nil {
			respondCheckoutError(c, err)
			return
		}
		c.JSON(http.StatusCreated, session)
	}
}

// GET /checkout/:sessionID
func GetSession(orchestrator *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := orchestrator.Session(c.Param("sessionID"))
		if err != nil {
			respondCheckoutError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// POST /checkout/:sessionID/details
func SubmitDetails(orchestrator *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input DetailsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}

		session, err := orchestrator.SubmitDetails(c.Request.Context(), c.Param("sessionID"), checkout.DetailsInput{
			Shipping: models.ShippingInfo{
				FirstName:  input.FirstName,
				LastName:   input.LastName,
				Address:    input.Address,
				Apartment:  input.Apartment,
				City:       input.City,
				State:      input.State,
				PostalCode: input.PostalCode,
			},
			Contact: models.ContactInfo{
				Email: input.Email,
				Phone: input.Phone,
			},
			PaymentMethod: input.PaymentMethod,
			CouponCode:    input.CouponCode,
		})
		if err != nil {
			respondCheckoutError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// POST /checkout/:sessionID/gateway/callback
func GatewayCallback(orchestrator *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var callback checkout.GatewayCallback
		if err := c.ShouldBindJSON(&callback); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid callback payload: " + err.Error()})
			return
		}

		session, err := orchestrator.CompleteGatewayPayment(c.Request.Context(), c.Param("sessionID"), callback)
		if err != nil {
			respondCheckoutError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// POST /checkout/:sessionID/gateway/cancel
func CancelGateway(orchestrator *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := orchestrator.CancelGatewayPayment(c.Param("sessionID"))
		if err != nil {
			respondCheckoutError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// POST /checkout/:sessionID/proof
func SubmitProof(orchestrator *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input ProofInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}

		session, err := orchestrator.SubmitProof(c.Request.Context(), c.Param("sessionID"), input.ProofReference)
		if err != nil {
			respondCheckoutError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// respondCheckoutError maps the checkout error taxonomy onto HTTP
// statuses. Everything here is retryable or informational, never fatal.
func respondCheckoutError(c *gin.Context, err error) {
	var validation *checkout.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.Is(err, checkout.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, checkout.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, checkout.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, checkout.ErrOrderCreation):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, checkout.ErrPaymentFailed):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error(), "retryable": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
