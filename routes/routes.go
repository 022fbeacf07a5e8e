package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/namestrings/checkout-api/cartstore"
	"github.com/namestrings/checkout-api/checkout"
)

// Deps carries everything the route groups need.
type Deps struct {
	Carts        *cartstore.Manager
	Orchestrator *checkout.Orchestrator
	Merchant     checkout.Merchant
}

// SetupRoutes is the single entry-point that wires up the Auth, Cart and
// Checkout route groups.
func SetupRoutes(r *gin.Engine, deps Deps) {
	// 1️⃣ Public auth routes (no middleware)
	SetupAuthRoutes(r)

	// 2️⃣ Cart routes (JWT-protected)
	SetupCartRoutes(r, deps.Carts)

	// 3️⃣ Checkout routes (JWT-protected)
	SetupCheckoutRoutes(r, deps)
}
