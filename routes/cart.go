package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/namestrings/checkout-api/cartstore"
	cartControllers "github.com/namestrings/checkout-api/controllers/cart"
	"github.com/namestrings/checkout-api/middleware"
)

// SetupCartRoutes registers all "/user/cart" endpoints. Requires JWT middleware.
func SetupCartRoutes(r *gin.Engine, carts *cartstore.Manager) {
	userGroup := r.Group("/user")
	userGroup.Use(middleware.ValidateToken)
	{
		cartGroup := userGroup.Group("/cart")
		{
			cartGroup.GET("/", cartControllers.GetCart(carts))           // GET /user/cart
			cartGroup.POST("/", cartControllers.AddItem(carts))          // POST /user/cart
			cartGroup.PUT("/", cartControllers.SetQuantity(carts))       // PUT /user/cart
			cartGroup.DELETE("/item", cartControllers.RemoveItem(carts)) // DELETE /user/cart/item
			cartGroup.DELETE("/", cartControllers.ClearCart(carts))      // DELETE /user/cart
		}
	}
}
