package cartControllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/namestrings/checkout-api/cartstore"
)

type AddItemInput struct {
	ProductID     string            `json:"product_id" binding:"required"`
	Name          string            `json:"name" binding:"required"`
	Image         string            `json:"image"`
	UnitPrice     int64             `json:"unit_price" binding:"required"`
	Quantity      int               `json:"quantity"`
	Customization map[string]string `json:"customization"`
}

type SetQuantityInput struct {
	ProductID     string            `json:"product_id" binding:"required"`
	Quantity      int               `json:"quantity"`
	Customization map[string]string `json:"customization"`
}

type RemoveItemInput struct {
	ProductID     string            `json:"product_id" binding:"required"`
	Customization map[string]string `json:"customization"`
}

func buyerStore(c *gin.Context, carts *cartstore.Manager) (*cartstore.Store, bool) {
	buyerIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	store, err := carts.Store(buyerIDVal.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cart"})
		return nil, false
	}
	return store, true
}

// GET /user/cart
func GetCart(carts *cartstore.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := buyerStore(c, carts)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, store.Snapshot())
	}
}

// POST /user/cart
func AddItem(carts *cartstore.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := buyerStore(c, carts)
		if !ok {
			return
		}

		var input AddItemInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}

		product := cartstore.Product{
			ID:        input.ProductID,
			Name:      input.Name,
			Image:     input.Image,
			UnitPrice: input.UnitPrice,
		}
		if err := store.Add(product, input.Quantity, input.Customization); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add item to cart"})
			return
		}
		c.JSON(http.StatusOK, store.Snapshot())
	}
}

// PUT /user/cart
func SetQuantity(carts *cartstore.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := buyerStore(c, carts)
		if !ok {
			return
		}

		var input SetQuantityInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}

		if err := store.SetQuantity(input.ProductID, input.Customization, input.Quantity); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update cart item"})
			return
		}
		c.JSON(http.StatusOK, store.Snapshot())
	}
}

// DELETE /user/cart/item
//
// Removal needs the customization map to pick the right line, so it
// takes a body instead of a path param.
func RemoveItem(carts *cartstore.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := buyerStore(c, carts)
		if !ok {
			return
		}

		var input RemoveItemInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}

		if err := store.Remove(input.ProductID, input.Customization); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove cart item"})
			return
		}
		c.JSON(http.StatusOK, store.Snapshot())
	}
}

// DELETE /user/cart
func ClearCart(carts *cartstore.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := buyerStore(c, carts)
		if !ok {
			return
		}
		if err := store.Clear(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cart"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
	}
}
