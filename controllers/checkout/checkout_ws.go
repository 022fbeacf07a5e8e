// checkout_ws.go
package checkoutControllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/namestrings/checkout-api/checkout"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GET /checkout/:sessionID/ws
//
// Pushes step/status transitions for one session so the UI learns the
// outcome of an asynchronous gateway callback without polling.
func SessionEvents(orchestrator *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := orchestrator.Session(c.Param("sessionID"))
		if err != nil {
			respondCheckoutError(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		events, cancel := session.Subscribe()
		defer cancel()

		// Drain reads so we notice the client going away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}
}
