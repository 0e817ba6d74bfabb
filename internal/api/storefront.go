package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"commerce-service/internal/cart"
	"commerce-service/internal/models"
	"commerce-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.Catalog.GetProducts(c.Request.Context(), c.Query("category"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	p, err := h.Catalog.GetProductByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product":         p,
		"effective_price": p.EffectivePrice(time.Now()),
		"is_kit":          p.IsKit(),
	})
}

func (h *Handler) respondCart(c *gin.Context, session string, ct *cart.Cart, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, service.View(session, ct))
}

func (h *Handler) getCart(c *gin.Context) {
	session := c.Param("session")
	ct, err := h.Carts.GetCart(c.Request.Context(), session)
	h.respondCart(c, session, ct, err)
}

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	session := c.Param("session")
	ct, err := h.Carts.AddItem(c.Request.Context(), session, req.ProductID)
	h.respondCart(c, session, ct, err)
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	session := c.Param("session")
	ct, err := h.Carts.UpdateQuantity(c.Request.Context(), session, c.Param("product_id"), *req.Quantity)
	h.respondCart(c, session, ct, err)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	session := c.Param("session")
	ct, err := h.Carts.RemoveItem(c.Request.Context(), session, c.Param("product_id"))
	h.respondCart(c, session, ct, err)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.Carts.ClearCart(c.Request.Context(), c.Param("session")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type checkoutRequest struct {
	Session  string                 `json:"session" binding:"required"`
	Shipping models.ShippingDetails `json:"shipping"`
	// Amount is the total in minor units the customer saw; zero means "price it now"
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Notes    string `json:"notes"`
}

// checkout starts a detached checkout flow and answers once the payment UI
// is open, or with the error that stopped the flow before that.
func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	amount := req.Amount
	if amount == 0 {
		ct, err := h.Carts.GetCart(c.Request.Context(), req.Session)
		if err != nil {
			h.writeError(c, err)
			return
		}
		amount = ct.Quote().Total * 100
	}
	data := service.OrderData{AmountMinor: amount, Currency: req.Currency, Notes: req.Notes}

	sess := h.Sessions.NewSession()
	flowCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.FlowTimeout)
	go func() {
		defer cancel()
		sess.Finish(h.Checkout.CheckoutCart(flowCtx, req.Session, data, req.Shipping, sess))
	}()

	timer := time.NewTimer(h.OpenTimeout)
	defer timer.Stop()

	select {
	case opts := <-sess.Opened():
		c.JSON(http.StatusCreated, gin.H{"order_id": opts.Receipt, "checkout": opts})
	case <-sess.Done():
		select {
		case opts := <-sess.Opened():
			c.JSON(http.StatusCreated, gin.H{"order_id": opts.Receipt, "checkout": opts})
		default:
			h.writeResult(c, sess.Result())
		}
	case <-timer.C:
		cancel()
		h.logger.Warn("Checkout did not reach the payment UI in time", zap.String("session", req.Session))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Checkout is taking too long, please retry"})
	}
}

// writeResult answers a finished flow. Once an order exists every ending
// (cancel, timeout, UI error) is 200 with success=false; failures before
// that go through writeError.
func (h *Handler) writeResult(c *gin.Context, res service.PaymentResult) {
	if res.Success || res.OrderID != "" || res.Err == nil {
		c.JSON(http.StatusOK, res)
		return
	}
	h.writeError(c, res.Err)
}

type paymentSuccessRequest struct {
	PaymentID      string `json:"payment_id" binding:"required"`
	GatewayOrderID string `json:"gateway_order_id"`
	Signature      string `json:"signature"`
}

func (h *Handler) awaitSession(c *gin.Context, sess *service.PaymentSession) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	res, err := sess.Wait(ctx)
	if err != nil {
		c.JSON(http.StatusAccepted, gin.H{"order_id": c.Param("order_id"), "status": "processing"})
		return
	}
	h.writeResult(c, res)
}

func (h *Handler) paymentSucceeded(c *gin.Context) {
	var req paymentSuccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	sess, err := h.Sessions.Succeed(c.Param("order_id"), service.PaymentSuccess{
		PaymentID:      req.PaymentID,
		GatewayOrderID: req.GatewayOrderID,
		Signature:      req.Signature,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.awaitSession(c, sess)
}

func (h *Handler) paymentDismissed(c *gin.Context) {
	sess, err := h.Sessions.Dismiss(c.Param("order_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.awaitSession(c, sess)
}

type paymentFailureRequest struct {
	Description string `json:"description"`
}

func (h *Handler) paymentFailed(c *gin.Context) {
	var req paymentFailureRequest
	_ = c.ShouldBindJSON(&req)
	if req.Description == "" {
		req.Description = "payment failed"
	}
	sess, err := h.Sessions.Fail(c.Param("order_id"), errors.New(req.Description))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.awaitSession(c, sess)
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.Checkout.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	lines, err := order.Lines()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": lines,
	})
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.Checkout.ListOrders(c.Request.Context(), c.Query("status"), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) advanceOrder(c *gin.Context) {
	order, err := h.Checkout.AdvanceOrder(c.Request.Context(), c.Param("id"),
		service.OrderAction(c.Param("action")), identity(c).Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
