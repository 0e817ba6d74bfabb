package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"commerce-service/internal/ledger"
	"commerce-service/internal/models"
	"commerce-service/internal/service"
	"commerce-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Catalog lists products for the storefront
type Catalog interface {
	GetProducts(ctx context.Context, category string) ([]models.Product, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
}

// Deps wires the handler to the services it fronts
type Deps struct {
	Catalog    Catalog
	Carts      *service.CartService
	Checkout   *service.CheckoutService
	Reconciler *service.Reconciler
	Ledger     *service.LedgerService
	Sessions   *service.SessionHub
	// Roles gates the admin endpoints
	Roles ledger.RoleChecker
	// ReadyChecks are probed by /ready, keyed by dependency name
	ReadyChecks map[string]func(context.Context) error
	// OpenTimeout bounds how long POST /checkout waits for the payment UI to open
	OpenTimeout time.Duration
	// FlowTimeout bounds a whole detached checkout flow
	FlowTimeout time.Duration
}

// Handler contains HTTP handlers
type Handler struct {
	Deps
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	if deps.OpenTimeout <= 0 {
		deps.OpenTimeout = 30 * time.Second
	}
	if deps.FlowTimeout <= 0 {
		deps.FlowTimeout = 15 * time.Minute
	}
	if deps.Sessions == nil {
		deps.Sessions = service.NewSessionHub()
	}
	return &Handler{Deps: deps, logger: util.GetLogger()}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.GET("/carts/:session", h.getCart)
		v1.DELETE("/carts/:session", h.clearCart)
		v1.POST("/carts/:session/items", h.addCartItem)
		v1.PUT("/carts/:session/items/:product_id", h.updateCartItem)
		v1.DELETE("/carts/:session/items/:product_id", h.removeCartItem)

		v1.POST("/checkout", h.checkout)
		v1.POST("/checkout/:order_id/success", h.paymentSucceeded)
		v1.POST("/checkout/:order_id/dismiss", h.paymentDismissed)
		v1.POST("/checkout/:order_id/failure", h.paymentFailed)

		v1.GET("/orders/:id", h.getOrder)

		v1.POST("/webhooks/payment", h.paymentWebhook)

		admin := v1.Group("/admin", requireIdentity(), h.requirePermission(ledger.PermissionManageOrders))
		{
			admin.GET("/orders", h.listOrders)
			admin.POST("/orders/:id/:action", h.advanceOrder)
		}

		lg := v1.Group("/ledger", requireIdentity())
		{
			lg.POST("/logs", h.createLog)
			lg.GET("/logs", h.listLogs)
			lg.GET("/logs/:id", h.getLog)
			lg.POST("/logs/:id/decision", h.decideLog)
			lg.POST("/logs/:id/archive", h.archiveLog)
			lg.GET("/logs/:id/comments", h.listComments)
			lg.POST("/logs/:id/comments", h.addComment)
			lg.GET("/summary", h.ledgerSummary)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.ReadyChecks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

const (
	headerUserID    = "X-User-ID"
	headerUserEmail = "X-User-Email"
	identityKey     = "identity"
)

// requireIdentity reads the caller asserted by the auth proxy
func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		who := ledger.Identity{
			UserID: c.GetHeader(headerUserID),
			Email:  c.GetHeader(headerUserEmail),
		}
		if who.UserID == "" || who.Email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing caller identity"})
			return
		}
		c.Set(identityKey, who)
		c.Next()
	}
}

// requirePermission rejects callers whose role lacks perm. It runs after requireIdentity.
func (h *Handler) requirePermission(perm ledger.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		who := identity(c)
		if h.Roles == nil || !h.Roles.Allows(c.Request.Context(), who, perm) {
			h.logger.Warn("Permission denied",
				zap.String("user_id", who.UserID),
				zap.String("permission", string(perm)),
				zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) ledger.Identity {
	who, _ := c.Get(identityKey)
	id, _ := who.(ledger.Identity)
	return id
}

// writeError maps domain errors onto HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	var checkoutViolations *service.ValidationError
	var logViolation *ledger.ValidationError
	switch {
	case errors.As(err, &checkoutViolations):
		status = http.StatusBadRequest
		body["fields"] = checkoutViolations.Violations
	case errors.As(err, &logViolation):
		status = http.StatusBadRequest
		body["fields"] = map[string]string{logViolation.Field: logViolation.Message}
	case errors.Is(err, service.ErrEmptyComment), errors.Is(err, service.ErrUnknownAction), errors.Is(err, ledger.ErrUnknownType):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrForbidden):
		status = http.StatusForbidden
	case service.IsNotFound(err), errors.Is(err, ledger.ErrNotFound), errors.Is(err, service.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrIllegalTransition), errors.Is(err, ledger.ErrNotPending),
		errors.Is(err, ledger.ErrNotRejected), errors.Is(err, service.ErrCheckoutInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrGatewayUnavailable), errors.Is(err, service.ErrGatewayRejected):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "Internal error"
	}
	c.JSON(status, body)
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
