// Package api is the HTTP surface: route wiring, bearer-token
// authentication, and translation between transport and the operation
// contracts of the gateway, auth, counter and payment services.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"shopcore/internal/auth"
	"shopcore/internal/authz"
	"shopcore/internal/config"
	"shopcore/internal/counter"
	"shopcore/internal/gateway"
	"shopcore/internal/notify"
	"shopcore/internal/payment"
)

// APIResponse defines the base structure for all JSON responses.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Server owns the router and the services it fronts.
type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	gateway  *gateway.Gateway
	auth     *auth.Service
	payments *payment.Service
	counters *counter.Service
	hub      *notify.Hub
	logger   *slog.Logger
}

func NewServer(
	cfg config.Config,
	gw *gateway.Gateway,
	authSvc *auth.Service,
	payments *payment.Service,
	counters *counter.Service,
	hub *notify.Hub,
	logger *slog.Logger,
) *Server {
	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		engine:   gin.New(),
		cfg:      cfg,
		gateway:  gw,
		auth:     authSvc,
		payments: payments,
		counters: counters,
		hub:      hub,
		logger:   logger.With("component", "api"),
	}
	s.engine.Use(gin.Recovery(), s.requestLog())
	s.routes()
	return s
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	root := s.engine.Group("/api")

	authGroup := root.Group("/auth")
	{
		authGroup.POST("/otp/request", s.handleOTPRequest)
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/guest", s.handleGuest)
		authGroup.POST("/logout", s.authenticated(), s.handleLogout)
		authGroup.POST("/password/request", s.handlePasswordRequest)
		authGroup.POST("/password/confirm", s.handlePasswordConfirm)
		authGroup.POST("/password/reset", s.handlePasswordReset)
	}

	public := root.Group("/public")
	{
		public.GET("/products", s.handlePublicProducts)
		public.GET("/promotions", s.handlePublicPromotions)
	}

	data := root.Group("/data", s.authenticated())
	{
		data.GET("/:collection", s.handleList)
		data.GET("/:collection/pagination", s.handlePaginate)
		data.POST("/:collection", s.handleInsert)
		data.PUT("/:collection/:id", s.handleUpdate)
		data.DELETE("/:collection/:id", s.handleDelete)
	}

	root.GET("/dashboard", s.authenticated(), s.handleDashboard)

	counters := root.Group("/counters", s.authenticated())
	{
		counters.GET("/:branchId/:collection", s.handleCounterPeek)
		counters.POST("/:branchId/:collection/increment", s.handleCounterIncrement)
	}

	payments := root.Group("/payments")
	{
		// Generate accepts either a session token or a bare phone
		// number; the latter gets a guest account on the fly.
		payments.POST("", s.handleGenerateQR)
		payments.GET("/:id/status", s.authenticated(), s.handlePaymentStatus)
		payments.POST("/:id/scan", s.handlePaymentScan)
		payments.POST("/:id/confirm", s.authenticated(), s.handlePaymentConfirm)
		// Provider callback, authenticated by the shared webhook path
		// being unguessable plus the provider ref check downstream.
		payments.POST("/webhook", s.handlePaymentWebhook)
	}

	s.engine.GET("/ws", gin.WrapF(s.hub.ServeWS))
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}

// ok sends the standard success envelope.
func ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, APIResponse{Success: true, Message: message, Data: data})
}

// fail maps an operation error onto a status code and the standard
// failure envelope. Underlying detail leaks to the caller only in dev
// mode; production clients get the category message.
func (s *Server) fail(c *gin.Context, err error) {
	status, message := classify(err)
	if s.cfg.DevMode {
		message = err.Error()
	}
	c.AbortWithStatusJSON(status, APIResponse{Success: false, Message: message})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, gateway.ErrUnknownCollection):
		return http.StatusNotFound, "unknown collection"
	case errors.Is(err, gateway.ErrNotFound),
		errors.Is(err, payment.ErrTransactionNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, authz.ErrPermissionDenied):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, gateway.ErrDuplicateFavorite),
		errors.Is(err, auth.ErrPhoneTaken):
		return http.StatusConflict, err.Error()
	case errors.Is(err, gateway.ErrMalformedQuery),
		errors.Is(err, auth.ErrInvalidPhone),
		errors.Is(err, payment.ErrNotPaid),
		errors.Is(err, payment.ErrQRExpired):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, gateway.ErrValidation):
		return http.StatusUnprocessableEntity, "validation failure"
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrOTPMismatch),
		errors.Is(err, auth.ErrOTPExpired):
		return http.StatusUnauthorized, "unauthorized"
	}
	return http.StatusInternalServerError, "internal error"
}
