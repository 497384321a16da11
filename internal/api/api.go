// Package api exposes the wallet exchange flows over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
	"github.com/sirosfoundation/go-wallet-exchange/internal/exchange"
	"github.com/sirosfoundation/go-wallet-exchange/internal/pin"
	"github.com/sirosfoundation/go-wallet-exchange/internal/qr"
	"github.com/sirosfoundation/go-wallet-exchange/internal/userdata"
	"github.com/sirosfoundation/go-wallet-exchange/pkg/middleware"
)

// Handler groups the HTTP handlers over the exchange services.
type Handler struct {
	processor   *qr.Processor
	attestation *exchange.AttestationService
	users       *userdata.Service
	pins        *pin.Hub
	logger      *zap.Logger
}

// NewHandler creates the API handler set.
func NewHandler(processor *qr.Processor, attestation *exchange.AttestationService, users *userdata.Service, pins *pin.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		processor:   processor,
		attestation: attestation,
		users:       users,
		pins:        pins,
		logger:      logger.Named("api"),
	}
}

// NewRouter builds the gin router with CORS, request logging and the
// bearer-authenticated API routes.
func NewRouter(h *Handler, jwtSecret string, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	router.GET("/health", h.Health)
	router.GET("/api/v1/pin", h.PinSocket)

	authed := router.Group("/api/v1")
	authed.Use(middleware.AuthMiddleware(jwtSecret, logger))
	{
		authed.POST("/execute-content", h.ExecuteContent)
		authed.POST("/vp", h.SubmitPresentation)
		authed.GET("/credentials", h.ListCredentials)
		authed.DELETE("/credentials", h.DeleteCredential)
		authed.GET("/dids", h.ListDids)
	}

	return router
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PinSocket upgrades the holder device connection used for transaction
// code delivery.
func (h *Handler) PinSocket(c *gin.Context) {
	h.pins.HandleConnection(c.Writer, c.Request)
}

type executeContentRequest struct {
	QrContent string `json:"qr_content" binding:"required"`
}

// ExecuteContent classifies scanned content and runs the matching flow.
func (h *Handler) ExecuteContent(c *gin.Context) {
	var req executeContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "qr_content is required"})
		return
	}

	result, err := h.processor.Execute(c.Request.Context(), c.GetString("user_id"), req.QrContent)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SubmitPresentation builds and submits the presentation over the
// holder's credential selection.
func (h *Handler) SubmitPresentation(c *gin.Context) {
	var selection domain.VcSelectorResponse
	if err := c.ShouldBindJSON(&selection); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid selection"})
		return
	}

	if err := h.attestation.SubmitPresentation(c.Request.Context(), c.GetString("user_id"), selection); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListCredentials returns the holder's stored credentials.
func (h *Handler) ListCredentials(c *gin.Context) {
	infos, err := h.users.ListVCs(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, infos)
}

// DeleteCredential removes one stored credential.
func (h *Handler) DeleteCredential(c *gin.Context) {
	credentialID := c.Query("credentialId")
	if credentialID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "credentialId is required"})
		return
	}

	if err := h.users.DeleteVC(c.Request.Context(), c.GetString("user_id"), credentialID); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListDids returns the holder's stored DIDs.
func (h *Handler) ListDids(c *gin.Context) {
	dids, err := h.users.ListDids(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, dids)
}

// renderError maps exchange errors onto HTTP status codes.
func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, exchange.ErrNoSuchContent):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, exchange.ErrEntityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, exchange.ErrEmptySelection):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, exchange.ErrUnsupportedResponseType), errors.Is(err, exchange.ErrUnsupportedGrantType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, exchange.ErrFailedCommunication):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
