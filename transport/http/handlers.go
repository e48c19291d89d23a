package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
	"github.com/flywheel-fi/flywheel/service"
)

// Handlers contains the HTTP handlers for the platform core.
type Handlers struct {
	auth     *service.AuthService
	registry *service.ActivationService
	ledger   ports.Ledger

	// treasuryAddress is probed by the health check.
	treasuryAddress string
}

// NewHandlers creates the handler set.
func NewHandlers(auth *service.AuthService, registry *service.ActivationService, ledger ports.Ledger, treasuryAddress string) *Handlers {
	return &Handlers{
		auth:            auth,
		registry:        registry,
		ledger:          ledger,
		treasuryAddress: treasuryAddress,
	}
}

// actionBody carries an action payload as plain JSON: the body is whatever
// object the kind expects, not a string-encoded copy of it.
type actionBody struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

func (a actionBody) payload() core.ActionPayload {
	return core.ActionPayload{Kind: a.Kind, Body: a.Body}
}

// Challenge handles POST /auth/challenge.
func (h *Handlers) Challenge(c *gin.Context) {
	var req struct {
		Address string     `json:"address" binding:"required"`
		Action  actionBody `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ch, err := h.auth.RequestChallenge(c.Request.Context(), req.Address, req.Action.payload())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      ch.Token,
		"message":    ch.Message,
		"expires_at": ch.ExpiresAt,
	})
}

// VerifyAndApply handles POST /auth/verify.
func (h *Handlers) VerifyAndApply(c *gin.Context) {
	var req struct {
		Address   string     `json:"address" binding:"required"`
		Token     string     `json:"token" binding:"required"`
		Signature string     `json:"signature" binding:"required"`
		Action    actionBody `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.auth.VerifyAndApply(c.Request.Context(), req.Address, req.Token, req.Signature, req.Action.payload())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"applied": result})
}

// OpenActivation handles POST /activations.
func (h *Handlers) OpenActivation(c *gin.Context) {
	var req struct {
		Address   string     `json:"address" binding:"required"`
		Token     string     `json:"token" binding:"required"`
		Signature string     `json:"signature" binding:"required"`
		Kind      string     `json:"kind" binding:"required"`
		Action    actionBody `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	var kind core.ActivationKind
	switch core.ActivationKind(req.Kind) {
	case core.KindTokenLaunch, core.KindMarketMaking:
		kind = core.ActivationKind(req.Kind)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown activation kind"})
		return
	}

	intent, err := h.auth.Verify(c.Request.Context(), req.Address, req.Token, req.Signature, req.Action.payload())
	if err != nil {
		respondError(c, err)
		return
	}

	rec, err := h.registry.Open(c.Request.Context(), intent, kind, req.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"activation_id":   rec.ID,
		"deposit_address": rec.DepositAddress,
		"required_amount": rec.RequiredAmount.String(),
		"expires_at":      rec.ExpiresAt,
	})
}

// GetActivation handles GET /activations/:id. The session owner polls this
// until the record reaches a terminal status.
func (h *Handlers) GetActivation(c *gin.Context) {
	rec, ok := h.ownedRecord(c)
	if !ok {
		return
	}

	resp := gin.H{
		"activation_id":   rec.ID,
		"kind":            rec.Kind,
		"status":          rec.Status,
		"observed_amount": rec.ObservedAmount.String(),
		"required_amount": rec.RequiredAmount.String(),
		"expires_at":      rec.ExpiresAt,
	}
	if rec.ResultRef != "" {
		resp["result_ref"] = rec.ResultRef
	}
	if rec.LastError != "" {
		resp["last_error"] = rec.LastError
	}
	c.JSON(http.StatusOK, resp)
}

// CancelActivation handles DELETE /activations/:id.
func (h *Handlers) CancelActivation(c *gin.Context) {
	rec, ok := h.ownedRecord(c)
	if !ok {
		return
	}

	if err := h.registry.Cancel(c.Request.Context(), rec.ID, rec.OwnerAddress); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Healthz handles GET /healthz.
func (h *Handlers) Healthz(c *gin.Context) {
	if _, err := h.registry.ListOpen(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "component": "store"})
		return
	}
	if _, err := h.ledger.GetBalance(c.Request.Context(), h.treasuryAddress); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "component": "ledger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// ownedRecord loads the record in the path and checks the session owns it.
func (h *Handlers) ownedRecord(c *gin.Context) (core.ActivationRecord, bool) {
	address, exists := c.Get("walletAddress")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return core.ActivationRecord{}, false
	}

	rec, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return core.ActivationRecord{}, false
	}
	if rec.OwnerAddress != address.(string) {
		// Do not reveal other wallets' activations.
		c.JSON(http.StatusNotFound, gin.H{"error": "activation not found"})
		return core.ActivationRecord{}, false
	}
	return rec, true
}

// respondError maps sentinel errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, core.ErrRateLimited):
		status, msg = http.StatusTooManyRequests, err.Error()
	case errors.Is(err, core.ErrInvalidSignature):
		status, msg = http.StatusUnauthorized, core.ErrInvalidSignature.Error()
	case errors.Is(err, core.ErrChallengeNotFound),
		errors.Is(err, core.ErrChallengeExpired),
		errors.Is(err, core.ErrChallengeAlreadyUsed),
		errors.Is(err, core.ErrPayloadMismatch),
		errors.Is(err, core.ErrInvalidAddress),
		errors.Is(err, core.ErrUnknownAction):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrActivationNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrNotOwner):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, core.ErrActivationAlreadyOpen),
		errors.Is(err, core.ErrInvalidState),
		errors.Is(err, core.ErrNotFundedYet),
		errors.Is(err, core.ErrMaxAttemptsExceeded):
		status, msg = http.StatusConflict, err.Error()
	}

	c.JSON(status, gin.H{"error": msg})
}
