package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/services/negotiation"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// cleanupLockTTL bounds a destructive cleanup run; the lock expires on its own
// if the process dies mid-run.
const cleanupLockTTL = 5 * time.Minute

// NegotiationService is the protocol surface the handler drives.
type NegotiationService interface {
	AdminProposeDate(ctx context.Context, clientID, addressID uuid.UUID, newDate time.Time) error
	AdminAcceptClientDate(ctx context.Context, clientID, addressID uuid.UUID) error
	ClientReschedule(ctx context.Context, clientID, addressID uuid.UUID, newDate time.Time) error
	ClientAcceptProposal(ctx context.Context, clientID, addressID uuid.UUID) error
	CleanupOrphans(ctx context.Context, params negotiation.CleanupParams) (*negotiation.CleanupReport, error)
}

// NegotiationHandler handles the negotiation API endpoints
type NegotiationHandler struct {
	service NegotiationService
	locker  *redis.Locker
	logger  ectologger.Logger
}

// NewNegotiationHandler creates a new negotiation handler
func NewNegotiationHandler(service NegotiationService, locker *redis.Locker, logger ectologger.Logger) *NegotiationHandler {
	return &NegotiationHandler{
		service: service,
		locker:  locker,
		logger:  logger,
	}
}

// ProposeDateRequest is the admin date-proposal request body
type ProposeDateRequest struct {
	ClientID  string `json:"clientId" validate:"required,uuid"`
	AddressID string `json:"addressId" validate:"required,uuid"`
	NewDate   string `json:"new_date" validate:"required"`
}

// AcceptClientDateRequest is the admin acceptance request body
type AcceptClientDateRequest struct {
	ClientID  string `json:"clientId" validate:"required,uuid"`
	AddressID string `json:"addressId" validate:"required,uuid"`
}

// RescheduleRequest is the client counter-proposal request body
type RescheduleRequest struct {
	AddressID string `json:"addressId" validate:"required,uuid"`
	NewDate   string `json:"new_date" validate:"required"`
}

// AcceptProposalRequest is the client acceptance request body
type AcceptProposalRequest struct {
	AddressID string `json:"addressId" validate:"required,uuid"`
}

// CleanupRequest is the orphan cleanup request body. DryRun defaults to true:
// deletion must be asked for explicitly.
type CleanupRequest struct {
	ClientID string `json:"clientId,omitempty" validate:"omitempty,uuid"`
	DryRun   *bool  `json:"dryRun,omitempty"`
	Limit    int    `json:"limit,omitempty" validate:"omitempty,min=0"`
}

// Register registers the negotiation routes
func (h *NegotiationHandler) Register(g *echo.Group) {
	g.POST("/admin/propose-collection-date", h.ProposeDate)
	g.POST("/admin/accept-client-proposed-date", h.AcceptClientDate)
	g.POST("/admin/cleanup-orphan-requested", h.CleanupOrphans)
	g.POST("/client/collection-reschedule", h.Reschedule)
	g.POST("/client/collection-accept-proposal", h.AcceptProposal)
}

// ProposeDate lets the admin propose a collection date for a client's address
func (h *NegotiationHandler) ProposeDate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NegotiationHandler.ProposeDate")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	if err := RequireRole(c, "admin"); err != nil {
		return err
	}

	var req ProposeDateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	clientID, err := ParseBodyUUID("clientId", req.ClientID)
	if err != nil {
		return err
	}
	addressID, err := ParseBodyUUID("addressId", req.AddressID)
	if err != nil {
		return err
	}
	newDate, err := ParseDate("new_date", req.NewDate)
	if err != nil {
		return err
	}

	if err := h.service.AdminProposeDate(ctx, clientID, addressID, newDate); err != nil {
		return err
	}

	return SuccessResponse(c)
}

// AcceptClientDate lets the admin accept the client's counter-proposed date
func (h *NegotiationHandler) AcceptClientDate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NegotiationHandler.AcceptClientDate")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	if err := RequireRole(c, "admin"); err != nil {
		return err
	}

	var req AcceptClientDateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	clientID, err := ParseBodyUUID("clientId", req.ClientID)
	if err != nil {
		return err
	}
	addressID, err := ParseBodyUUID("addressId", req.AddressID)
	if err != nil {
		return err
	}

	if err := h.service.AdminAcceptClientDate(ctx, clientID, addressID); err != nil {
		return err
	}

	return SuccessResponse(c)
}

// Reschedule lets the client counter-propose a collection date
func (h *NegotiationHandler) Reschedule(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NegotiationHandler.Reschedule")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	clientID, err := GetClientID(c)
	if err != nil {
		return err
	}

	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	addressID, err := ParseBodyUUID("addressId", req.AddressID)
	if err != nil {
		return err
	}
	newDate, err := ParseDate("new_date", req.NewDate)
	if err != nil {
		return err
	}

	if err := h.service.ClientReschedule(ctx, clientID, addressID, newDate); err != nil {
		return err
	}

	return SuccessResponse(c)
}

// AcceptProposal lets the client accept the proposed collection date
func (h *NegotiationHandler) AcceptProposal(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NegotiationHandler.AcceptProposal")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	clientID, err := GetClientID(c)
	if err != nil {
		return err
	}

	var req AcceptProposalRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	addressID, err := ParseBodyUUID("addressId", req.AddressID)
	if err != nil {
		return err
	}

	if err := h.service.ClientAcceptProposal(ctx, clientID, addressID); err != nil {
		return err
	}

	return SuccessResponse(c)
}

// CleanupOrphans runs the orphan scan. Destructive runs are serialized across
// replicas via a distributed lock; dry-run scans are unrestricted.
func (h *NegotiationHandler) CleanupOrphans(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NegotiationHandler.CleanupOrphans")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	if err := RequireRole(c, "admin"); err != nil {
		return err
	}

	var req CleanupRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	params := negotiation.CleanupParams{
		DryRun: true,
		Limit:  req.Limit,
	}
	if req.DryRun != nil {
		params.DryRun = *req.DryRun
	}
	if req.ClientID != "" {
		clientID, err := ParseBodyUUID("clientId", req.ClientID)
		if err != nil {
			return err
		}
		params.ClientID = &clientID
	}

	if params.DryRun || h.locker == nil {
		report, err := h.service.CleanupOrphans(ctx, params)
		if err != nil {
			return err
		}
		return DataResponse(c, report)
	}

	lock, err := h.locker.Acquire(ctx, "cleanup-orphan-requested", cleanupLockTTL)
	if err != nil {
		if err == redis.ErrLockNotAcquired {
			return httperror.NewHTTPError(http.StatusConflict, "a cleanup run is already in progress")
		}
		return err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			h.logger.WithContext(ctx).WithError(err).Warn("failed to release cleanup lock")
		}
	}()

	report, err := h.service.CleanupOrphans(ctx, params)
	if err != nil {
		return err
	}

	return DataResponse(c, report)
}
