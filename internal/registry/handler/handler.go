// Package handler exposes the registry over HTTP: batch creation and minting
// for authenticated organizations, and the public verification endpoints hit
// by scanned QR codes.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pharmatrace/internal/platform/middleware"
	"pharmatrace/internal/registry/models"
	"pharmatrace/internal/registry/service"
	"pharmatrace/internal/registry/verifier"
	id "pharmatrace/pkg/domain"
	dErrors "pharmatrace/pkg/domain-errors"
	"pharmatrace/pkg/platform/httputil"
	"pharmatrace/pkg/requestcontext"
)

// Service is the registry surface the handler drives.
type Service interface {
	CreateBatch(ctx context.Context, req service.CreateBatchRequest) (*service.CreateBatchResult, error)
	RetryMint(ctx context.Context, batchID id.BatchID, from, to int) (*service.CreateBatchResult, error)
	GetBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error)
	ListUnits(ctx context.Context, batchID id.BatchID) ([]*models.Unit, error)
	UpdateBatchStatus(ctx context.Context, batchID id.BatchID, actor id.OrgID, next models.BatchStatus) (*models.Batch, error)
	UpdateUnitStatus(ctx context.Context, serial id.SerialNumber, next models.UnitStatus) (*models.Unit, error)
	CreateOrganization(ctx context.Context, name string, orgType models.OrgType) (*models.Organization, error)
}

// VerifyService answers authenticity checks.
type VerifyService interface {
	VerifyBatch(ctx context.Context, batchID id.BatchID, presentedSig string) (verifier.BatchResult, error)
	VerifyUnit(ctx context.Context, serial id.SerialNumber, presentedSig string) (verifier.UnitResult, error)
}

// Handler handles registry and verification endpoints.
type Handler struct {
	logger         *slog.Logger
	registry       Service
	verify         VerifyService
	jwtValidator   middleware.JWTValidator
	adminTokenHash string
}

// New creates a new registry Handler.
func New(registry Service, verify VerifyService, logger *slog.Logger, jwtValidator middleware.JWTValidator, adminTokenHash string) *Handler {
	return &Handler{
		logger:         logger,
		registry:       registry,
		verify:         verify,
		jwtValidator:   jwtValidator,
		adminTokenHash: adminTokenHash,
	}
}

// Register mounts the registry routes on the router.
func (h *Handler) Register(r chi.Router) {
	// Public verification surface: consumers scanning printed codes, no auth.
	r.Group(func(r chi.Router) {
		r.Use(middleware.ScannerDevice)
		r.Get("/verify/batch/{batchID}", h.handleVerifyBatch)
		r.Get("/verify/unit/{serialNumber}", h.handleVerifyUnit)
	})

	// Organization-facing surface.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Use(middleware.Timeout(60 * time.Second)) // bulk mint is N ledger round-trips

		r.With(middleware.RequireRole(string(models.OrgTypeManufacturer), h.logger)).
			Post("/batches", h.handleCreateBatch)
		r.With(middleware.RequireRole(string(models.OrgTypeManufacturer), h.logger)).
			Post("/batches/{batchID}/mint", h.handleRetryMint)

		r.Get("/batches/{batchID}", h.handleGetBatch)
		r.Get("/batches/{batchID}/units", h.handleListUnits)
		r.Patch("/batches/{batchID}/status", h.handleUpdateBatchStatus)
		r.Patch("/units/{serialNumber}/status", h.handleUpdateUnitStatus)
	})

	// Bootstrap administration.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(h.adminTokenHash, h.logger))
		r.Post("/organizations", h.handleCreateOrganization)
	})
}

// handleVerifyBatch answers a scanned batch QR. A missing signature is a
// malformed request; an unknown id or failed signature is a normal answer
// with valid=false, never an error.
func (h *Handler) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	sig := r.URL.Query().Get("sig")
	if sig == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "sig query parameter is required"))
		return
	}

	result, err := h.verify.VerifyBatch(r.Context(), id.BatchID(chi.URLParam(r, "batchID")), sig)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "batch verification failed",
			"error", err, "request_id", requestcontext.RequestID(r.Context()))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBatchVerification(result))
}

func (h *Handler) handleVerifyUnit(w http.ResponseWriter, r *http.Request) {
	sig := r.URL.Query().Get("sig")
	if sig == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "sig query parameter is required"))
		return
	}

	result, err := h.verify.VerifyUnit(r.Context(), id.SerialNumber(chi.URLParam(r, "serialNumber")), sig)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "unit verification failed",
			"error", err, "request_id", requestcontext.RequestID(r.Context()))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUnitVerification(result))
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[createBatchRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.registry.CreateBatch(ctx, req.toServiceRequest(requestcontext.OrgID(ctx)))
	if err != nil {
		h.logger.WarnContext(ctx, "batch creation failed",
			"error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCreateBatchResponse(result))
}

func (h *Handler) handleRetryMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[retryMintRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.registry.RetryMint(ctx, id.BatchID(chi.URLParam(r, "batchID")), req.FromOrdinal, req.ToOrdinal)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCreateBatchResponse(result))
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.registry.GetBatch(r.Context(), id.BatchID(chi.URLParam(r, "batchID")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, batch)
}

func (h *Handler) handleListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.registry.ListUnits(r.Context(), id.BatchID(chi.URLParam(r, "batchID")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, unitListResponse{Units: units, Count: len(units)})
}

func (h *Handler) handleUpdateBatchStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[updateStatusRequest](w, r, h.logger)
	if !ok {
		return
	}

	batch, err := h.registry.UpdateBatchStatus(ctx,
		id.BatchID(chi.URLParam(r, "batchID")),
		requestcontext.OrgID(ctx),
		models.BatchStatus(req.Status),
	)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, batch)
}

func (h *Handler) handleUpdateUnitStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[updateStatusRequest](w, r, h.logger)
	if !ok {
		return
	}

	unit, err := h.registry.UpdateUnitStatus(r.Context(),
		id.SerialNumber(chi.URLParam(r, "serialNumber")),
		models.UnitStatus(req.Status),
	)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, unit)
}

func (h *Handler) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[createOrganizationRequest](w, r, h.logger)
	if !ok {
		return
	}

	org, err := h.registry.CreateOrganization(r.Context(), req.Name, models.OrgType(req.Type))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, org)
}
