// Package handler exposes the transfer engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pharmatrace/internal/platform/middleware"
	"pharmatrace/internal/transfer/models"
	"pharmatrace/internal/transfer/service"
	id "pharmatrace/pkg/domain"
	dErrors "pharmatrace/pkg/domain-errors"
	"pharmatrace/pkg/platform/httputil"
	"pharmatrace/pkg/requestcontext"
)

// Service is the transfer surface the handler drives.
type Service interface {
	RequestTransfer(ctx context.Context, req service.TransferRequest) (*service.TransferResult, error)
	Advance(ctx context.Context, transferID id.TransferID, actingOrg id.OrgID, next models.TransferStatus, notes string) (*models.Transfer, error)
	GetTransfer(ctx context.Context, transferID id.TransferID) (*models.Transfer, error)
	ListTransfers(ctx context.Context, batchID id.BatchID) ([]*models.Transfer, error)
	CurrentOwner(ctx context.Context, batchID id.BatchID) (id.OrgID, error)
}

// Handler handles transfer endpoints.
type Handler struct {
	logger       *slog.Logger
	transfers    Service
	jwtValidator middleware.JWTValidator
}

// New creates a new transfer Handler.
func New(transfers Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, transfers: transfers, jwtValidator: jwtValidator}
}

// Register mounts the transfer routes on the router. Everything here is
// organization-facing and authenticated.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/transfers", h.handleRequestTransfer)
		r.Post("/transfers/{transferID}/advance", h.handleAdvance)
		r.Get("/transfers/{transferID}", h.handleGetTransfer)
		r.Get("/batches/{batchID}/transfers", h.handleListTransfers)
		r.Get("/batches/{batchID}/owner", h.handleCurrentOwner)
	})
}

// handleRequestTransfer creates a transfer sourced from the authenticated
// organization; a caller cannot move custody out of someone else's hands.
func (h *Handler) handleRequestTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[requestTransferRequest](w, r, h.logger)
	if !ok {
		return
	}
	toOrg, err := id.ParseOrgID(req.ToOrgID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "to_org_id must be a UUID"))
		return
	}

	result, err := h.transfers.RequestTransfer(ctx, service.TransferRequest{
		BatchID:   id.BatchID(req.BatchID),
		FromOrgID: requestcontext.OrgID(ctx),
		ToOrgID:   toOrg,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "transfer request rejected",
			"error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	transferID, err := id.ParseTransferID(chi.URLParam(r, "transferID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "transfer id must be a UUID"))
		return
	}

	req, ok := httputil.Decode[advanceRequest](w, r, h.logger)
	if !ok {
		return
	}

	transfer, err := h.transfers.Advance(ctx, transferID, requestcontext.OrgID(ctx),
		models.TransferStatus(req.Status), req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transfer)
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	transferID, err := id.ParseTransferID(chi.URLParam(r, "transferID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "transfer id must be a UUID"))
		return
	}

	transfer, err := h.transfers.GetTransfer(r.Context(), transferID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transfer)
}

func (h *Handler) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.transfers.ListTransfers(r.Context(), id.BatchID(chi.URLParam(r, "batchID")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transferListResponse{Transfers: transfers, Count: len(transfers)})
}

// handleCurrentOwner resolves the batch's owner from its transfer history.
func (h *Handler) handleCurrentOwner(w http.ResponseWriter, r *http.Request) {
	batchID := id.BatchID(chi.URLParam(r, "batchID"))
	owner, err := h.transfers.CurrentOwner(r.Context(), batchID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ownerResponse{BatchID: batchID, OwnerOrgID: owner})
}
