package handler

import (
	"pharmatrace/internal/registry/models"
	"pharmatrace/internal/registry/service"
	"pharmatrace/internal/registry/verifier"
)

// batchVerificationResponse is the public answer to a scanned batch QR. The
// record is null unless the signature verified.
type batchVerificationResponse struct {
	Valid bool          `json:"valid"`
	Batch *models.Batch `json:"batch"`
}

type unitVerificationResponse struct {
	Valid bool         `json:"valid"`
	Unit  *models.Unit `json:"unit"`
}

func toBatchVerification(r verifier.BatchResult) batchVerificationResponse {
	return batchVerificationResponse{Valid: r.Valid, Batch: r.Batch}
}

func toUnitVerification(r verifier.UnitResult) unitVerificationResponse {
	return unitVerificationResponse{Valid: r.Valid, Unit: r.Unit}
}

// createBatchResponse carries the batch plus the mint report so callers can
// detect a partial mint and retry the missing ordinals.
type createBatchResponse struct {
	Batch *models.Batch      `json:"batch"`
	Mint  service.MintReport `json:"mint"`
}

func toCreateBatchResponse(r *service.CreateBatchResult) createBatchResponse {
	return createBatchResponse{Batch: r.Batch, Mint: r.Mint}
}

type unitListResponse struct {
	Units []*models.Unit `json:"units"`
	Count int            `json:"count"`
}
