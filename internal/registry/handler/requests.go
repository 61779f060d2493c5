package handler

import (
	"time"

	"pharmatrace/internal/registry/service"
	id "pharmatrace/pkg/domain"
)

// createBatchRequest is the JSON body for POST /batches. The creator is never
// taken from the body; it comes from the authenticated caller's token.
type createBatchRequest struct {
	BatchID             string    `json:"batch_id,omitempty"`
	DrugName            string    `json:"drug_name"`
	Composition         string    `json:"composition"`
	BatchSize           int       `json:"batch_size"`
	ManufacturingDate   time.Time `json:"manufacturing_date"`
	ExpiryDate          time.Time `json:"expiry_date"`
	StorageInstructions string    `json:"storage_instructions,omitempty"`
}

func (r createBatchRequest) toServiceRequest(creator id.OrgID) service.CreateBatchRequest {
	return service.CreateBatchRequest{
		BatchID:             id.BatchID(r.BatchID),
		CreatorOrgID:        creator,
		DrugName:            r.DrugName,
		Composition:         r.Composition,
		BatchSize:           r.BatchSize,
		ManufacturingDate:   r.ManufacturingDate,
		ExpiryDate:          r.ExpiryDate,
		StorageInstructions: r.StorageInstructions,
	}
}

// retryMintRequest is the JSON body for POST /batches/{batchID}/mint. An
// empty body (zero range) means "mint whatever is still missing".
type retryMintRequest struct {
	FromOrdinal int `json:"from_ordinal,omitempty"`
	ToOrdinal   int `json:"to_ordinal,omitempty"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type createOrganizationRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
