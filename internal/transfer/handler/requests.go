package handler

import (
	"pharmatrace/internal/transfer/models"
	id "pharmatrace/pkg/domain"
)

// requestTransferRequest is the JSON body for POST /transfers. The source
// organization is always the authenticated caller, never a body field.
type requestTransferRequest struct {
	BatchID  string `json:"batch_id"`
	ToOrgID  string `json:"to_org_id"`
	Quantity int    `json:"quantity,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type advanceRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type transferListResponse struct {
	Transfers []*models.Transfer `json:"transfers"`
	Count     int                `json:"count"`
}

type ownerResponse struct {
	BatchID    id.BatchID `json:"batch_id"`
	OwnerOrgID id.OrgID   `json:"owner_org_id"`
}
