package models

import (
	"strings"
	"time"

	id "pharmatrace/pkg/domain"
	dErrors "pharmatrace/pkg/domain-errors"
)

// OrgType classifies an organization's place in the supply chain.
type OrgType string

const (
	OrgTypeManufacturer OrgType = "MANUFACTURER"
	OrgTypeDistributor  OrgType = "DISTRIBUTOR"
	OrgTypePharmacy     OrgType = "PHARMACY"
	OrgTypeHospital     OrgType = "HOSPITAL"
	OrgTypeRegulator    OrgType = "REGULATOR"
)

// Valid reports whether t is a known organization type.
func (t OrgType) Valid() bool {
	switch t {
	case OrgTypeManufacturer, OrgTypeDistributor, OrgTypePharmacy, OrgTypeHospital, OrgTypeRegulator:
		return true
	}
	return false
}

// Organization is a supply-chain participant. The identity provider owns
// authentication; this record carries only what transfer validation needs.
type Organization struct {
	ID         id.OrgID  `json:"id"`
	Name       string    `json:"name"`
	Type       OrgType   `json:"type"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewOrganization validates and constructs an organization record.
func NewOrganization(orgID id.OrgID, name string, orgType OrgType, now time.Time) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "organization name is required")
	}
	if !orgType.Valid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown organization type "+string(orgType))
	}
	return &Organization{
		ID:        orgID,
		Name:      name,
		Type:      orgType,
		IsActive:  true,
		CreatedAt: now,
	}, nil
}
