package store

import (
	"context"
	"time"

	"pharmatrace/internal/registry/models"
	orgstore "pharmatrace/internal/registry/store/org"
	id "pharmatrace/pkg/domain"
)

// SeedDevOrganizations creates one organization of each custody-holding type
// for local development so transfer flows can be exercised immediately.
func SeedDevOrganizations(os *orgstore.InMemory) map[models.OrgType]*models.Organization {
	now := time.Now()
	orgs := make(map[models.OrgType]*models.Organization)

	for _, orgType := range []models.OrgType{
		models.OrgTypeManufacturer,
		models.OrgTypeDistributor,
		models.OrgTypePharmacy,
		models.OrgTypeHospital,
		models.OrgTypeRegulator,
	} {
		o := &models.Organization{
			ID:         id.NewOrgID(),
			Name:       "dev-" + string(orgType),
			Type:       orgType,
			IsActive:   true,
			IsVerified: true,
			CreatedAt:  now,
		}
		_ = os.Create(context.Background(), o)
		orgs[orgType] = o
	}
	return orgs
}
