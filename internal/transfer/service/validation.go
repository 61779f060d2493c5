package service

import (
	"context"
	"fmt"
	"time"

	registrymodels "pharmatrace/internal/registry/models"
	"pharmatrace/internal/transfer/models"
	id "pharmatrace/pkg/domain"
)

// validation accumulates the outcome of one rule pass. Rule numbers in the
// violation messages are part of the caller-facing contract: clients key
// their messaging off them.
type validation struct {
	violations []string
	warnings   []string

	fromOrg *registrymodels.Organization
	toOrg   *registrymodels.Organization
	batch   *registrymodels.Batch
}

func (v *validation) violate(rule int, format string, args ...any) {
	v.violations = append(v.violations, fmt.Sprintf("rule %d: %s", rule, fmt.Sprintf(format, args...)))
}

func (v *validation) warn(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

// validate runs the ordered rule set, accumulating every applicable violation
// and warning. Rules whose subject failed to load under an earlier rule are
// skipped: a missing batch is one violation, not five.
//
//	1. both organizations exist and are active (unverified orgs warn)
//	2. the source organization currently owns the batch
//	3. the batch's lifecycle status permits transfer
//	4. the batch has not expired
//	5. the (source type, destination type) pair is an allowed route
//	6. no transfer for the batch is outstanding
//	7. a requested quantity fits the currently available units
func (s *TransferService) validate(ctx context.Context, req TransferRequest, now time.Time) *validation {
	v := &validation{}

	// Rule 1: organizations.
	v.fromOrg = s.checkOrg(ctx, v, req.FromOrgID, "source")
	v.toOrg = s.checkOrg(ctx, v, req.ToOrgID, "destination")

	// Rule 2: batch exists and is owned by the source.
	batch, err := s.batches.FindByID(ctx, req.BatchID)
	if err != nil {
		v.violate(2, "batch %s does not exist", req.BatchID)
	} else {
		v.batch = batch
		owner, err := s.CurrentOwner(ctx, req.BatchID)
		if err != nil || owner != req.FromOrgID {
			v.violate(2, "batch %s is not owned by the source organization", req.BatchID)
		}
	}

	if v.batch != nil {
		// Rule 3: lifecycle status.
		if !v.batch.Status.Transferable() {
			v.violate(3, "batch status %s does not permit transfer", v.batch.Status)
		}

		// Rule 4: expiry.
		if v.batch.IsExpired(now) {
			v.violate(4, "batch expired on %s", v.batch.ExpiryDate.Format("2006-01-02"))
		} else if v.batch.ExpiryDate.Before(now.Add(expiryWarningWindow)) {
			v.warn("batch expires within 30 days (%s)", v.batch.ExpiryDate.Format("2006-01-02"))
		}
	}

	// Rule 5: route policy.
	if v.fromOrg != nil && v.toOrg != nil {
		policy, ok := models.LookupRule(v.fromOrg.Type, v.toOrg.Type)
		if !ok || !policy.Allowed {
			v.violate(5, "transfers from %s to %s are not permitted", v.fromOrg.Type, v.toOrg.Type)
		}
	}

	// Rule 6: no outstanding transfer. Advisory; the storage-level uniqueness
	// constraint is what actually closes the race.
	if v.batch != nil {
		if _, err := s.transfers.FindActiveByBatch(ctx, req.BatchID); err == nil {
			v.violate(6, "an active transfer already exists for this batch")
		}
	}

	// Rule 7: quantity.
	if req.Quantity < 0 {
		v.violate(7, "quantity must not be negative")
	} else if req.Quantity > 0 && v.batch != nil {
		available, err := s.units.CountAvailable(ctx, req.BatchID)
		if err != nil {
			v.violate(7, "available quantity could not be determined")
		} else if req.Quantity > available {
			v.violate(7, "requested quantity %d exceeds available units %d", req.Quantity, available)
		}
		if req.Quantity > largeTransferThreshold {
			v.warn("requested quantity %d exceeds the large-transfer threshold", req.Quantity)
		}
	}

	return v
}

// checkOrg applies rule 1 to one side of the transfer and returns the org
// record when it loaded, for use by later rules.
func (s *TransferService) checkOrg(ctx context.Context, v *validation, orgID id.OrgID, side string) *registrymodels.Organization {
	if orgID.IsZero() {
		v.violate(1, "%s organization is required", side)
		return nil
	}
	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		v.violate(1, "%s organization %s does not exist", side, orgID)
		return nil
	}
	if !org.IsActive {
		v.violate(1, "%s organization %s is inactive", side, org.Name)
	}
	if !org.IsVerified {
		v.warn("%s organization %s is not verified", side, org.Name)
	}
	return org
}
