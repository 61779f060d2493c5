package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	registrymodels "pharmatrace/internal/registry/models"
	dErrors "pharmatrace/pkg/domain-errors"
)

func TestStateMachineEdges(t *testing.T) {
	legal := []struct{ from, to TransferStatus }{
		{TransferStatusPending, TransferStatusInProgress},
		{TransferStatusPending, TransferStatusCancelled},
		{TransferStatusPending, TransferStatusCompleted},
		{TransferStatusInProgress, TransferStatusCompleted},
		{TransferStatusInProgress, TransferStatusFailed},
	}
	for _, e := range legal {
		assert.True(t, e.from.CanTransitionTo(e.to), "%s -> %s", e.from, e.to)
	}

	illegal := []struct{ from, to TransferStatus }{
		{TransferStatusPending, TransferStatusFailed},
		{TransferStatusInProgress, TransferStatusCancelled},
		{TransferStatusInProgress, TransferStatusPending},
		{TransferStatusCompleted, TransferStatusPending},
		{TransferStatusFailed, TransferStatusInProgress},
		{TransferStatusCancelled, TransferStatusCompleted},
	}
	for _, e := range illegal {
		assert.False(t, e.from.CanTransitionTo(e.to), "%s -> %s", e.from, e.to)
	}
}

func TestTerminalStatesAdmitNothing(t *testing.T) {
	all := []TransferStatus{
		TransferStatusPending, TransferStatusInProgress,
		TransferStatusCompleted, TransferStatusFailed, TransferStatusCancelled,
	}
	for _, terminal := range []TransferStatus{TransferStatusCompleted, TransferStatusFailed, TransferStatusCancelled} {
		for _, next := range all {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestAdvanceStampsTransferDateOnCompletion(t *testing.T) {
	now := time.Now()
	tr := &Transfer{Status: TransferStatusPending}

	require.NoError(t, tr.Advance(TransferStatusInProgress, now))
	assert.Nil(t, tr.TransferDate)

	later := now.Add(time.Hour)
	require.NoError(t, tr.Advance(TransferStatusCompleted, later))
	require.NotNil(t, tr.TransferDate)
	assert.Equal(t, later, *tr.TransferDate)
}

func TestAdvanceRejectsIllegalEdge(t *testing.T) {
	tr := &Transfer{Status: TransferStatusCancelled}
	err := tr.Advance(TransferStatusCompleted, time.Now())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	assert.Equal(t, TransferStatusCancelled, tr.Status, "status untouched on rejection")
}

func TestRuleTableTopology(t *testing.T) {
	allowed := []struct{ from, to registrymodels.OrgType }{
		{registrymodels.OrgTypeManufacturer, registrymodels.OrgTypeDistributor},
		{registrymodels.OrgTypeManufacturer, registrymodels.OrgTypePharmacy},
		{registrymodels.OrgTypeManufacturer, registrymodels.OrgTypeHospital},
		{registrymodels.OrgTypeDistributor, registrymodels.OrgTypePharmacy},
		{registrymodels.OrgTypeDistributor, registrymodels.OrgTypeHospital},
		{registrymodels.OrgTypeHospital, registrymodels.OrgTypeHospital},
		{registrymodels.OrgTypePharmacy, registrymodels.OrgTypePharmacy},
		{registrymodels.OrgTypePharmacy, registrymodels.OrgTypeDistributor},
		{registrymodels.OrgTypeHospital, registrymodels.OrgTypeDistributor},
		{registrymodels.OrgTypeDistributor, registrymodels.OrgTypeManufacturer},
	}
	for _, pair := range allowed {
		policy, ok := LookupRule(pair.from, pair.to)
		require.True(t, ok, "%s -> %s", pair.from, pair.to)
		assert.True(t, policy.Allowed)
	}
}

func TestRegulatorsNeverHoldCustody(t *testing.T) {
	destinations := []registrymodels.OrgType{
		registrymodels.OrgTypeManufacturer,
		registrymodels.OrgTypeDistributor,
		registrymodels.OrgTypePharmacy,
		registrymodels.OrgTypeHospital,
		registrymodels.OrgTypeRegulator,
	}
	for _, to := range destinations {
		_, ok := LookupRule(registrymodels.OrgTypeRegulator, to)
		assert.False(t, ok, "regulator -> %s must be absent from the table", to)
		_, ok = LookupRule(to, registrymodels.OrgTypeRegulator)
		assert.False(t, ok, "%s -> regulator must be absent from the table", to)
	}
}

func TestReturnsRequireApproval(t *testing.T) {
	returns := []struct{ from, to registrymodels.OrgType }{
		{registrymodels.OrgTypePharmacy, registrymodels.OrgTypeDistributor},
		{registrymodels.OrgTypeHospital, registrymodels.OrgTypeDistributor},
		{registrymodels.OrgTypeDistributor, registrymodels.OrgTypeManufacturer},
	}
	for _, pair := range returns {
		policy, ok := LookupRule(pair.from, pair.to)
		require.True(t, ok)
		assert.True(t, policy.RequiresApproval, "%s -> %s", pair.from, pair.to)
	}

	policy, ok := LookupRule(registrymodels.OrgTypeManufacturer, registrymodels.OrgTypeDistributor)
	require.True(t, ok)
	assert.False(t, policy.RequiresApproval)
}

func TestGetTransferTypeClassification(t *testing.T) {
	cases := []struct {
		from, to registrymodels.OrgType
		expected TransferType
	}{
		{registrymodels.OrgTypeManufacturer, registrymodels.OrgTypeDistributor, TransferTypeWholesale},
		{registrymodels.OrgTypeDistributor, registrymodels.OrgTypePharmacy, TransferTypeDistribution},
		{registrymodels.OrgTypeDistributor, registrymodels.OrgTypeHospital, TransferTypeDistribution},
		{registrymodels.OrgTypeManufacturer, registrymodels.OrgTypePharmacy, TransferTypeDirectSale},
		{registrymodels.OrgTypeManufacturer, registrymodels.OrgTypeHospital, TransferTypeDirectSale},
		{registrymodels.OrgTypeHospital, registrymodels.OrgTypeHospital, TransferTypeInterFacility},
		{registrymodels.OrgTypePharmacy, registrymodels.OrgTypePharmacy, TransferTypeInterFacility},
		{registrymodels.OrgTypePharmacy, registrymodels.OrgTypeDistributor, TransferTypeReturn},
		{registrymodels.OrgTypeHospital, registrymodels.OrgTypeDistributor, TransferTypeReturn},
		{registrymodels.OrgTypeDistributor, registrymodels.OrgTypeManufacturer, TransferTypeReturn},
		{registrymodels.OrgTypeRegulator, registrymodels.OrgTypePharmacy, TransferTypeOther},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, GetTransferType(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}
