package models

import (
	registrymodels "pharmatrace/internal/registry/models"
)

// TransferType classifies a transfer for reporting. Informational only; it
// never gates a transition.
type TransferType string

const (
	TransferTypeWholesale     TransferType = "WHOLESALE"
	TransferTypeDistribution  TransferType = "DISTRIBUTION"
	TransferTypeDirectSale    TransferType = "DIRECT_SALE"
	TransferTypeInterFacility TransferType = "INTER_FACILITY"
	TransferTypeReturn        TransferType = "RETURN"
	TransferTypeOther         TransferType = "OTHER"
)

// RulePolicy is the policy for one (source type, destination type) pair.
// RequiresApproval forces the transfer through IN_PROGRESS; single-step
// PENDING -> COMPLETED is reserved for pairs without it.
type RulePolicy struct {
	Allowed          bool
	RequiresApproval bool
}

type orgTypePair struct {
	From registrymodels.OrgType
	To   registrymodels.OrgType
}

// ruleTable encodes the legitimate supply-chain topology as a flat lookup:
// forward distribution edges, direct manufacturer sales, same-type
// inter-facility moves, and reverse return edges. Pairs absent from the table
// are disallowed. Regulators are deliberately absent as a source: they
// observe custody, they never hold it.
var ruleTable = map[orgTypePair]RulePolicy{
	// Forward distribution.
	{registrymodels.OrgTypeManufacturer, registrymodels.OrgTypeDistributor}: {Allowed: true},
	{registrymodels.OrgTypeDistributor, registrymodels.OrgTypePharmacy}:     {Allowed: true},
	{registrymodels.OrgTypeDistributor, registrymodels.OrgTypeHospital}:     {Allowed: true},

	// Direct sales from the manufacturer.
	{registrymodels.OrgTypeManufacturer, registrymodels.OrgTypePharmacy}: {Allowed: true},
	{registrymodels.OrgTypeManufacturer, registrymodels.OrgTypeHospital}: {Allowed: true},

	// Inter-facility moves between peers.
	{registrymodels.OrgTypeHospital, registrymodels.OrgTypeHospital}: {Allowed: true},
	{registrymodels.OrgTypePharmacy, registrymodels.OrgTypePharmacy}: {Allowed: true},

	// Returns move upstream and require the receiving side to accept first.
	{registrymodels.OrgTypePharmacy, registrymodels.OrgTypeDistributor}:    {Allowed: true, RequiresApproval: true},
	{registrymodels.OrgTypeHospital, registrymodels.OrgTypeDistributor}:    {Allowed: true, RequiresApproval: true},
	{registrymodels.OrgTypeDistributor, registrymodels.OrgTypeManufacturer}: {Allowed: true, RequiresApproval: true},
}

// LookupRule returns the policy for a (source, destination) type pair. The
// second return is false when the pair is not in the table, which callers
// treat as disallowed.
func LookupRule(from, to registrymodels.OrgType) (RulePolicy, bool) {
	p, ok := ruleTable[orgTypePair{From: from, To: to}]
	return p, ok
}

// GetTransferType classifies a (source, destination) type pair.
func GetTransferType(from, to registrymodels.OrgType) TransferType {
	switch {
	case from == registrymodels.OrgTypeManufacturer && to == registrymodels.OrgTypeDistributor:
		return TransferTypeWholesale
	case from == registrymodels.OrgTypeDistributor && (to == registrymodels.OrgTypePharmacy || to == registrymodels.OrgTypeHospital):
		return TransferTypeDistribution
	case from == registrymodels.OrgTypeManufacturer && (to == registrymodels.OrgTypePharmacy || to == registrymodels.OrgTypeHospital):
		return TransferTypeDirectSale
	case from == to:
		return TransferTypeInterFacility
	case to == registrymodels.OrgTypeManufacturer || (to == registrymodels.OrgTypeDistributor && from != registrymodels.OrgTypeManufacturer):
		return TransferTypeReturn
	}
	return TransferTypeOther
}
