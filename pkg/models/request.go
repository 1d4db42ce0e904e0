package models

// RequestType identifies the kind of business request routed through an approval chain.
type RequestType string

const (
	RequestTypeLicenseRequest      RequestType = "license_request"
	RequestTypeSoftwareDeclaration RequestType = "software_declaration"
	RequestTypeBudgetApproval      RequestType = "budget_approval"
	RequestTypeContractRenewal     RequestType = "contract_renewal"
	RequestTypeUserInvitation      RequestType = "user_invitation"
)

// RequestTypes lists every supported request type.
var RequestTypes = []RequestType{
	RequestTypeLicenseRequest,
	RequestTypeSoftwareDeclaration,
	RequestTypeBudgetApproval,
	RequestTypeContractRenewal,
	RequestTypeUserInvitation,
}

func (t RequestType) IsValid() bool {
	for _, known := range RequestTypes {
		if t == known {
			return true
		}
	}

	return false
}

// Priority drives deadline computation and template tier selection.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every supported priority, lowest first.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) IsValid() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}

	return false
}
