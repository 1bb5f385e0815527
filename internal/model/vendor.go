package model

import "time"

// VendorContract is a single contract held with a vendor.
type VendorContract struct {
	ContractID string     `json:"contract_id"`
	StartDate  *time.Time `json:"contract_start_date,omitempty"`
	EndDate    *time.Time `json:"contract_end_date,omitempty"`
	Value      float64    `json:"contract_value,omitempty"`
	Status     string     `json:"status,omitempty"` // active, expired, terminated
}

// Vendor is the vendor record. Partition key: the fixed VendorPartition.
// Sort key: VendorID. Vendors are owned by a separate vendor-management
// service and are read-only from the agents' perspective.
type Vendor struct {
	VendorID string `json:"vendor_id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`

	Active   bool `json:"active"`
	Approved bool `json:"approved"`

	// AutoApprove gates the whole auto-approval path for this vendor.
	// AutoApproveLimit of zero means no vendor-level limit is configured.
	AutoApprove      bool    `json:"auto_approve"`
	AutoApproveLimit float64 `json:"auto_approve_limit,omitempty"`
	SpendLimit       float64 `json:"spend_limit,omitempty"`

	Contracts []VendorContract `json:"contracts,omitempty"`

	CreatedDate time.Time `json:"created_date"`
	UpdatedDate time.Time `json:"updated_date"`
}
