package allocation

import "time"

// CreateAllocationRequest is the body of the create-allocation endpoint.
// Both fields are optional; the period label defaults to the settlement year.
type CreateAllocationRequest struct {
	PeriodLabel string `json:"period_label" validate:"omitempty,max=120"`
	Notes       string `json:"notes" validate:"omitempty,max=2000"`
}

// ItemResponse is the JSON shape of one allocation item. Amounts are fixed
// to two decimals and percentages to four, as persisted.
type ItemResponse struct {
	OperatorID       int64  `json:"operator_id"`
	AllocationBasis  string `json:"allocation_basis"`
	SharePercent     string `json:"share_percent"`
	TotalAllocated   string `json:"total_allocated"`
	DirectSettlement string `json:"direct_settlement"`
	TaxableAmount    string `json:"taxable_amount"`
	VATAmount        string `json:"vat_amount"`
	ExemptAmount     string `json:"exempt_amount"`
	NetPayable       string `json:"net_payable"`
}

// AllocationResponse is the JSON shape of an allocation with its items.
type AllocationResponse struct {
	ID             int64            `json:"id"`
	Reference      string           `json:"reference"`
	SettlementID   int64            `json:"settlement_id"`
	ParkID         int64            `json:"park_id"`
	PeriodLabel    string           `json:"period_label"`
	Notes          string           `json:"notes,omitempty"`
	Status         Status           `json:"status"`
	Mode           DistributionMode `json:"mode"`
	VATRatePercent string           `json:"vat_rate_percent"`
	TotalUsageFee  string           `json:"total_usage_fee"`
	TotalTaxable   string           `json:"total_taxable"`
	TotalExempt    string           `json:"total_exempt"`
	CreatedAt      time.Time        `json:"created_at"`
	Items          []ItemResponse   `json:"items"`
}

// NewAllocationResponse maps the domain model to its JSON shape.
func NewAllocationResponse(a *Allocation) AllocationResponse {
	resp := AllocationResponse{
		ID:             a.ID,
		Reference:      a.Reference.String(),
		SettlementID:   a.SettlementID,
		ParkID:         a.ParkID,
		PeriodLabel:    a.PeriodLabel,
		Notes:          a.Notes,
		Status:         a.Status,
		Mode:           a.Mode,
		VATRatePercent: a.VATRatePercent.StringFixed(2),
		TotalUsageFee:  a.TotalUsageFee.StringFixed(2),
		TotalTaxable:   a.TotalTaxable.StringFixed(2),
		TotalExempt:    a.TotalExempt.StringFixed(2),
		CreatedAt:      a.CreatedAt,
		Items:          make([]ItemResponse, 0, len(a.Items)),
	}
	for _, item := range a.Items {
		resp.Items = append(resp.Items, ItemResponse{
			OperatorID:       item.OperatorID,
			AllocationBasis:  item.AllocationBasis,
			SharePercent:     item.SharePercent.StringFixed(4),
			TotalAllocated:   item.TotalAllocated.StringFixed(2),
			DirectSettlement: item.DirectSettlement.StringFixed(2),
			TaxableAmount:    item.TaxableAmount.StringFixed(2),
			VATAmount:        item.VATAmount.StringFixed(2),
			ExemptAmount:     item.ExemptAmount.StringFixed(2),
			NetPayable:       item.NetPayable.StringFixed(2),
		})
	}
	return resp
}

// ShareResponse is the JSON shape of one dry-run operator share.
type ShareResponse struct {
	OperatorID         int64  `json:"operator_id"`
	OperatorName       string `json:"operator_name,omitempty"`
	TotalUnits         int    `json:"total_units"`
	SubsetUnits        int    `json:"subset_units"`
	TotalSharePercent  string `json:"total_share_percent"`
	SubsetSharePercent string `json:"subset_share_percent"`
	AllocationBasis    string `json:"allocation_basis"`
}

// NewShareResponses maps operator shares to their JSON shape.
func NewShareResponses(shares []OperatorShare) []ShareResponse {
	out := make([]ShareResponse, 0, len(shares))
	for _, share := range shares {
		out = append(out, ShareResponse{
			OperatorID:         share.OperatorID,
			OperatorName:       share.OperatorName,
			TotalUnits:         share.TotalUnits,
			SubsetUnits:        share.SubsetUnits,
			TotalSharePercent:  share.TotalSharePercent.StringFixed(4),
			SubsetSharePercent: share.SubsetSharePercent.StringFixed(4),
			AllocationBasis:    share.AllocationBasis,
		})
	}
	return out
}
