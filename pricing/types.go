// Package pricing computes projected EC2 instance costs across purchasing
// scenarios: on-demand, standard reserved instances, and the two savings
// plan families, each at 1-year and 3-year terms with three payment options.
package pricing

import (
	"context"
	"fmt"
	"strings"
)

// ScenarioKind identifies one purchasing model lookup against the catalog.
type ScenarioKind string

const (
	ScenarioOnDemand            ScenarioKind = "on_demand"
	ScenarioReserved            ScenarioKind = "reserved"
	ScenarioComputeSavingsPlan  ScenarioKind = "savings_plan_compute"
	ScenarioInstanceSavingsPlan ScenarioKind = "savings_plan_instance"
)

// Hours used to annualize an hourly rate into a term total. Fixed 365-day
// years, no leap-year correction.
const (
	HoursPerYear   = 8760
	HoursPerTerm3Y = 26280
)

// CatalogRow is one price-catalog record as it comes out of the warehouse.
// All values are strings; numeric fields are parsed defensively downstream.
type CatalogRow map[string]string

// Filter carries the lookup attributes for one scenario query. Tenancy is
// only meaningful for on-demand and reserved lookups.
type Filter struct {
	RegionCode   string
	InstanceType string
	Operation    string
	Tenancy      string
}

// CatalogSource is the read interface the engine consumes. Implementations
// must return an empty slice (not an error) when no rows match; transport
// failures may surface as errors and are treated as "no rows" by the engine.
type CatalogSource interface {
	Lookup(ctx context.Context, kind ScenarioKind, f Filter) ([]CatalogRow, error)
}

// InstanceConfig is one pricing request unit.
type InstanceConfig struct {
	RegionCode      string `json:"region_code"`
	InstanceType    string `json:"instance_type"`
	Operation       string `json:"operation"`
	OperatingSystem string `json:"operating_system"`
	Tenancy         string `json:"product_tenancy"`
	Quantity        int    `json:"qty"`
}

// Normalize applies defaults and validates required fields.
func (c *InstanceConfig) Normalize() error {
	var missing []string
	if c.RegionCode == "" {
		missing = append(missing, "region_code")
	}
	if c.InstanceType == "" {
		missing = append(missing, "instance_type")
	}
	if c.Operation == "" {
		missing = append(missing, "operation")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if c.Tenancy == "" {
		c.Tenancy = "Shared"
	}
	if c.Quantity == 0 {
		c.Quantity = 1
	}
	if c.Quantity < 1 {
		return fmt.Errorf("qty must be >= 1, got %d", c.Quantity)
	}
	return nil
}

func (c InstanceConfig) filter() Filter {
	return Filter{
		RegionCode:   c.RegionCode,
		InstanceType: c.InstanceType,
		Operation:    c.Operation,
		Tenancy:      c.Tenancy,
	}
}

// PaymentTimingBreakdown splits a partial-upfront commitment into its
// upfront fee and ongoing plan cost. TotalCost = UpfrontFee + PlanCost.
type PaymentTimingBreakdown struct {
	TotalCost  float64 `json:"total_cost"`
	UpfrontFee float64 `json:"upfront_fee"`
	PlanCost   float64 `json:"plan_cost"`
}

// TermPricing is the cost breakdown for one (scenario, term) group across
// the three payment timings. Always fully shaped, zero when unavailable.
type TermPricing struct {
	NoUpfrontTotalCost       float64                `json:"no_upfront_total_cost"`
	NoUpfrontHourlyRate      float64                `json:"no_upfront_hourly_rate"`
	PartialUpfront           PaymentTimingBreakdown `json:"partial_upfront_total_cost"`
	PartialUpfrontHourlyRate float64                `json:"partial_upfront_hourly_rate"`
	AllUpfrontTotalCost      float64                `json:"all_upfront_total_cost"`
	AllUpfrontHourlyRate     float64                `json:"all_upfront_hourly_rate"`
}

// PricingResult is the canonical output for one instance configuration.
// Constructed fresh per request and never partially populated: any failure
// degrades the whole result to zeros rather than surfacing a mixture.
type PricingResult struct {
	OnDemandHourlyRate     float64 `json:"on_demand_hourly_rate"`
	OnDemand1YearTotalCost float64 `json:"on_demand_1_year_total_cost"`
	OnDemand3YearTotalCost float64 `json:"on_demand_3_year_total_cost"`

	ComputeSavingsPlan1Year TermPricing `json:"compute_savings_plan_1_year"`
	ComputeSavingsPlan3Year TermPricing `json:"compute_savings_plan_3_year"`

	EC2SavingsPlan1Year TermPricing `json:"ec2_savings_plan_1_year"`
	EC2SavingsPlan3Year TermPricing `json:"ec2_savings_plan_3_year"`

	Reserved1Year TermPricing `json:"standard_reserved_instance_1_year"`
	Reserved3Year TermPricing `json:"standard_reserved_instance_3_year"`
}

// NewZeroResult returns the all-zero result used as the degraded fallback.
func NewZeroResult() *PricingResult {
	return &PricingResult{}
}
