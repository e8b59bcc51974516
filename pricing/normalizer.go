package pricing

import (
	"fmt"
)

// Purchase option labels as published in the price catalogs. Rows carrying
// any other label are ignored without error.
const (
	optionNoUpfront      = "No Upfront"
	optionPartialUpfront = "Partial Upfront"
	optionAllUpfront     = "All Upfront"
)

func hoursForTerm(termYears int) float64 {
	return float64(termYears) * HoursPerYear
}

// onDemandPricing computes the on-demand rate and term totals from the
// zero-or-one matching row. Missing row or unparsable price yields zeros.
func onDemandPricing(rows []CatalogRow, qty int) (rate, total1y, total3y float64) {
	if len(rows) == 0 {
		return 0, 0, 0
	}
	row := parseOnDemandRow(rows[0])
	rate = row.hourlyRate
	q := float64(qty)
	return rate, rate * HoursPerYear * q, rate * HoursPerTerm3Y * q
}

// reservedTermPricing folds the reserved rows for one term into a cost
// breakdown. The partial-upfront fee and rate arrive as two separate rows
// whose order is not guaranteed, so both components accumulate
// independently and the total is finalized afterwards.
func reservedTermPricing(rows []reservedRow, termYears, qty int) TermPricing {
	lease := fmt.Sprintf("%dyr", termYears)
	hours := hoursForTerm(termYears)
	q := float64(qty)

	var tp TermPricing
	var upfrontFee, planCost float64

	for _, row := range rows {
		if row.leaseLength != lease {
			continue
		}
		switch row.purchaseOption {
		case optionNoUpfront:
			tp.NoUpfrontTotalCost = row.price * hours * q
			tp.NoUpfrontHourlyRate = row.price
		case optionPartialUpfront:
			if row.isUpfrontFee() {
				upfrontFee = row.price * q
			} else {
				planCost = row.price * hours * q
				tp.PartialUpfrontHourlyRate = row.price
			}
		case optionAllUpfront:
			if row.isUpfrontFee() {
				total := row.price * q
				tp.AllUpfrontTotalCost = total
				if hours > 0 {
					tp.AllUpfrontHourlyRate = total / hours
				}
			}
		}
	}

	tp.PartialUpfront = PaymentTimingBreakdown{
		TotalCost:  upfrontFee + planCost,
		UpfrontFee: upfrontFee,
		PlanCost:   planCost,
	}
	return tp
}

// savingsPlanTermPricing folds the savings plan rows for one term into a
// cost breakdown. Both plan families publish the same shape, so one routine
// serves both. The partial-upfront 50/50 split is the provider's billing
// policy for savings plans; the rate files carry no upfront-fee column.
// Duplicate rows for the same payment option overwrite (last seen wins).
func savingsPlanTermPricing(rows []savingsPlanRow, termYears, qty int) TermPricing {
	lease := fmt.Sprintf("%d", termYears)
	hours := hoursForTerm(termYears)
	q := float64(qty)

	var tp TermPricing
	for _, row := range rows {
		if row.leaseLength != lease {
			continue
		}
		tco := row.rate * hours * q
		switch row.purchaseOption {
		case optionNoUpfront:
			tp.NoUpfrontTotalCost = tco
			tp.NoUpfrontHourlyRate = row.rate
		case optionPartialUpfront:
			tp.PartialUpfront = PaymentTimingBreakdown{
				TotalCost:  tco,
				UpfrontFee: tco * 0.5,
				PlanCost:   tco * 0.5,
			}
			tp.PartialUpfrontHourlyRate = row.rate
		case optionAllUpfront:
			tp.AllUpfrontTotalCost = tco
			tp.AllUpfrontHourlyRate = row.rate
		}
	}
	return tp
}

// authoritativeOS returns the catalog's operating system value when one is
// disclosed: the on-demand row takes priority, then the first reserved row.
// Empty means the request's own value stands.
func authoritativeOS(onDemand []CatalogRow, reserved []reservedRow) string {
	if len(onDemand) > 0 {
		if os := parseOnDemandRow(onDemand[0]).operatingSystem; os != "" {
			return os
		}
	}
	if len(reserved) > 0 && reserved[0].operatingSystem != "" {
		return reserved[0].operatingSystem
	}
	return ""
}
