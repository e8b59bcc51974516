package pricing

import (
	"strconv"
	"strings"
)

// Catalog column names as loaded from the AWS price list CSVs. The global
// on-demand/reserved file and the savings plan files use different headers
// for the same concepts, hence the two sets.
const (
	colPricePerUnit     = "priceperunit"
	colOperatingSystem  = "operating_system"
	colLeaseLength      = "leasecontractlength"
	colPurchaseOption   = "purchaseoption"
	colPriceDescription = "pricedescription"
	colDiscountedRate   = "discountedrate"
)

// parsePrice parses a catalog price field. Absent, empty, or non-numeric
// values contribute 0.0 rather than an error.
func parsePrice(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// onDemandRow is the typed view of the zero-or-one on-demand catalog row.
type onDemandRow struct {
	hourlyRate      float64
	operatingSystem string
}

func parseOnDemandRow(r CatalogRow) onDemandRow {
	return onDemandRow{
		hourlyRate:      parsePrice(r[colPricePerUnit]),
		operatingSystem: r[colOperatingSystem],
	}
}

// reservedRow is the typed view of one standard reserved instance row.
// A single reserved offering can appear as two correlated rows: an hourly
// rate row and an "Upfront Fee" row, distinguished by the description.
type reservedRow struct {
	leaseLength     string // "1yr" or "3yr"
	purchaseOption  string // "No Upfront", "Partial Upfront", "All Upfront"
	description     string
	price           float64
	operatingSystem string
}

func parseReservedRow(r CatalogRow) reservedRow {
	return reservedRow{
		leaseLength:     r[colLeaseLength],
		purchaseOption:  r[colPurchaseOption],
		description:     r[colPriceDescription],
		price:           parsePrice(r[colPricePerUnit]),
		operatingSystem: r[colOperatingSystem],
	}
}

func (r reservedRow) isUpfrontFee() bool {
	return strings.Contains(r.description, "Upfront Fee")
}

// savingsPlanRow is the typed view of one savings plan rate row. Lease
// length is a plain integer string ("1" or "3") in these files.
type savingsPlanRow struct {
	leaseLength    string
	purchaseOption string
	rate           float64
}

func parseSavingsPlanRow(r CatalogRow) savingsPlanRow {
	return savingsPlanRow{
		leaseLength:    r[colLeaseLength],
		purchaseOption: r[colPurchaseOption],
		rate:           parsePrice(r[colDiscountedRate]),
	}
}

func parseReservedRows(rows []CatalogRow) []reservedRow {
	out := make([]reservedRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, parseReservedRow(r))
	}
	return out
}

func parseSavingsPlanRows(rows []CatalogRow) []savingsPlanRow {
	out := make([]savingsPlanRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, parseSavingsPlanRow(r))
	}
	return out
}
