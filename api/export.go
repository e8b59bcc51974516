package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"ec2-pricing/pricing"
)

// ExportRequest carries priced instances back for file export.
type ExportRequest struct {
	PricingResults []InstancePricingResponse `json:"pricing_results"`
	Filename       string                    `json:"filename,omitempty"`
}

// exportHeaders is the flattened spreadsheet layout: six input columns
// followed by every scenario/term/payment combination, with the partial
// upfront breakdown expanded into total, fee, and plan cost columns.
var exportHeaders = []string{
	"Region Code", "Instance Type", "Operation", "Operating System", "Product Tenancy", "Quantity",
	"On-Demand Hourly Rate", "On-Demand 1 Year Total Cost", "On-Demand 3 Year Total Cost",
	"Compute SP 1Y No Upfront Total Cost", "Compute SP 1Y No Upfront Hourly Rate",
	"Compute SP 1Y Partial Upfront Total Cost", "Compute SP 1Y Partial Upfront Upfront Fee", "Compute SP 1Y Partial Upfront Plan Cost", "Compute SP 1Y Partial Upfront Hourly Rate",
	"Compute SP 1Y All Upfront Total Cost", "Compute SP 1Y All Upfront Hourly Rate",
	"Compute SP 3Y No Upfront Total Cost", "Compute SP 3Y No Upfront Hourly Rate",
	"Compute SP 3Y Partial Upfront Total Cost", "Compute SP 3Y Partial Upfront Upfront Fee", "Compute SP 3Y Partial Upfront Plan Cost", "Compute SP 3Y Partial Upfront Hourly Rate",
	"Compute SP 3Y All Upfront Total Cost", "Compute SP 3Y All Upfront Hourly Rate",
	"EC2 SP 1Y No Upfront Total Cost", "EC2 SP 1Y No Upfront Hourly Rate",
	"EC2 SP 1Y Partial Upfront Total Cost", "EC2 SP 1Y Partial Upfront Upfront Fee", "EC2 SP 1Y Partial Upfront Plan Cost", "EC2 SP 1Y Partial Upfront Hourly Rate",
	"EC2 SP 1Y All Upfront Total Cost", "EC2 SP 1Y All Upfront Hourly Rate",
	"EC2 SP 3Y No Upfront Total Cost", "EC2 SP 3Y No Upfront Hourly Rate",
	"EC2 SP 3Y Partial Upfront Total Cost", "EC2 SP 3Y Partial Upfront Upfront Fee", "EC2 SP 3Y Partial Upfront Plan Cost", "EC2 SP 3Y Partial Upfront Hourly Rate",
	"EC2 SP 3Y All Upfront Total Cost", "EC2 SP 3Y All Upfront Hourly Rate",
	"RI 1Y No Upfront Total Cost", "RI 1Y No Upfront Hourly Rate",
	"RI 1Y Partial Upfront Total Cost", "RI 1Y Partial Upfront Upfront Fee", "RI 1Y Partial Upfront Plan Cost", "RI 1Y Partial Upfront Hourly Rate",
	"RI 1Y All Upfront Total Cost", "RI 1Y All Upfront Hourly Rate",
	"RI 3Y No Upfront Total Cost", "RI 3Y No Upfront Hourly Rate",
	"RI 3Y Partial Upfront Total Cost", "RI 3Y Partial Upfront Upfront Fee", "RI 3Y Partial Upfront Plan Cost", "RI 3Y Partial Upfront Hourly Rate",
	"RI 3Y All Upfront Total Cost", "RI 3Y All Upfront Hourly Rate",
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	filename := req.Filename
	if filename == "" {
		filename = "ec2_pricing_results.csv"
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		s.log.Error().Err(err).Msg("csv export write failed")
		return
	}
	for _, res := range req.PricingResults {
		if err := cw.Write(exportRow(res)); err != nil {
			s.log.Error().Err(err).Msg("csv export write failed")
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.log.Error().Err(err).Msg("csv export flush failed")
	}
}

// money formats a dollar total with cent precision.
func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// rate formats an hourly rate at catalog precision.
func rate(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(6)
}

func exportRow(res InstancePricingResponse) []string {
	in := res.InputData
	p := res.PricingResults
	if p == nil {
		p = pricing.NewZeroResult()
	}

	row := []string{
		in.RegionCode, in.InstanceType, in.Operation, in.OperatingSystem, in.Tenancy,
		strconv.Itoa(in.Quantity),
		rate(p.OnDemandHourlyRate), money(p.OnDemand1YearTotalCost), money(p.OnDemand3YearTotalCost),
	}
	for _, tp := range []pricing.TermPricing{
		p.ComputeSavingsPlan1Year, p.ComputeSavingsPlan3Year,
		p.EC2SavingsPlan1Year, p.EC2SavingsPlan3Year,
		p.Reserved1Year, p.Reserved3Year,
	} {
		row = append(row,
			money(tp.NoUpfrontTotalCost), rate(tp.NoUpfrontHourlyRate),
			money(tp.PartialUpfront.TotalCost), money(tp.PartialUpfront.UpfrontFee), money(tp.PartialUpfront.PlanCost), rate(tp.PartialUpfrontHourlyRate),
			money(tp.AllUpfrontTotalCost), rate(tp.AllUpfrontHourlyRate),
		)
	}
	return row
}
