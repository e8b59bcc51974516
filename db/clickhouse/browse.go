package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"ec2-pricing/pricing"
)

// BrowseFilter narrows a catalog browse query. All fields are optional
// except Region when a savings plan catalog is selected.
type BrowseFilter struct {
	Region         string
	OS             string
	InstanceType   string
	InstanceFamily string
	Term           string
	SavingsType    string
}

// savingsPlanBrowse reports whether the filter targets a regional savings
// plan catalog rather than the global on-demand/reserved catalog.
func (f BrowseFilter) savingsPlanBrowse() bool {
	switch strings.ToLower(f.SavingsType) {
	case "compute savings plan", "ec2 savings plan":
		return true
	}
	return false
}

// Browse runs a filtered read-only query over the latest catalog views and
// returns rows as column-name maps.
func (s *Store) Browse(ctx context.Context, f BrowseFilter) ([]pricing.CatalogRow, error) {
	if f.savingsPlanBrowse() {
		return s.browseSavingsPlans(ctx, f)
	}
	return s.browseGlobal(ctx, f)
}

func (s *Store) browseSavingsPlans(ctx context.Context, f BrowseFilter) ([]pricing.CatalogRow, error) {
	if f.Region == "" {
		return nil, fmt.Errorf("region is required for savings plan queries")
	}
	view, err := SavingsPlanView(f.Region)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	var args []interface{}
	fmt.Fprintf(&b, `
		SELECT
			discountedregioncode AS region_code,
			discountedinstancetype AS instance_type,
			discountedoperation AS operation,
			product_family,
			purchaseoption AS purchase_option,
			leasecontractlength AS term_years,
			discountedrate AS hourly_rate,
			currency,
			unit
		FROM %s
		WHERE 1 = 1
	`, view)

	switch strings.ToLower(f.SavingsType) {
	case "compute savings plan":
		b.WriteString(" AND product_family = 'ComputeSavingsPlans'")
	case "ec2 savings plan":
		b.WriteString(" AND product_family = 'EC2InstanceSavingsPlans'")
	}
	if f.InstanceType != "" {
		b.WriteString(" AND discountedinstancetype = ?")
		args = append(args, f.InstanceType)
	}
	if f.OS != "" {
		b.WriteString(" AND discountedoperation LIKE ?")
		args = append(args, "%"+f.OS+"%")
	}
	if f.Term != "" && strings.Contains(strings.ToLower(f.Term), "year") {
		years := strings.TrimSpace(strings.SplitN(strings.ToLower(f.Term), "year", 2)[0])
		b.WriteString(" AND leasecontractlength = ?")
		args = append(args, years)
	}
	if f.InstanceFamily != "" {
		b.WriteString(" AND discountedinstancetype LIKE ?")
		args = append(args, f.InstanceFamily+"%")
	}

	rows, err := s.conn.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to browse savings plan catalog: %w", err)
	}
	return scanCatalogRows(rows)
}

func (s *Store) browseGlobal(ctx context.Context, f BrowseFilter) ([]pricing.CatalogRow, error) {
	var b strings.Builder
	var args []interface{}
	fmt.Fprintf(&b, `
		SELECT
			region_code,
			instance_type,
			operation,
			operating_system,
			tenancy,
			termtype AS term_type,
			purchaseoption AS purchase_option,
			leasecontractlength AS term_length,
			offeringclass AS offering_class,
			priceperunit AS price_per_unit,
			unit,
			currency
		FROM %s
		WHERE 1 = 1
	`, globalPricingView)

	if f.Region != "" {
		b.WriteString(" AND region_code = ?")
		args = append(args, f.Region)
	}
	if f.InstanceType != "" {
		b.WriteString(" AND instance_type = ?")
		args = append(args, f.InstanceType)
	}
	if f.OS != "" {
		b.WriteString(" AND operating_system = ?")
		args = append(args, f.OS)
	}
	if f.Term != "" {
		lower := strings.ToLower(f.Term)
		if strings.Contains(lower, "reserved") {
			b.WriteString(" AND termtype = 'Reserved'")
		} else if strings.Contains(lower, "on-demand") || strings.Contains(lower, "ondemand") {
			b.WriteString(" AND termtype = 'OnDemand'")
		}
	}
	if strings.Contains(strings.ToLower(f.SavingsType), "reserved") {
		b.WriteString(" AND termtype = 'Reserved' AND offeringclass = 'standard'")
	}
	if f.InstanceFamily != "" {
		b.WriteString(" AND instance_type LIKE ?")
		args = append(args, f.InstanceFamily+"%")
	}

	rows, err := s.conn.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to browse global pricing catalog: %w", err)
	}
	return scanCatalogRows(rows)
}
