// Package clickhouse implements the catalog row store on ClickHouse.
// Pricing lookups read from the published "_latest" views; the ingestion
// job writes versioned catalog tables and swaps the views on top of them.
package clickhouse

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"ec2-pricing/pricing"
)

const (
	globalPricingView     = "ec2_global_pricing_latest"
	savingsPlanViewPrefix = "savings_plan_"
)

// Config holds ClickHouse connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "ec2_pricing",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store is the ClickHouse-backed catalog store. It implements
// pricing.CatalogSource for the engine and the ingestion warehouse
// operations for the catalog update job.
type Store struct {
	conn driver.Conn
	cfg  *Config
}

// NewStore connects to ClickHouse.
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// =============================================================================
// SCENARIO LOOKUPS (pricing.CatalogSource)
// =============================================================================

// Lookup returns the catalog rows for one purchasing scenario. An empty
// result is not an error; only transport/query failures surface.
func (s *Store) Lookup(ctx context.Context, kind pricing.ScenarioKind, f pricing.Filter) ([]pricing.CatalogRow, error) {
	switch kind {
	case pricing.ScenarioOnDemand:
		return s.onDemandRows(ctx, f)
	case pricing.ScenarioReserved:
		return s.reservedRows(ctx, f)
	case pricing.ScenarioComputeSavingsPlan:
		return s.savingsPlanRows(ctx, f, "ComputeSavingsPlans")
	case pricing.ScenarioInstanceSavingsPlan:
		return s.savingsPlanRows(ctx, f, "EC2InstanceSavingsPlans")
	default:
		return nil, fmt.Errorf("unknown scenario kind: %s", kind)
	}
}

func (s *Store) onDemandRows(ctx context.Context, f pricing.Filter) ([]pricing.CatalogRow, error) {
	query := fmt.Sprintf(`
		SELECT sku, termtype, pricedescription, priceperunit, instance_type,
		       usagetype, operating_system, unit
		FROM %s
		WHERE region_code = ?
		  AND instance_type = ?
		  AND operation = ?
		  AND tenancy = ?
		  AND termtype = 'OnDemand'
		  AND usagetype LIKE '%%BoxUsage%%'
		LIMIT 1
	`, globalPricingView)

	rows, err := s.conn.Query(ctx, query, f.RegionCode, f.InstanceType, f.Operation, f.Tenancy)
	if err != nil {
		return nil, fmt.Errorf("on-demand lookup failed: %w", err)
	}
	return scanCatalogRows(rows)
}

func (s *Store) reservedRows(ctx context.Context, f pricing.Filter) ([]pricing.CatalogRow, error) {
	query := fmt.Sprintf(`
		SELECT sku, region_code, termtype, instance_type, usagetype,
		       operating_system, pricedescription, priceperunit, unit,
		       currency, leasecontractlength, purchaseoption, offeringclass
		FROM %s
		WHERE region_code = ?
		  AND instance_type = ?
		  AND operation = ?
		  AND tenancy = ?
		  AND termtype = 'Reserved'
		  AND usagetype LIKE '%%BoxUsage%%'
		  AND offeringclass = 'standard'
	`, globalPricingView)

	rows, err := s.conn.Query(ctx, query, f.RegionCode, f.InstanceType, f.Operation, f.Tenancy)
	if err != nil {
		return nil, fmt.Errorf("reserved lookup failed: %w", err)
	}
	return scanCatalogRows(rows)
}

func (s *Store) savingsPlanRows(ctx context.Context, f pricing.Filter, productFamily string) ([]pricing.CatalogRow, error) {
	view, err := SavingsPlanView(f.RegionCode)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT sku, discountedregioncode, discountedinstancetype, product_family,
		       usagetype, discountedusagetype, discountedoperation,
		       purchaseoption, leasecontractlength, leasecontractlengthunit,
		       discountedrate, currency, unit
		FROM %s
		WHERE discountedregioncode = ?
		  AND discountedinstancetype = ?
		  AND discountedoperation = ?
		  AND discountedusagetype LIKE '%%-BoxUsage%%'
		  AND product_family = ?
	`, view)

	rows, err := s.conn.Query(ctx, query, f.RegionCode, f.InstanceType, f.Operation, productFamily)
	if err != nil {
		return nil, fmt.Errorf("savings plan lookup failed: %w", err)
	}
	return scanCatalogRows(rows)
}

// SavingsPlanView returns the per-region latest view name for the savings
// plan catalog, e.g. "savings_plan_us_east_1_latest".
func SavingsPlanView(regionCode string) (string, error) {
	name := savingsPlanViewPrefix + strings.ReplaceAll(regionCode, "-", "_") + "_latest"
	if !validIdentifier(name) {
		return "", fmt.Errorf("invalid region code for view name: %q", regionCode)
	}
	return name, nil
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// scanCatalogRows materializes a result set into loosely-typed catalog
// rows. Catalog tables are all-String by construction, so every column
// scans as a string keyed by its column name.
func scanCatalogRows(rows driver.Rows) ([]pricing.CatalogRow, error) {
	defer rows.Close()

	cols := rows.Columns()
	out := []pricing.CatalogRow{}
	for rows.Next() {
		values := make([]string, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		row := make(pricing.CatalogRow, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog row iteration failed: %w", err)
	}
	return out, nil
}
