// Package ingestion downloads AWS published price list files and loads
// them into the warehouse, publishing a latest view per catalog once a
// file is fully loaded.
package ingestion

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// AWS price list CSV files carry a metadata preamble before the real
// header row. The header is the sixth record.
const (
	headerRecordsToSkip = 6
	headerRecordIndex   = headerRecordsToSkip - 1
)

var (
	nonIdentChars  = regexp.MustCompile(`[^0-9a-zA-Z_]+`)
	repeatedUnders = regexp.MustCompile(`_+`)
)

// sanitizeColumnName converts a raw CSV header cell into a warehouse
// column identifier.
func sanitizeColumnName(column string) string {
	column = strings.TrimSpace(column)
	column = nonIdentChars.ReplaceAllString(column, "_")
	column = repeatedUnders.ReplaceAllString(column, "_")
	column = strings.Trim(column, "_")
	if column == "" {
		column = "column"
	}
	if column[0] >= '0' && column[0] <= '9' {
		column = "col_" + column
	}
	return strings.ToLower(column)
}

// buildColumns sanitizes a header row and disambiguates duplicates with a
// numeric suffix.
func buildColumns(header []string) []string {
	seen := make(map[string]bool, len(header))
	out := make([]string, 0, len(header))
	for _, raw := range header {
		name := sanitizeColumnName(raw)
		base := name
		for suffix := 1; seen[name]; suffix++ {
			name = fmt.Sprintf("%s_%d", base, suffix)
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// parseResourceNames maps a catalog filename onto its versioned table name
// and the latest view that should point at it.
func parseResourceNames(filename string) (table, view string, err error) {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))

	if strings.HasPrefix(base, "ec2_global_pricing_") {
		return base, "ec2_global_pricing_latest", nil
	}

	if strings.HasPrefix(base, "savings_plan_") {
		remainder := strings.TrimPrefix(base, "savings_plan_")
		i := strings.LastIndex(remainder, "_")
		if i <= 0 || i == len(remainder)-1 {
			return "", "", fmt.Errorf("invalid savings plan filename: %s", filename)
		}
		region := strings.ReplaceAll(remainder[:i], "-", "_")
		version := remainder[i+1:]
		return fmt.Sprintf("savings_plan_%s_%s", region, version),
			fmt.Sprintf("savings_plan_%s_latest", region), nil
	}

	return "", "", fmt.Errorf("unsupported filename format: %s", filename)
}

// extractSavingsPlanVersion pulls the version component out of a savings
// plan version URL such as
// "/savingsPlan/v1.0/aws/AWSComputeSavingsPlan/20240301/us-east-1/index.json".
func extractSavingsPlanVersion(versionURL string) string {
	segments := strings.Split(strings.Trim(versionURL, "/"), "/")
	if len(segments) >= 5 {
		return segments[4]
	}
	return ""
}

// savingsPlanCSVURL rebuilds the per-region CSV download URL from the
// index's version URL. When the URL does not have the expected shape, it
// falls back to swapping the index.json suffix.
func savingsPlanCSVURL(baseURL, versionURL, regionCode, version string) string {
	segments := strings.Split(strings.Trim(versionURL, "/"), "/")
	if len(segments) >= 7 &&
		segments[0] == "savingsPlan" &&
		segments[1] == "v1.0" &&
		segments[2] == "aws" &&
		segments[3] == "AWSComputeSavingsPlan" {
		return fmt.Sprintf("%s/savingsPlan/v1.0/aws/AWSComputeSavingsPlan/%s/%s/index.csv",
			baseURL, version, regionCode)
	}
	return baseURL + strings.Replace(versionURL, "index.json", "index.csv", 1)
}

// globalPricingCSVURL converts an offer version URL (JSON) into the CSV
// download URL for the same version.
func globalPricingCSVURL(baseURL, offerVersionURL string) string {
	return baseURL + strings.Replace(offerVersionURL, ".json", ".csv", 1)
}
