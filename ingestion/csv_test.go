package ingestion

import (
	"reflect"
	"testing"
)

func TestSanitizeColumnName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SKU", "sku"},
		{"Price per Unit", "price_per_unit"},
		{"PricePerUnit", "priceperunit"},
		{"Lease Contract Length", "lease_contract_length"},
		{" TermType ", "termtype"},
		{"usage:type/extra", "usage_type_extra"},
		{"a--b", "a_b"},
		{"__trimmed__", "trimmed"},
		{"123abc", "col_123abc"},
		{"!!!", "column"},
		{"", "column"},
	}
	for _, tt := range tests {
		if got := sanitizeColumnName(tt.in); got != tt.want {
			t.Errorf("sanitizeColumnName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildColumnsDeduplicates(t *testing.T) {
	header := []string{"SKU", "sku", "S-K-U", "Rate"}
	want := []string{"sku", "sku_1", "s_k_u", "rate"}
	if got := buildColumns(header); !reflect.DeepEqual(got, want) {
		t.Errorf("buildColumns(%v) = %v, want %v", header, got, want)
	}
}

func TestParseResourceNames(t *testing.T) {
	tests := []struct {
		filename  string
		wantTable string
		wantView  string
		wantErr   bool
	}{
		{
			filename:  "ec2_global_pricing_20240305.csv",
			wantTable: "ec2_global_pricing_20240305",
			wantView:  "ec2_global_pricing_latest",
		},
		{
			filename:  "savings_plan_us-east-1_20240301.csv",
			wantTable: "savings_plan_us_east_1_20240301",
			wantView:  "savings_plan_us_east_1_latest",
		},
		{
			filename:  "savings_plan_ap-northeast-3_20231115.csv",
			wantTable: "savings_plan_ap_northeast_3_20231115",
			wantView:  "savings_plan_ap_northeast_3_latest",
		},
		{filename: "savings_plan_.csv", wantErr: true},
		{filename: "random_file.csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			table, view, err := parseResourceNames(tt.filename)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseResourceNames(%q) expected error", tt.filename)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseResourceNames(%q) error = %v", tt.filename, err)
			}
			if table != tt.wantTable {
				t.Errorf("table = %q, want %q", table, tt.wantTable)
			}
			if view != tt.wantView {
				t.Errorf("view = %q, want %q", view, tt.wantView)
			}
		})
	}
}

func TestExtractSavingsPlanVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/savingsPlan/v1.0/aws/AWSComputeSavingsPlan/20240301/us-east-1/index.json", "20240301"},
		{"savingsPlan/v1.0/aws/AWSComputeSavingsPlan/20240301/eu-west-1/index.json", "20240301"},
		{"/too/short/path", ""},
	}
	for _, tt := range tests {
		if got := extractSavingsPlanVersion(tt.in); got != tt.want {
			t.Errorf("extractSavingsPlanVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSavingsPlanCSVURL(t *testing.T) {
	base := "https://pricing.example.com"

	// Expected URL shape is rebuilt from its parts.
	got := savingsPlanCSVURL(base,
		"/savingsPlan/v1.0/aws/AWSComputeSavingsPlan/20240301/us-east-1/index.json",
		"us-east-1", "20240301")
	want := base + "/savingsPlan/v1.0/aws/AWSComputeSavingsPlan/20240301/us-east-1/index.csv"
	if got != want {
		t.Errorf("csv url = %q, want %q", got, want)
	}

	// Unexpected shapes fall back to suffix substitution.
	got = savingsPlanCSVURL(base, "/other/layout/us-east-1/index.json", "us-east-1", "20240301")
	want = base + "/other/layout/us-east-1/index.csv"
	if got != want {
		t.Errorf("fallback csv url = %q, want %q", got, want)
	}
}

func TestGlobalPricingCSVURL(t *testing.T) {
	got := globalPricingCSVURL("https://pricing.example.com",
		"/offers/v1.0/aws/AmazonEC2/20240305/index.json")
	want := "https://pricing.example.com/offers/v1.0/aws/AmazonEC2/20240305/index.csv"
	if got != want {
		t.Errorf("csv url = %q, want %q", got, want)
	}
}

func TestVersionFromPriceListArn(t *testing.T) {
	tests := []struct {
		arn     string
		want    string
		wantErr bool
	}{
		{
			arn:  "arn:aws:pricing::aws:price-list/aws/AmazonEC2/USD/20240305/us-east-1",
			want: "20240305",
		},
		{arn: "arn:aws:pricing::aws:price-list", wantErr: true},
	}
	for _, tt := range tests {
		got, err := versionFromPriceListArn(tt.arn)
		if tt.wantErr {
			if err == nil {
				t.Errorf("versionFromPriceListArn(%q) expected error", tt.arn)
			}
			continue
		}
		if err != nil {
			t.Errorf("versionFromPriceListArn(%q) error = %v", tt.arn, err)
			continue
		}
		if got != tt.want {
			t.Errorf("versionFromPriceListArn(%q) = %q, want %q", tt.arn, got, tt.want)
		}
	}
}
