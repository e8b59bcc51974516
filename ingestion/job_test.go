package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// memWarehouse is an in-memory Warehouse recording everything the job does.
type memWarehouse struct {
	mu        sync.Mutex
	versions  map[string]bool
	files     map[string]bool
	tables    map[string][][]string
	columns   map[string][]string
	views     map[string]string
	markedVer []string
}

func newMemWarehouse() *memWarehouse {
	return &memWarehouse{
		versions: map[string]bool{},
		files:    map[string]bool{},
		tables:   map[string][][]string{},
		columns:  map[string][]string{},
		views:    map[string]string{},
	}
}

func (w *memWarehouse) EnsureBookkeeping(context.Context) error { return nil }

func (w *memWarehouse) IsVersionProcessed(_ context.Context, v string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.versions[v], nil
}

func (w *memWarehouse) MarkVersionProcessed(_ context.Context, v string, _ uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.versions[v] = true
	w.markedVer = append(w.markedVer, v)
	return nil
}

func (w *memWarehouse) IsFileLoaded(_ context.Context, f string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[f], nil
}

func (w *memWarehouse) MarkFileLoaded(_ context.Context, f, _ string, _ int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[f] = true
	return nil
}

func (w *memWarehouse) CreateCatalogTable(_ context.Context, table string, columns []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tables[table] = nil
	w.columns[table] = columns
	return nil
}

func (w *memWarehouse) LoadBatch(_ context.Context, table string, _ []string, records [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := make([][]string, len(records))
	copy(cp, records)
	w.tables[table] = append(w.tables[table], cp...)
	return nil
}

func (w *memWarehouse) PublishLatestView(_ context.Context, table, view string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	old := w.views[view]
	w.views[view] = table
	return old, nil
}

func (w *memWarehouse) DropTable(_ context.Context, table string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tables, table)
	return nil
}

const testCSV = `"FormatVersion","v1.0"
"Disclaimer","This pricing list is for informational purposes only"
"Publication Date","2024-03-05T00:00:00Z"
"Version","20240305"
"OfferCode","AmazonEC2"
"SKU","PricePerUnit","LeaseContractLength","TermType"
"AAAA","0.096","","OnDemand"
"BBBB","0.061","1yr","Reserved"
"CCCC","0.042","3yr","Reserved"
`

// newTestPricingServer serves a minimal but structurally faithful price
// list endpoint: service index, version index, savings plan index, and the
// CSV files they point at.
func newTestPricingServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/offers/v1.0/aws/index.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"offers":{"AmazonEC2":{
			"versionIndexUrl":"/offers/v1.0/aws/AmazonEC2/index.json",
			"currentSavingsPlanIndexUrl":"/savingsPlan/v1.0/aws/AWSComputeSavingsPlan/current/region_index.json"
		}}}`)
	})
	mux.HandleFunc("/offers/v1.0/aws/AmazonEC2/index.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"currentVersion":"20240305","versions":{
			"20240305":{"offerVersionUrl":"/offers/v1.0/aws/AmazonEC2/20240305/index.json"}
		}}`)
	})
	mux.HandleFunc("/savingsPlan/v1.0/aws/AWSComputeSavingsPlan/current/region_index.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"regions":[
			{"regionCode":"us-east-1","versionUrl":"/savingsPlan/v1.0/aws/AWSComputeSavingsPlan/20240301/us-east-1/index.json"},
			{"regionCode":"mars-north-1","versionUrl":"/savingsPlan/v1.0/aws/AWSComputeSavingsPlan/20240301/mars-north-1/index.json"}
		]}`)
	})
	mux.HandleFunc("/offers/v1.0/aws/AmazonEC2/20240305/index.csv", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testCSV)
	})
	mux.HandleFunc("/savingsPlan/v1.0/aws/AWSComputeSavingsPlan/20240301/us-east-1/index.csv", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testCSV)
	})

	return httptest.NewServer(mux)
}

func testJob(srv *httptest.Server, wh Warehouse, mutate func(*Config)) *Job {
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Regions = []string{"us-east-1"}
	cfg.Concurrency = 2
	if mutate != nil {
		mutate(cfg)
	}
	return NewJob(cfg, wh, nil, zerolog.Nop())
}

func TestJobRunLoadsCatalogs(t *testing.T) {
	srv := newTestPricingServer(t)
	defer srv.Close()

	wh := newMemWarehouse()
	res, err := testJob(srv, wh, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Version != "20240305" {
		t.Errorf("version = %q, want 20240305", res.Version)
	}
	if len(res.FilesLoaded) != 2 {
		t.Fatalf("loaded files = %v, want 2 entries", res.FilesLoaded)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("errors = %v, want none", res.Errors)
	}

	// The global table holds the three data rows, header excluded.
	rows := wh.tables["ec2_global_pricing_20240305"]
	if len(rows) != 3 {
		t.Errorf("global table rows = %d, want 3", len(rows))
	}
	wantCols := []string{"sku", "priceperunit", "leasecontractlength", "termtype"}
	gotCols := wh.columns["ec2_global_pricing_20240305"]
	if len(gotCols) != len(wantCols) {
		t.Fatalf("columns = %v, want %v", gotCols, wantCols)
	}
	for i := range wantCols {
		if gotCols[i] != wantCols[i] {
			t.Errorf("column %d = %q, want %q", i, gotCols[i], wantCols[i])
		}
	}

	if got := wh.views["ec2_global_pricing_latest"]; got != "ec2_global_pricing_20240305" {
		t.Errorf("global view points at %q", got)
	}
	if got := wh.views["savings_plan_us_east_1_latest"]; got != "savings_plan_us_east_1_20240301" {
		t.Errorf("savings plan view points at %q", got)
	}

	// mars-north-1 is not in the allowed region list.
	if _, ok := wh.tables["savings_plan_mars_north_1_20240301"]; ok {
		t.Error("disallowed region was ingested")
	}

	if !wh.versions["20240305"] {
		t.Error("version was not marked processed")
	}
}

func TestJobRunSkipsProcessedVersion(t *testing.T) {
	srv := newTestPricingServer(t)
	defer srv.Close()

	wh := newMemWarehouse()
	wh.versions["20240305"] = true

	res, err := testJob(srv, wh, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.UpToDate {
		t.Error("expected UpToDate for an already processed version")
	}
	if len(wh.tables) != 0 {
		t.Errorf("no tables should be touched, got %v", wh.tables)
	}
}

func TestJobRunForceBypassesVersionCheck(t *testing.T) {
	srv := newTestPricingServer(t)
	defer srv.Close()

	wh := newMemWarehouse()
	wh.versions["20240305"] = true

	res, err := testJob(srv, wh, func(c *Config) { c.Force = true }).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.UpToDate {
		t.Error("force run must not short-circuit")
	}
	if len(res.FilesLoaded) != 2 {
		t.Errorf("loaded files = %v, want 2 entries", res.FilesLoaded)
	}
}

func TestJobRunSkipsLoadedFiles(t *testing.T) {
	srv := newTestPricingServer(t)
	defer srv.Close()

	wh := newMemWarehouse()
	wh.files["ec2_global_pricing_20240305.csv"] = true

	res, err := testJob(srv, wh, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.FilesSkipped) != 1 {
		t.Errorf("skipped = %v, want the global file", res.FilesSkipped)
	}
	if len(res.FilesLoaded) != 1 {
		t.Errorf("loaded = %v, want only the savings plan file", res.FilesLoaded)
	}
	if _, ok := wh.tables["ec2_global_pricing_20240305"]; ok {
		t.Error("skipped file must not be reloaded")
	}
}

func TestJobRunLineLimit(t *testing.T) {
	srv := newTestPricingServer(t)
	defer srv.Close()

	wh := newMemWarehouse()
	_, err := testJob(srv, wh, func(c *Config) { c.LineLimit = 1 }).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rows := wh.tables["ec2_global_pricing_20240305"]; len(rows) != 1 {
		t.Errorf("line limit 1: got %d rows", len(rows))
	}
}

func TestJobRunIsolatesFileFailures(t *testing.T) {
	srv := newTestPricingServer(t)
	defer srv.Close()

	// A second server whose savings plan CSV 404s while everything else
	// proxies through.
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/savingsPlan/v1.0/aws/AWSComputeSavingsPlan/20240301/us-east-1/index.csv" {
			http.NotFound(w, r)
			return
		}
		resp, err := http.Get(srv.URL + r.URL.Path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}))
	defer broken.Close()

	wh := newMemWarehouse()
	res, err := testJob(broken, wh, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly one", res.Errors)
	}
	if len(res.FilesLoaded) != 1 {
		t.Errorf("loaded = %v, the global file must still load", res.FilesLoaded)
	}
	if got := wh.views["ec2_global_pricing_latest"]; got != "ec2_global_pricing_20240305" {
		t.Errorf("global view points at %q", got)
	}
}
