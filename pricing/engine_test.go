package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// fakeSource is an in-memory CatalogSource keyed by scenario kind.
type fakeSource struct {
	mu    sync.Mutex
	rows  map[ScenarioKind][]CatalogRow
	errs  map[ScenarioKind]error
	calls int
}

func (f *fakeSource) Lookup(ctx context.Context, kind ScenarioKind, _ Filter) ([]CatalogRow, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	return f.rows[kind], nil
}

func validConfig() InstanceConfig {
	return InstanceConfig{
		RegionCode:   "us-east-1",
		InstanceType: "m5.large",
		Operation:    "RunInstances",
		Quantity:     1,
	}
}

func TestPriceZeroDataFallback(t *testing.T) {
	engine := NewEngine(&fakeSource{}, zerolog.Nop())

	res, _, err := engine.Price(context.Background(), validConfig())
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if *res != *NewZeroResult() {
		t.Errorf("empty catalog should yield the all-zero result, got %+v", res)
	}
}

func TestPriceValidationRejectsBeforeLookup(t *testing.T) {
	src := &fakeSource{}
	engine := NewEngine(src, zerolog.Nop())

	cfg := validConfig()
	cfg.InstanceType = ""

	res, _, err := engine.Price(context.Background(), cfg)
	if err == nil {
		t.Fatal("Price() with missing instance_type should fail")
	}
	if *res != *NewZeroResult() {
		t.Errorf("validation failure should yield the all-zero result, got %+v", res)
	}
	if src.calls != 0 {
		t.Errorf("validation failure must reject before any lookup, saw %d lookups", src.calls)
	}
}

func TestPriceQuantityNegativeRejected(t *testing.T) {
	engine := NewEngine(&fakeSource{}, zerolog.Nop())

	cfg := validConfig()
	cfg.Quantity = -2
	if _, _, err := engine.Price(context.Background(), cfg); err == nil {
		t.Fatal("Price() with negative qty should fail")
	}
}

func TestPriceComputesAllScenarios(t *testing.T) {
	src := &fakeSource{rows: map[ScenarioKind][]CatalogRow{
		ScenarioOnDemand: {
			{colPricePerUnit: "0.10", colOperatingSystem: "Linux"},
		},
		ScenarioReserved: {
			{colLeaseLength: "1yr", colPurchaseOption: "No Upfront", colPricePerUnit: "0.07"},
			{colLeaseLength: "1yr", colPurchaseOption: "Partial Upfront", colPriceDescription: "Upfront Fee", colPricePerUnit: "250"},
			{colLeaseLength: "1yr", colPurchaseOption: "Partial Upfront", colPriceDescription: "USD 0.03 per hour", colPricePerUnit: "0.03"},
		},
		ScenarioComputeSavingsPlan: {
			{colLeaseLength: "1", colPurchaseOption: "No Upfront", colDiscountedRate: "0.08"},
		},
		ScenarioInstanceSavingsPlan: {
			{colLeaseLength: "3", colPurchaseOption: "All Upfront", colDiscountedRate: "0.05"},
		},
	}}
	engine := NewEngine(src, zerolog.Nop())

	res, priced, err := engine.Price(context.Background(), validConfig())
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}

	if priced.OperatingSystem != "Linux" {
		t.Errorf("operating system = %q, want catalog value Linux", priced.OperatingSystem)
	}
	if !almostEqual(res.OnDemandHourlyRate, 0.10) {
		t.Errorf("on-demand rate = %v, want 0.10", res.OnDemandHourlyRate)
	}
	if !almostEqual(res.OnDemand1YearTotalCost, 876) {
		t.Errorf("on-demand 1y = %v, want 876", res.OnDemand1YearTotalCost)
	}
	if !almostEqual(res.Reserved1Year.NoUpfrontHourlyRate, 0.07) {
		t.Errorf("reserved no-upfront rate = %v, want 0.07", res.Reserved1Year.NoUpfrontHourlyRate)
	}
	wantPartial := 250 + 0.03*8760.0
	if !almostEqual(res.Reserved1Year.PartialUpfront.TotalCost, wantPartial) {
		t.Errorf("reserved partial total = %v, want %v", res.Reserved1Year.PartialUpfront.TotalCost, wantPartial)
	}
	if !almostEqual(res.ComputeSavingsPlan1Year.NoUpfrontTotalCost, 0.08*8760.0) {
		t.Errorf("compute sp 1y = %v, want %v", res.ComputeSavingsPlan1Year.NoUpfrontTotalCost, 0.08*8760.0)
	}
	if !almostEqual(res.EC2SavingsPlan3Year.AllUpfrontTotalCost, 0.05*26280.0) {
		t.Errorf("ec2 sp 3y all upfront = %v, want %v", res.EC2SavingsPlan3Year.AllUpfrontTotalCost, 0.05*26280.0)
	}
	// Terms with no matching rows stay fully zero.
	if res.Reserved3Year != (TermPricing{}) {
		t.Errorf("reserved 3y should be zero, got %+v", res.Reserved3Year)
	}
}

func TestPriceIdempotent(t *testing.T) {
	src := &fakeSource{rows: map[ScenarioKind][]CatalogRow{
		ScenarioOnDemand: {{colPricePerUnit: "0.0416"}},
	}}
	engine := NewEngine(src, zerolog.Nop())

	first, _, err := engine.Price(context.Background(), validConfig())
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	second, _, err := engine.Price(context.Background(), validConfig())
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if *first != *second {
		t.Errorf("repeated calls over unchanged data differ: %+v vs %+v", first, second)
	}
}

func TestPriceQuantityLinearity(t *testing.T) {
	src := &fakeSource{rows: map[ScenarioKind][]CatalogRow{
		ScenarioOnDemand: {{colPricePerUnit: "0.25"}},
		ScenarioComputeSavingsPlan: {
			{colLeaseLength: "1", colPurchaseOption: "No Upfront", colDiscountedRate: "0.2"},
		},
	}}
	engine := NewEngine(src, zerolog.Nop())

	one := validConfig()
	three := validConfig()
	three.Quantity = 3

	resOne, _, _ := engine.Price(context.Background(), one)
	resThree, _, _ := engine.Price(context.Background(), three)

	if !almostEqual(resThree.OnDemand1YearTotalCost, 3*resOne.OnDemand1YearTotalCost) {
		t.Errorf("on-demand total not linear in qty: %v vs 3x%v", resThree.OnDemand1YearTotalCost, resOne.OnDemand1YearTotalCost)
	}
	if !almostEqual(resThree.ComputeSavingsPlan1Year.NoUpfrontTotalCost, 3*resOne.ComputeSavingsPlan1Year.NoUpfrontTotalCost) {
		t.Errorf("savings plan total not linear in qty")
	}
	// Hourly rates are per-instance and must not scale.
	if !almostEqual(resThree.OnDemandHourlyRate, resOne.OnDemandHourlyRate) {
		t.Errorf("hourly rate scaled with qty: %v vs %v", resThree.OnDemandHourlyRate, resOne.OnDemandHourlyRate)
	}
}

func TestPriceLookupErrorTreatedAsNoRows(t *testing.T) {
	src := &fakeSource{
		rows: map[ScenarioKind][]CatalogRow{
			ScenarioOnDemand: {{colPricePerUnit: "0.10"}},
		},
		errs: map[ScenarioKind]error{
			ScenarioReserved: errors.New("connection refused"),
		},
	}
	engine := NewEngine(src, zerolog.Nop())

	res, _, err := engine.Price(context.Background(), validConfig())
	if err != nil {
		t.Fatalf("a lookup failure must not surface as an error, got %v", err)
	}
	if !almostEqual(res.OnDemandHourlyRate, 0.10) {
		t.Errorf("unaffected scenario degraded: rate = %v, want 0.10", res.OnDemandHourlyRate)
	}
	if res.Reserved1Year != (TermPricing{}) {
		t.Errorf("failed scenario should be zero, got %+v", res.Reserved1Year)
	}
}
