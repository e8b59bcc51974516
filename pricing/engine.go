package pricing

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Engine assembles the full pricing result for one instance configuration.
// It fans out the four catalog lookups, feeds each scenario through the
// normalizer routines, and owns the all-zero fallback: a lookup failure is
// treated as "no rows", and any failure during computation degrades the
// entire result rather than surfacing a partial one.
type Engine struct {
	source CatalogSource
	log    zerolog.Logger
}

func NewEngine(source CatalogSource, log zerolog.Logger) *Engine {
	return &Engine{source: source, log: log}
}

// rowSets holds the outcome of the four independent scenario lookups.
type rowSets struct {
	onDemand   []CatalogRow
	reserved   []CatalogRow
	computeSP  []CatalogRow
	instanceSP []CatalogRow
}

// Price computes the pricing result for one configuration. The returned
// InstanceConfig is the input with the catalog's authoritative operating
// system applied when disclosed. A validation error aborts before any
// lookup; a computation error yields the all-zero result alongside the
// error so callers can record it without losing the fixed result shape.
func (e *Engine) Price(ctx context.Context, cfg InstanceConfig) (*PricingResult, InstanceConfig, error) {
	if err := cfg.Normalize(); err != nil {
		return NewZeroResult(), cfg, fmt.Errorf("invalid instance config: %w", err)
	}

	sets := e.lookupAll(ctx, cfg)

	res, priced, err := e.compute(cfg, sets)
	if err != nil {
		e.log.Error().
			Str("instance_type", cfg.InstanceType).
			Str("region", cfg.RegionCode).
			Err(err).
			Msg("pricing computation degraded to zero result")
		return NewZeroResult(), cfg, err
	}
	return res, priced, nil
}

// lookupAll runs the four scenario lookups concurrently. They have no data
// dependency on each other; each failure is logged and contributes an empty
// row set instead of propagating.
func (e *Engine) lookupAll(ctx context.Context, cfg InstanceConfig) rowSets {
	f := cfg.filter()

	var sets rowSets
	targets := []struct {
		kind ScenarioKind
		dst  *[]CatalogRow
	}{
		{ScenarioOnDemand, &sets.onDemand},
		{ScenarioReserved, &sets.reserved},
		{ScenarioComputeSavingsPlan, &sets.computeSP},
		{ScenarioInstanceSavingsPlan, &sets.instanceSP},
	}

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(kind ScenarioKind, dst *[]CatalogRow) {
			defer wg.Done()
			rows, err := e.source.Lookup(ctx, kind, f)
			if err != nil {
				e.log.Warn().
					Str("scenario", string(kind)).
					Str("instance_type", cfg.InstanceType).
					Str("region", cfg.RegionCode).
					Err(err).
					Msg("catalog lookup failed, treating as no rows")
				return
			}
			*dst = rows
		}(t.kind, t.dst)
	}
	wg.Wait()
	return sets
}

// compute runs purely on in-memory data. A panic anywhere inside (malformed
// row shapes, future normalizer bugs) is recovered here so one bad catalog
// entry can never take down a batch.
func (e *Engine) compute(cfg InstanceConfig, sets rowSets) (res *PricingResult, priced InstanceConfig, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			priced = cfg
			err = fmt.Errorf("pricing %s/%s: %v", cfg.RegionCode, cfg.InstanceType, r)
		}
	}()

	reserved := parseReservedRows(sets.reserved)
	computeSP := parseSavingsPlanRows(sets.computeSP)
	instanceSP := parseSavingsPlanRows(sets.instanceSP)

	priced = cfg
	if os := authoritativeOS(sets.onDemand, reserved); os != "" {
		priced.OperatingSystem = os
	}

	res = &PricingResult{}
	res.OnDemandHourlyRate, res.OnDemand1YearTotalCost, res.OnDemand3YearTotalCost =
		onDemandPricing(sets.onDemand, cfg.Quantity)

	res.Reserved1Year = reservedTermPricing(reserved, 1, cfg.Quantity)
	res.Reserved3Year = reservedTermPricing(reserved, 3, cfg.Quantity)

	res.ComputeSavingsPlan1Year = savingsPlanTermPricing(computeSP, 1, cfg.Quantity)
	res.ComputeSavingsPlan3Year = savingsPlanTermPricing(computeSP, 3, cfg.Quantity)

	res.EC2SavingsPlan1Year = savingsPlanTermPricing(instanceSP, 1, cfg.Quantity)
	res.EC2SavingsPlan3Year = savingsPlanTermPricing(instanceSP, 3, cfg.Quantity)

	return res, priced, nil
}
