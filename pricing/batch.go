package pricing

import (
	"context"
	"sync"
)

// batchWorkers bounds batch concurrency. Items are independent; the only
// ordering guarantee is that output index i corresponds to input index i.
const batchWorkers = 4

// BatchItem is one priced entry of a batch response. Errors is empty on
// success; a failed item carries the all-zero result plus its error text.
type BatchItem struct {
	Config InstanceConfig `json:"input_data"`
	Result *PricingResult `json:"pricing_results"`
	Errors []string       `json:"errors"`
}

// PriceBatch prices each configuration and returns exactly one item per
// input, in input order. One item's failure never discards, reorders, or
// degrades its siblings.
func (e *Engine) PriceBatch(ctx context.Context, cfgs []InstanceConfig) []BatchItem {
	items := make([]BatchItem, len(cfgs))

	sem := make(chan struct{}, batchWorkers)
	var wg sync.WaitGroup
	for i := range cfgs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			res, priced, err := e.Price(ctx, cfgs[i])
			item := BatchItem{
				Config: priced,
				Result: res,
				Errors: []string{},
			}
			if err != nil {
				item.Errors = append(item.Errors, err.Error())
			}
			items[i] = item
		}(i)
	}
	wg.Wait()

	return items
}
