package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DefaultBaseURL is the public AWS price list endpoint. It serves both the
// offers index and the per-version CSV files without authentication.
const DefaultBaseURL = "https://pricing.us-east-1.amazonaws.com"

type serviceIndex struct {
	Offers map[string]serviceOffer `json:"offers"`
}

type serviceOffer struct {
	VersionIndexURL           string `json:"versionIndexUrl"`
	CurrentSavingsPlanIndexURL string `json:"currentSavingsPlanIndexUrl"`
}

type versionIndex struct {
	CurrentVersion string                  `json:"currentVersion"`
	Versions       map[string]versionEntry `json:"versions"`
}

type versionEntry struct {
	OfferVersionURL string `json:"offerVersionUrl"`
}

type savingsPlanIndex struct {
	Regions []savingsPlanRegion `json:"regions"`
}

type savingsPlanRegion struct {
	RegionCode string `json:"regionCode"`
	VersionURL string `json:"versionUrl"`
}

// indexClient fetches the public price list index documents.
type indexClient struct {
	baseURL string
	http    *http.Client
}

func newIndexClient(baseURL string, client *http.Client) *indexClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &indexClient{baseURL: baseURL, http: client}
}

func (c *indexClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *indexClient) serviceIndex(ctx context.Context) (*serviceIndex, error) {
	var idx serviceIndex
	if err := c.getJSON(ctx, "/offers/v1.0/aws/index.json", &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (c *indexClient) versionIndex(ctx context.Context, path string) (*versionIndex, error) {
	var idx versionIndex
	if err := c.getJSON(ctx, path, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (c *indexClient) savingsPlanIndex(ctx context.Context, path string) (*savingsPlanIndex, error) {
	var idx savingsPlanIndex
	if err := c.getJSON(ctx, path, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}
