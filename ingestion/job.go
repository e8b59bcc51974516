package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// loadChunkSize is the number of CSV records sent to the warehouse per
// insert batch.
const loadChunkSize = 5000

// DefaultRegions lists the AWS regions whose savings plan catalogs are
// ingested when no override is configured.
var DefaultRegions = []string{
	"us-east-1", "us-east-2", "us-west-1", "us-west-2",
	"ap-south-1", "ap-northeast-3", "ap-northeast-2",
	"ap-southeast-1", "ap-southeast-2", "ap-northeast-1",
	"ca-central-1",
	"eu-central-1", "eu-west-1", "eu-west-2", "eu-west-3", "eu-north-1",
	"sa-east-1",
}

// Config controls a catalog update run.
type Config struct {
	BaseURL        string
	Regions        []string
	Concurrency    int
	RequestTimeout time.Duration
	// Force bypasses the processed-version check and re-runs ingestion
	// even when the current version was already loaded.
	Force bool
	// LineLimit caps the number of data rows loaded per file. Zero means
	// no cap. Used to exercise the pipeline without multi-gigabyte pulls.
	LineLimit int
}

// DefaultConfig returns the production defaults for a catalog update run.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		Regions:        DefaultRegions,
		Concurrency:    3,
		RequestTimeout: 120 * time.Second,
	}
}

// Warehouse is the sink a catalog update run loads into.
type Warehouse interface {
	EnsureBookkeeping(ctx context.Context) error
	IsVersionProcessed(ctx context.Context, versionID string) (bool, error)
	MarkVersionProcessed(ctx context.Context, versionID string, runID uuid.UUID) error
	IsFileLoaded(ctx context.Context, filename string) (bool, error)
	MarkFileLoaded(ctx context.Context, filename, url string, sizeBytes int64) error
	CreateCatalogTable(ctx context.Context, table string, columns []string) error
	LoadBatch(ctx context.Context, table string, columns []string, records [][]string) error
	PublishLatestView(ctx context.Context, table, view string) (string, error)
	DropTable(ctx context.Context, table string) error
}

// VersionResolver resolves the current EC2 price list version. Optional;
// without one the job falls back to the public offers index.
type VersionResolver interface {
	CurrentEC2Version(ctx context.Context) (string, error)
}

// Result summarizes a catalog update run.
type Result struct {
	RunID        uuid.UUID
	Version      string
	UpToDate     bool
	FilesLoaded  []string
	FilesSkipped []string
	Errors       []string
}

// Job downloads the current price list files and loads them into the
// warehouse.
type Job struct {
	cfg      *Config
	wh       Warehouse
	resolver VersionResolver
	index    *indexClient
	download *http.Client
	log      zerolog.Logger
}

// NewJob wires a catalog update job. resolver may be nil.
func NewJob(cfg *Config, wh Warehouse, resolver VersionResolver, log zerolog.Logger) *Job {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if len(cfg.Regions) == 0 {
		cfg.Regions = DefaultRegions
	}
	indexHTTP := &http.Client{Timeout: cfg.RequestTimeout}
	// Bulk CSV pulls run far longer than an index fetch, so the download
	// client bounds time-to-first-byte instead of the whole transfer.
	downloadHTTP := &http.Client{
		Transport: &http.Transport{ResponseHeaderTimeout: cfg.RequestTimeout},
	}
	return &Job{
		cfg:      cfg,
		wh:       wh,
		resolver: resolver,
		index:    newIndexClient(cfg.BaseURL, indexHTTP),
		download: downloadHTTP,
		log:      log,
	}
}

type downloadJob struct {
	url      string
	filename string
}

// Run executes one catalog update pass. Per-file failures are collected in
// the result rather than aborting the run.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.New()}
	log := j.log.With().Str("run_id", res.RunID.String()).Logger()
	log.Info().Strs("regions", j.cfg.Regions).Msg("catalog update started")

	if err := j.wh.EnsureBookkeeping(ctx); err != nil {
		return nil, err
	}

	svc, err := j.index.serviceIndex(ctx)
	if err != nil {
		return nil, err
	}
	ec2, ok := svc.Offers["AmazonEC2"]
	if !ok {
		return nil, errors.New("AmazonEC2 offer not found in service index")
	}
	if ec2.VersionIndexURL == "" {
		return nil, errors.New("AmazonEC2 offer missing versionIndexUrl")
	}

	versions, err := j.index.versionIndex(ctx, ec2.VersionIndexURL)
	if err != nil {
		return nil, err
	}
	res.Version = j.resolveVersion(ctx, versions, log)
	if res.Version == "" {
		return nil, errors.New("failed to determine latest price list version")
	}
	log.Info().Str("version", res.Version).Msg("resolved current price list version")

	if !j.cfg.Force {
		done, err := j.wh.IsVersionProcessed(ctx, res.Version)
		if err != nil {
			return nil, err
		}
		if done {
			log.Info().Str("version", res.Version).Msg("version already processed")
			res.UpToDate = true
			return res, nil
		}
	}

	jobs, err := j.collectJobs(ctx, &ec2, versions, res.Version, log)
	if err != nil {
		return nil, err
	}
	log.Info().Int("count", len(jobs)).Msg("collected download jobs")

	j.runJobs(ctx, jobs, res, log)

	if err := j.wh.MarkVersionProcessed(ctx, res.Version, res.RunID); err != nil {
		return res, err
	}
	log.Info().
		Int("loaded", len(res.FilesLoaded)).
		Int("skipped", len(res.FilesSkipped)).
		Int("errors", len(res.Errors)).
		Msg("catalog update finished")
	return res, nil
}

// resolveVersion prefers the Price List API and falls back to the public
// index's currentVersion.
func (j *Job) resolveVersion(ctx context.Context, versions *versionIndex, log zerolog.Logger) string {
	if j.resolver != nil {
		v, err := j.resolver.CurrentEC2Version(ctx)
		if err == nil && v != "" {
			return v
		}
		if err != nil {
			log.Warn().Err(err).Msg("price list api unavailable, using public index version")
		}
	}
	return versions.CurrentVersion
}

func (j *Job) collectJobs(ctx context.Context, ec2 *serviceOffer, versions *versionIndex, version string, log zerolog.Logger) ([]downloadJob, error) {
	var jobs []downloadJob

	entry, ok := versions.Versions[version]
	if !ok {
		// The Price List API can run ahead of the public index; fall back
		// to the index's own current entry.
		entry, ok = versions.Versions[versions.CurrentVersion]
	}
	if ok && entry.OfferVersionURL != "" {
		jobs = append(jobs, downloadJob{
			url:      globalPricingCSVURL(j.cfg.BaseURL, entry.OfferVersionURL),
			filename: fmt.Sprintf("ec2_global_pricing_%s.csv", version),
		})
	} else {
		log.Warn().Str("version", version).Msg("no offerVersionUrl for version")
	}

	if ec2.CurrentSavingsPlanIndexURL == "" {
		log.Warn().Msg("no currentSavingsPlanIndexUrl in EC2 offer")
		return jobs, nil
	}

	spIndex, err := j.index.savingsPlanIndex(ctx, ec2.CurrentSavingsPlanIndexURL)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(j.cfg.Regions))
	for _, r := range j.cfg.Regions {
		allowed[r] = true
	}
	for _, region := range spIndex.Regions {
		if region.RegionCode == "" || region.VersionURL == "" {
			continue
		}
		if !allowed[region.RegionCode] {
			continue
		}
		spVersion := extractSavingsPlanVersion(region.VersionURL)
		if spVersion == "" {
			spVersion = version
		}
		jobs = append(jobs, downloadJob{
			url:      savingsPlanCSVURL(j.cfg.BaseURL, region.VersionURL, region.RegionCode, spVersion),
			filename: fmt.Sprintf("savings_plan_%s_%s.csv", region.RegionCode, spVersion),
		})
	}
	return jobs, nil
}

// runJobs processes downloads with bounded concurrency. Each file streams
// straight from the HTTP response into the warehouse.
func (j *Job) runJobs(ctx context.Context, jobs []downloadJob, res *Result, log zerolog.Logger) {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, j.cfg.Concurrency)
	)
	for _, dj := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(dj downloadJob) {
			defer wg.Done()
			defer func() { <-sem }()

			loaded, err := j.processFile(ctx, dj, log)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.Error().Err(err).Str("file", dj.filename).Msg("file ingestion failed")
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", dj.filename, err))
			case loaded:
				res.FilesLoaded = append(res.FilesLoaded, dj.filename)
			default:
				res.FilesSkipped = append(res.FilesSkipped, dj.filename)
			}
		}(dj)
	}
	wg.Wait()
}

// processFile ingests one catalog file. Returns false when the file was
// already loaded by an earlier run.
func (j *Job) processFile(ctx context.Context, dj downloadJob, log zerolog.Logger) (bool, error) {
	done, err := j.wh.IsFileLoaded(ctx, dj.filename)
	if err != nil {
		return false, err
	}
	if done {
		log.Info().Str("file", dj.filename).Msg("file already loaded, skipping")
		return false, nil
	}

	table, view, err := parseResourceNames(dj.filename)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dj.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := j.download.Do(req)
	if err != nil {
		return false, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d downloading %s", resp.StatusCode, dj.url)
	}

	body := &countingReader{r: resp.Body}
	size, err := j.streamCSV(ctx, body, table, view, log.With().Str("file", dj.filename).Logger())
	if err != nil {
		return false, err
	}

	if err := j.wh.MarkFileLoaded(ctx, dj.filename, dj.url, size); err != nil {
		return false, err
	}
	return true, nil
}

// streamCSV reads a price list CSV and loads its data rows, then swaps the
// latest view onto the freshly loaded table.
func (j *Job) streamCSV(ctx context.Context, body *countingReader, table, view string, log zerolog.Logger) (int64, error) {
	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	// Metadata preamble, then the header record.
	for i := 0; i < headerRecordIndex; i++ {
		if _, err := reader.Read(); err != nil {
			return 0, fmt.Errorf("failed to skip preamble record %d: %w", i+1, err)
		}
	}
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read header record: %w", err)
	}
	columns := buildColumns(header)

	if err := j.wh.CreateCatalogTable(ctx, table, columns); err != nil {
		return 0, err
	}

	var (
		chunk [][]string
		total int
	)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := j.wh.LoadBatch(ctx, table, columns, chunk); err != nil {
			return err
		}
		chunk = chunk[:0]
		return nil
	}

	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read data record: %w", err)
		}
		chunk = append(chunk, padRecord(rec, len(columns)))
		total++
		if len(chunk) >= loadChunkSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
		if j.cfg.LineLimit > 0 && total >= j.cfg.LineLimit {
			log.Info().Int("limit", j.cfg.LineLimit).Msg("line limit reached, truncating load")
			break
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}

	oldTable, err := j.wh.PublishLatestView(ctx, table, view)
	if err != nil {
		return 0, err
	}
	if oldTable != "" && oldTable != table {
		if err := j.wh.DropTable(ctx, oldTable); err != nil {
			log.Warn().Err(err).Str("table", oldTable).Msg("failed to drop superseded table")
		}
	}

	log.Info().Int("rows", total).Str("table", table).Str("view", view).Msg("catalog file loaded")
	return body.n, nil
}

// padRecord normalizes a CSV record to the column count. Price list rows
// occasionally carry fewer trailing fields than the header.
func padRecord(rec []string, width int) []string {
	if len(rec) == width {
		return rec
	}
	out := make([]string, width)
	copy(out, rec)
	return out
}

// countingReader tracks bytes consumed from the download stream.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
