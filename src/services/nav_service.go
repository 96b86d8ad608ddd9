package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/navhub/src/config"
	"github.com/username/navhub/src/logger"
	"github.com/username/navhub/src/models"
	"github.com/username/navhub/src/normalizer"
	"github.com/username/navhub/src/renderer"
	"github.com/username/navhub/src/sources"
	"github.com/username/navhub/src/store"
	"github.com/username/navhub/src/utils"
)

const (
	ckStats = "agg_stats"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type navServiceImpl struct {
	cfg         *config.AppConfig
	fetchers    []sources.Fetcher
	mappings    normalizer.MappingSet
	navStore    *store.NAVStore
	seriesStore *store.SeriesStore
	email       EmailService
	statsCache  *cache.Cache
}

func NewNAVService(cfg *config.AppConfig, fetchers []sources.Fetcher, mappings normalizer.MappingSet,
	navStore *store.NAVStore, seriesStore *store.SeriesStore, email EmailService,
	statsCache *cache.Cache) NAVService {

	return &navServiceImpl{
		cfg:         cfg,
		fetchers:    fetchers,
		mappings:    mappings,
		navStore:    navStore,
		seriesStore: seriesStore,
		email:       email,
		statsCache:  statsCache,
	}
}

// Ingest runs one ingestion pass: fetch every configured source
// concurrently, normalize, and reconcile into the store. Per-source
// failures never abort the run; they are reported per source while the
// others continue.
func (s *navServiceImpl) Ingest(ctx context.Context, date time.Time, opts IngestOptions) (*IngestResult, error) {
	runID := uuid.NewString()
	startTime := time.Now()
	logger.L.Info("Ingest START", "runId", runID, "date", utils.DateOnly(date), "filters", opts.Filters)

	excludeISINs, err := normalizer.LoadExcludeISINs(s.cfg.ExcludeISINsPath)
	if err != nil {
		return nil, fmt.Errorf("load exclusion list: %w", err)
	}

	targetISINs, fileType, err := s.resolveFilters(ctx, opts)
	if err != nil {
		return nil, err
	}

	normOpts := normalizer.Options{
		ExcludeISINs: excludeISINs,
		TargetISINs:  targetISINs,
		Date:         date,
		FileType:     fileType,
	}

	reports := make([]SourceReport, len(s.fetchers))
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxWorkers())

	for i, fetcher := range s.fetchers {
		wg.Add(1)
		go func(i int, fetcher sources.Fetcher) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			reports[i] = s.ingestSource(ctx, fetcher, date, normOpts)
		}(i, fetcher)
	}
	wg.Wait()

	s.InvalidateStats()
	logger.L.Info("Ingest END", "runId", runID, "duration", time.Since(startTime).String())
	return &IngestResult{RunID: runID, Date: utils.DateOnly(date), Sources: reports}, nil
}

func (s *navServiceImpl) ingestSource(ctx context.Context, fetcher sources.Fetcher,
	date time.Time, normOpts normalizer.Options) SourceReport {

	report := SourceReport{Source: fetcher.Source()}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchDeadline())
	defer cancel()

	rows, err := sources.FetchWithRetry(fetchCtx, fetcher, date, s.cfg.FetchRetries, s.cfg.FetchRetryBase)
	if err != nil {
		// This source's batch is lost; the others keep going.
		logger.L.Error("Source fetch failed", "source", fetcher.Source(), "error", err)
		report.Error = err.Error()
		return report
	}
	report.Fetched = len(rows)
	if len(rows) == 0 {
		return report
	}

	res := normalizer.NormalizeBatch(rows, s.mappings, normOpts)
	report.Accepted = len(res.Accepted)
	report.Skipped = res.Skipped
	report.Rejected = res.Rejected

	for _, rec := range res.Accepted {
		outcome, err := s.navStore.Upsert(ctx, rec)
		if err != nil {
			if errors.Is(err, models.ErrStoreConflict) {
				logger.L.Warn("Store conflict during upsert", "isin", rec.ISIN, "error", err)
			} else {
				logger.L.Error("Upsert failed", "isin", rec.ISIN, "error", err)
			}
			report.Error = err.Error()
			continue
		}
		switch outcome.Kind {
		case store.Inserted:
			report.Inserted++
		case store.Updated:
			report.Updated++
			logger.L.Info("NAV value replaced",
				"isin", rec.ISIN, "date", utils.DateOnly(rec.NAVDate), "source", rec.Source,
				"oldValue", outcome.OldValue.String(), "newValue", rec.NAVValue.String())
		case store.Unchanged:
			report.Unchanged++
		}
	}
	return report
}

// resolveFilters turns the mixed filter list into a target ISIN set and an
// optional file-type narrowing. Frequency names query the series table;
// "wrappers_hybrid" and "loan" narrow by drop file type; anything else is
// taken as a literal ISIN.
func (s *navServiceImpl) resolveFilters(ctx context.Context, opts IngestOptions) (map[string]struct{}, string, error) {
	fileType := opts.FileType
	var targets map[string]struct{}
	add := func(isins ...string) {
		if targets == nil {
			targets = make(map[string]struct{})
		}
		for _, isin := range isins {
			targets[isin] = struct{}{}
		}
	}

	for _, filter := range opts.Filters {
		switch strings.ToLower(filter) {
		case "daily", "weekly", "monthly", "quarterly":
			isins, err := s.seriesStore.ActiveISINsByFrequency(ctx, models.ParseNAVFrequency(filter))
			if err != nil {
				return nil, "", fmt.Errorf("resolve frequency filter %q: %w", filter, err)
			}
			add(isins...)
		case "wrappers_hybrid":
			if fileType == "" {
				fileType = "hybrid"
			}
		case "loan":
			if fileType == "" {
				fileType = "loan"
			}
		default:
			add(filter)
		}
	}
	return targets, fileType, nil
}

// Render produces the requested artifacts for a date from the same record
// set. Renders are read-only against the store and safe to run in parallel.
func (s *navServiceImpl) Render(ctx context.Context, date time.Time, types []renderer.TemplateType) ([]Artifact, error) {
	records, err := s.navStore.RecordsForDate(ctx, date, nil)
	if err != nil {
		return nil, err
	}

	isins := make([]string, 0, len(records))
	seen := make(map[string]struct{})
	for _, rec := range records {
		if _, ok := seen[rec.ISIN]; !ok {
			seen[rec.ISIN] = struct{}{}
			isins = append(isins, rec.ISIN)
		}
	}
	seriesInfo, err := s.seriesStore.SeriesByISINs(ctx, isins)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	batch := renderer.Batch{RunDate: date, Records: records, Series: seriesInfo}

	var artifacts []Artifact
	for _, templateType := range types {
		cellMap, err := renderer.CellMapFor(templateType)
		if err != nil {
			return nil, err
		}
		templateBytes, err := os.ReadFile(s.templatePath(templateType))
		if err != nil {
			return nil, fmt.Errorf("read %s template: %w", templateType, err)
		}

		output, unfilled, err := renderer.Render(templateBytes, cellMap, batch)
		if err != nil {
			return nil, fmt.Errorf("render %s template: %w", templateType, err)
		}
		for _, coord := range unfilled {
			logger.L.Warn("Template coordinate left unfilled",
				"template", templateType, "cell", coord.Cell, "isin", coord.ISIN)
		}

		filename := renderer.OutputFileName(templateType, artifactDate(templateType, date, records))
		path := filepath.Join(s.cfg.OutputDir, filename)
		if err := os.WriteFile(path, output, 0o644); err != nil {
			return nil, fmt.Errorf("write artifact %s: %w", path, err)
		}
		logger.L.Info("Rendered template", "template", templateType, "path", path,
			"records", len(records), "unfilled", len(unfilled))

		artifacts = append(artifacts, Artifact{
			TemplateType: templateType,
			Filename:     filename,
			Path:         path,
			Unfilled:     unfilled,
			Content:      output,
		})
	}
	return artifacts, nil
}

// The SIX artifact is named for the latest valuation date in the batch; the
// Morningstar one for the run date.
func artifactDate(t renderer.TemplateType, runDate time.Time, records []models.NAVRecord) time.Time {
	if t != renderer.TemplateSIX {
		return runDate
	}
	latest := runDate
	for _, rec := range records {
		if rec.NAVDate.After(latest) {
			latest = rec.NAVDate
		}
	}
	return latest
}

// Distribute renders and hands each artifact to the dispatcher as its own
// message.
func (s *navServiceImpl) Distribute(ctx context.Context, date time.Time, types []renderer.TemplateType,
	recipients []string, filterDesc string) ([]Artifact, error) {

	artifacts, err := s.Render(ctx, date, types)
	if err != nil {
		return nil, err
	}

	records, err := s.navStore.RecordsForDate(ctx, date, nil)
	if err != nil {
		return nil, err
	}
	seriesBySource := distinctSeriesBySource(records)

	for _, artifact := range artifacts {
		msg := ReportMessage{
			Recipients:     recipients,
			TemplateType:   artifact.TemplateType,
			RunDate:        date,
			FilterDesc:     filterDesc,
			Attachments:    []Attachment{{Filename: artifact.Filename, Content: artifact.Content}},
			SeriesBySource: seriesBySource,
		}
		if err := s.email.SendReport(ctx, msg); err != nil {
			return artifacts, fmt.Errorf("dispatch %s report: %w", artifact.TemplateType, err)
		}
	}
	return artifacts, nil
}

func distinctSeriesBySource(records []models.NAVRecord) map[string]int {
	perSource := make(map[string]map[string]struct{})
	for _, rec := range records {
		if perSource[rec.Source] == nil {
			perSource[rec.Source] = make(map[string]struct{})
		}
		perSource[rec.Source][rec.ISIN] = struct{}{}
	}
	counts := make(map[string]int, len(perSource))
	for source, isins := range perSource {
		counts[source] = len(isins)
	}
	return counts
}

func (s *navServiceImpl) Query(ctx context.Context, filter store.QueryFilter, page, perPage int) ([]models.NAVRecord, int, error) {
	return s.navStore.Query(ctx, filter, page, perPage)
}

func (s *navServiceImpl) Stats(ctx context.Context) (Stats, error) {
	if s.statsCache != nil {
		if cached, found := s.statsCache.Get(ckStats); found {
			return cached.(Stats), nil
		}
	}

	totalRecords, err := s.navStore.CountRecords(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count records: %w", err)
	}
	totalSeries, err := s.seriesStore.CountSeries(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count series: %w", err)
	}

	stats := Stats{TotalRecords: totalRecords, TotalSeries: totalSeries}
	if s.statsCache != nil {
		s.statsCache.Set(ckStats, stats, cache.DefaultExpiration)
	}
	return stats, nil
}

func (s *navServiceImpl) InvalidateStats() {
	if s.statsCache != nil {
		s.statsCache.Delete(ckStats)
	}
}

func (s *navServiceImpl) templatePath(t renderer.TemplateType) string {
	if t == renderer.TemplateSIX {
		return s.cfg.SIXTemplatePath
	}
	return s.cfg.MorningstarTemplatePath
}

func (s *navServiceImpl) maxWorkers() int {
	if s.cfg.MaxWorkers < 1 {
		return 1
	}
	return s.cfg.MaxWorkers
}

func (s *navServiceImpl) fetchDeadline() time.Duration {
	// Budget for the retries plus backoff on top of the per-call timeout.
	retries := s.cfg.FetchRetries
	if retries < 1 {
		retries = 1
	}
	return time.Duration(retries)*s.cfg.FetchTimeout + time.Duration(retries)*s.cfg.FetchRetryBase*4
}
