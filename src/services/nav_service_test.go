package services

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"github.com/username/navhub/src/config"
	"github.com/username/navhub/src/database"
	"github.com/username/navhub/src/logger"
	"github.com/username/navhub/src/models"
	"github.com/username/navhub/src/normalizer"
	"github.com/username/navhub/src/renderer"
	"github.com/username/navhub/src/sources"
	"github.com/username/navhub/src/store"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

var runDate = time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	cfg         *config.AppConfig
	navStore    *store.NAVStore
	seriesStore *store.SeriesStore
	email       *MockEmailService
	svc         NAVService
}

func newFixture(t *testing.T, emitters ...string) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.CreateSchema(db))
	t.Cleanup(func() { db.Close() })

	baseDir := t.TempDir()
	cfg := &config.AppConfig{
		InputDir:                filepath.Join(baseDir, "input"),
		OutputDir:               filepath.Join(baseDir, "output"),
		ExcludeISINsPath:        filepath.Join(baseDir, "Exclude ISINs.csv"),
		MorningstarTemplatePath: filepath.Join(baseDir, "morningstar.xlsx"),
		SIXTemplatePath:         filepath.Join(baseDir, "six.xlsx"),
		FetchTimeout:            5 * time.Second,
		FetchRetries:            1,
		FetchRetryBase:          time.Millisecond,
		MaxWorkers:              2,
	}

	var fetchers []sources.Fetcher
	for _, emitter := range emitters {
		fetchers = append(fetchers, sources.NewLocalSource(emitter, cfg.InputDir))
	}

	f := &fixture{
		cfg:         cfg,
		navStore:    store.NewNAVStore(db),
		seriesStore: store.NewSeriesStore(db),
		email:       &MockEmailService{},
	}
	f.svc = NewNAVService(cfg, fetchers, normalizer.MappingSet{}, f.navStore, f.seriesStore, f.email,
		cache.New(time.Minute, time.Minute))
	return f
}

func (f *fixture) writeDrop(t *testing.T, emitter, name, content string) {
	t.Helper()
	dir := filepath.Join(f.cfg.InputDir, emitter)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func (f *fixture) writeTemplate(t *testing.T, path, sheet string) {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()
	if sheet != "" {
		require.NoError(t, wb.SetSheetName("Sheet1", sheet))
	}
	require.NoError(t, wb.SaveAs(path))
}

const dropHeader = "ISIN,Series Number,Valuation Period-End Date,NAV,Frequency\n"

func TestIngestEndToEnd(t *testing.T) {
	f := newFixture(t, "HFMX", "ETPCAP2")
	f.writeDrop(t, "HFMX", "CAS_Flexfunds_NAV_07152026 HFMX.csv",
		dropHeader+"XS1,101,07/15/2026,100.25,Daily\nXS2,102,07/15/2026,-1,Daily\n")
	f.writeDrop(t, "ETPCAP2", "CAS_Flexfunds_NAV_07152026 ETPCAP2.csv",
		dropHeader+"XS3,103,07/15/2026,50,Daily\n")

	result, err := f.svc.Ingest(context.Background(), runDate, IngestOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "2026-07-15", result.Date)
	require.Len(t, result.Sources, 2)

	bySource := make(map[string]SourceReport)
	for _, r := range result.Sources {
		bySource[r.Source] = r
	}

	hfmx := bySource["HFMX"]
	assert.Equal(t, 2, hfmx.Fetched)
	assert.Equal(t, 1, hfmx.Accepted)
	assert.Equal(t, 1, hfmx.Inserted)
	require.Len(t, hfmx.Rejected, 1)
	assert.Equal(t, models.RejectInvalidValue, hfmx.Rejected[0].Reason)

	assert.Equal(t, 1, bySource["ETPCAP2"].Inserted)

	n, err := f.navStore.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-running the same day is idempotent.
	result, err = f.svc.Ingest(context.Background(), runDate, IngestOptions{})
	require.NoError(t, err)
	for _, r := range result.Sources {
		assert.Zero(t, r.Inserted, r.Source)
		assert.Zero(t, r.Updated, r.Source)
	}
	n, err = f.navStore.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIngestSourceFailureIsIsolated(t *testing.T) {
	f := newFixture(t, "HFMX", "CIX")
	f.writeDrop(t, "HFMX", "CAS_Flexfunds_NAV_07152026 HFMX.csv",
		dropHeader+"XS1,101,07/15/2026,100,Daily\n")
	// CIX drops a header-only file: its batch fails, HFMX still lands.
	f.writeDrop(t, "CIX", "CAS_Flexfunds_NAV_07152026 CIX.csv", "")

	result, err := f.svc.Ingest(context.Background(), runDate, IngestOptions{})
	require.NoError(t, err)

	bySource := make(map[string]SourceReport)
	for _, r := range result.Sources {
		bySource[r.Source] = r
	}
	assert.Equal(t, 1, bySource["HFMX"].Inserted)
	assert.NotEmpty(t, bySource["CIX"].Error)
	assert.Zero(t, bySource["CIX"].Inserted)
}

func TestIngestFrequencyFilter(t *testing.T) {
	f := newFixture(t, "HFMX")
	require.NoError(t, f.seriesStore.ReplaceAll(context.Background(), []models.Series{
		{ISIN: "XS1", SeriesName: "A", Status: models.StatusActive, NAVFrequency: models.FrequencyDaily},
		{ISIN: "XS2", SeriesName: "B", Status: models.StatusActive, NAVFrequency: models.FrequencyMonthly},
	}, nil, nil))
	f.writeDrop(t, "HFMX", "CAS_Flexfunds_NAV_07152026 HFMX.csv",
		dropHeader+"XS1,101,07/15/2026,100,Daily\nXS2,102,07/15/2026,200,Monthly\n")

	result, err := f.svc.Ingest(context.Background(), runDate, IngestOptions{Filters: []string{"monthly"}})
	require.NoError(t, err)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, 1, result.Sources[0].Inserted)
	assert.Equal(t, 1, result.Sources[0].Skipped)

	records, err := f.navStore.RecordsForDate(context.Background(), runDate, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "XS2", records[0].ISIN)
}

func TestIngestExclusionList(t *testing.T) {
	f := newFixture(t, "HFMX")
	require.NoError(t, os.WriteFile(f.cfg.ExcludeISINsPath, []byte("XS1\n"), 0o644))
	f.writeDrop(t, "HFMX", "CAS_Flexfunds_NAV_07152026 HFMX.csv",
		dropHeader+"XS1,101,07/15/2026,100,Daily\nXS2,102,07/15/2026,200,Daily\n")

	result, err := f.svc.Ingest(context.Background(), runDate, IngestOptions{})
	require.NoError(t, err)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, 1, result.Sources[0].Inserted)
	require.Len(t, result.Sources[0].Rejected, 1)
	assert.Equal(t, models.RejectExcludedISIN, result.Sources[0].Rejected[0].Reason)
}

func seedRecord(t *testing.T, f *fixture, isin, source, value string) {
	t.Helper()
	_, err := f.navStore.Upsert(context.Background(), models.NAVRecord{
		ISIN:       isin,
		NAVDate:    runDate,
		NAVValue:   decimal.RequireFromString(value),
		Source:     source,
		IngestedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestRenderWritesArtifacts(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, f.cfg.MorningstarTemplatePath, "NAVs")
	seedRecord(t, f, "XS1", "HFMX", "100.25")

	artifacts, err := f.svc.Render(context.Background(), runDate, []renderer.TemplateType{renderer.TemplateMorningstar})
	require.NoError(t, err)
	require.Len(t, artifacts, 1)

	art := artifacts[0]
	assert.Equal(t, "Flexfunds ETPs - NAVs 07.15.2026.xlsx", art.Filename)
	assert.Empty(t, art.Unfilled)
	assert.NotEmpty(t, art.Content)

	onDisk, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, art.Content, onDisk)
}

func TestDistributeSendsOneReportPerTemplate(t *testing.T) {
	f := newFixture(t)
	f.writeTemplate(t, f.cfg.MorningstarTemplatePath, "NAVs")
	f.writeTemplate(t, f.cfg.SIXTemplatePath, "")
	require.NoError(t, f.seriesStore.ReplaceAll(context.Background(), []models.Series{
		{ISIN: "XS1", SeriesName: "Alpha Fund", Status: models.StatusActive, Currency: "USD", NAVFrequency: models.FrequencyDaily},
		{ISIN: "XS2", SeriesName: "Beta Fund", Status: models.StatusActive, Currency: "USD", NAVFrequency: models.FrequencyDaily},
	}, nil, nil))
	seedRecord(t, f, "XS1", "HFMX", "100.25")
	seedRecord(t, f, "XS2", "HFMX", "200")
	seedRecord(t, f, "XS1", "ETPCAP2", "100.25")

	types := []renderer.TemplateType{renderer.TemplateMorningstar, renderer.TemplateSIX}
	artifacts, err := f.svc.Distribute(context.Background(), runDate, types, []string{"ops@example.com"}, "daily")
	require.NoError(t, err)
	assert.Len(t, artifacts, 2)

	require.Len(t, f.email.Sent, 2)
	first := f.email.Sent[0]
	assert.Equal(t, renderer.TemplateMorningstar, first.TemplateType)
	assert.Equal(t, []string{"ops@example.com"}, first.Recipients)
	require.Len(t, first.Attachments, 1)
	assert.Equal(t, "Flexfunds ETPs - NAVs 07.15.2026.xlsx", first.Attachments[0].Filename)
	assert.NotEmpty(t, first.Attachments[0].Content)

	second := f.email.Sent[1]
	assert.Equal(t, renderer.TemplateSIX, second.TemplateType)
	assert.Equal(t, map[string]int{"HFMX": 2, "ETPCAP2": 1}, second.SeriesBySource)
}

func TestStatsCachedUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	seedRecord(t, f, "XS1", "HFMX", "100")

	stats, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRecords)

	seedRecord(t, f, "XS2", "HFMX", "200")

	// Still the cached value.
	stats, err = f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRecords)

	f.svc.InvalidateStats()
	stats, err = f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
}

func TestReportSubjectBody(t *testing.T) {
	subject, body := reportSubjectBody(ReportMessage{
		TemplateType:   renderer.TemplateSIX,
		SeriesBySource: map[string]int{"HFMX": 2, "ETPCAP2": 1},
	})
	assert.Equal(t, "Pricing distribution - ETPCAP2, HFMX", subject)
	assert.Contains(t, body, "ETPCAP2: 1")
	assert.Contains(t, body, "HFMX: 2")
	assert.Contains(t, body, "Total series: 3")

	subject, _ = reportSubjectBody(ReportMessage{TemplateType: renderer.TemplateMorningstar})
	assert.Equal(t, "Calculation Agent ETPs - Morningstar NAV Update", subject)
}
