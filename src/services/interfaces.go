package services

import (
	"context"
	"time"

	"github.com/username/navhub/src/models"
	"github.com/username/navhub/src/renderer"
	"github.com/username/navhub/src/store"
)

// Attachment is one rendered artifact handed to the dispatcher.
type Attachment struct {
	Filename string
	Content  []byte
}

// ReportMessage is the handoff contract to the distribution dispatcher: the
// rendered files plus everything the transport needs for the message body.
// Transport concerns (SMTP details, attachment-size limits) live behind
// EmailService.
type ReportMessage struct {
	Recipients   []string
	TemplateType renderer.TemplateType
	RunDate      time.Time
	FilterDesc   string
	Attachments  []Attachment
	// Distinct series counts per source, for the body summary.
	SeriesBySource map[string]int
}

// EmailService sends distribution reports. Implementations: Mailgun, SMTP,
// and a mock used when configuration is incomplete.
type EmailService interface {
	SendReport(ctx context.Context, msg ReportMessage) error
}

// IngestOptions narrows one ingestion run.
type IngestOptions struct {
	// Filters may mix NAV frequencies ("daily", "weekly", "monthly",
	// "quarterly"), the product-type shorthands ("wrappers_hybrid",
	// "loan"), and explicit ISINs.
	Filters []string
	// FileType, when set, keeps only rows from that drop file type.
	FileType string
}

// SourceReport is the per-source outcome of an ingestion run.
type SourceReport struct {
	Source    string               `json:"source"`
	Fetched   int                  `json:"fetched"`
	Accepted  int                  `json:"accepted"`
	Skipped   int                  `json:"skipped"`
	Rejected  []models.RejectedRow `json:"rejected,omitempty"`
	Inserted  int                  `json:"inserted"`
	Updated   int                  `json:"updated"`
	Unchanged int                  `json:"unchanged"`
	Error     string               `json:"error,omitempty"`
}

// IngestResult aggregates an ingestion run across all sources.
type IngestResult struct {
	RunID   string         `json:"runId"`
	Date    string         `json:"date"`
	Sources []SourceReport `json:"sources"`
}

// Artifact is one rendered output file.
type Artifact struct {
	TemplateType renderer.TemplateType  `json:"templateType"`
	Filename     string                 `json:"filename"`
	Path         string                 `json:"path"`
	Unfilled     []renderer.Coordinate  `json:"unfilled,omitempty"`
	Content      []byte                 `json:"-"`
}

// Stats is the read-only aggregate surface.
type Stats struct {
	TotalRecords int `json:"totalRecords"`
	TotalSeries  int `json:"totalSeries"`
}

// NAVService orchestrates the pipeline: fetch, normalize, reconcile, render
// and distribute.
type NAVService interface {
	Ingest(ctx context.Context, date time.Time, opts IngestOptions) (*IngestResult, error)
	Render(ctx context.Context, date time.Time, types []renderer.TemplateType) ([]Artifact, error)
	Distribute(ctx context.Context, date time.Time, types []renderer.TemplateType,
		recipients []string, filterDesc string) ([]Artifact, error)
	Query(ctx context.Context, filter store.QueryFilter, page, perPage int) ([]models.NAVRecord, int, error)
	Stats(ctx context.Context) (Stats, error)
	InvalidateStats()
}
