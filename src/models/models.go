package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SeriesStatus uses the master file's vocabulary: "A" for active,
// "D" for discontinued, "Matured" for matured.
type SeriesStatus string

const (
	StatusActive       SeriesStatus = "A"
	StatusDiscontinued SeriesStatus = "D"
	StatusMatured      SeriesStatus = "Matured"
)

type NAVFrequency string

const (
	FrequencyDaily     NAVFrequency = "Daily"
	FrequencyWeekly    NAVFrequency = "Weekly"
	FrequencyMonthly   NAVFrequency = "Monthly"
	FrequencyQuarterly NAVFrequency = "Quarterly"
)

// ParseNAVFrequency maps free-form master-file values ("daily", "Daily NAV")
// onto the canonical frequency. Unrecognized values default to quarterly,
// matching the upstream data convention.
func ParseNAVFrequency(s string) NAVFrequency {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "daily"):
		return FrequencyDaily
	case strings.Contains(lower, "weekly"):
		return FrequencyWeekly
	case strings.Contains(lower, "monthly"):
		return FrequencyMonthly
	default:
		return FrequencyQuarterly
	}
}

// NAVRecord is a normalized, validated NAV entry ready for storage.
// Unique per (ISIN, NAVDate, Source).
type NAVRecord struct {
	ID           int64           `json:"id,omitempty"`
	ISIN         string          `json:"isin"`
	SeriesNumber string          `json:"seriesNumber,omitempty"`
	NAVDate      time.Time       `json:"navDate"`
	NAVValue     decimal.Decimal `json:"navValue"`
	Source       string          `json:"source"`
	FileType     string          `json:"fileType,omitempty"` // standard, hybrid or loan
	IngestedAt   time.Time       `json:"ingestedAt"`
	RawRef       string          `json:"rawRef,omitempty"` // originating file and line
}

// Series carries the qualitative attributes of one instrument. Rows are
// created and updated only by the qualitative commit step; NAV ingestion
// never touches them.
type Series struct {
	ISIN                     string       `json:"isin"`
	CommonCode               string       `json:"commonCode,omitempty"`
	SeriesNumber             string       `json:"seriesNumber,omitempty"`
	SeriesName               string       `json:"seriesName"`
	Status                   SeriesStatus `json:"status"`
	IssuanceType             string       `json:"issuanceType,omitempty"`
	ProductType              string       `json:"productType,omitempty"`
	IssuanceDate             *time.Time   `json:"issuanceDate,omitempty"`
	MaturityDate             *time.Time   `json:"maturityDate,omitempty"`
	CloseDate                *time.Time   `json:"closeDate,omitempty"`
	Issuer                   string       `json:"issuer,omitempty"`
	Region                   string       `json:"region,omitempty"`
	PortfolioManager         string       `json:"portfolioManager,omitempty"`
	AssetManager             string       `json:"assetManager,omitempty"`
	Currency                 string       `json:"currency,omitempty"`
	NAVFrequency             NAVFrequency `json:"navFrequency"`
	IssuancePrincipalAmount  float64      `json:"issuancePrincipalAmount,omitempty"`
	FeesFrequency            string       `json:"feesFrequency,omitempty"`
	PaymentMethod            string       `json:"paymentMethod,omitempty"`
	UnderlyingValuationCycle string       `json:"underlyingValuationCycle,omitempty"`
}

// Custodian is a per-series custody account, sourced from the master file.
type Custodian struct {
	ID            int64  `json:"id,omitempty"`
	SeriesISIN    string `json:"seriesIsin"`
	CustodianName string `json:"custodianName"`
	AccountNumber string `json:"accountNumber,omitempty"`
}

type FeeCategory string

const (
	FeeFixed    FeeCategory = "Fixed"
	FeeAUMBased FeeCategory = "AUM Based"
)

// FeeStructure is one fee line owned by a series, sourced from the master
// file and read-only everywhere else.
type FeeStructure struct {
	ID            int64       `json:"id,omitempty"`
	SeriesISIN    string      `json:"seriesIsin"`
	FeeType       string      `json:"feeType"` // e.g. "Arranger Fee"
	Category      FeeCategory `json:"category"`
	FeePercentage *float64    `json:"feePercentage,omitempty"`
	FixedAmount   *float64    `json:"fixedAmount,omitempty"`
	Currency      string      `json:"currency,omitempty"`
	Notes         string      `json:"notes,omitempty"` // non-standard values and ranges verbatim
}

type RejectReason string

const (
	RejectMissingField RejectReason = "missing_field"
	RejectParseError   RejectReason = "parse_error"
	RejectExcludedISIN RejectReason = "excluded_isin"
	RejectInvalidValue RejectReason = "invalid_value"
)

// RejectedRow reports one row that failed normalization. Row-level problems
// are data, not errors: a batch never aborts because of them.
type RejectedRow struct {
	Source string       `json:"source"`
	File   string       `json:"file,omitempty"`
	Line   int          `json:"line"`
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}
