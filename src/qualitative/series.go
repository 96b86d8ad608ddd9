package qualitative

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/username/navhub/src/models"
	"github.com/username/navhub/src/utils"
)

// Fee columns in the master file and how each is categorized.
var feeColumns = []struct {
	Column   string
	Category models.FeeCategory
}{
	{"Arranger Fee", models.FeeAUMBased},
	{"Maintenance Fee", models.FeeAUMBased},
	{"Set Up Fees", models.FeeFixed},
	{"Price Dissemination Fee", models.FeeFixed},
	{"Inventory Cost", models.FeeFixed},
	{"Notes Registration Fee", models.FeeFixed},
	{"Technology Service Charge", models.FeeFixed},
	{"Performance Fee", models.FeeFixed},
	{"Trustee / Corporate Fees", models.FeeFixed},
	{"Auditor Fee", models.FeeFixed},
	{"Transfer Agent Fee", models.FeeFixed},
	{"Ad hoc NAV", models.FeeFixed},
}

// ExtractSeries converts a parsed qualitative file into store rows: series
// attributes plus their custodians (columns "Custodian 1".."Custodian 3")
// and fee structures.
func ExtractSeries(f *File) ([]models.Series, []models.Custodian, []models.FeeStructure) {
	series := make([]models.Series, 0, len(f.Rows))
	var custodians []models.Custodian
	var fees []models.FeeStructure

	for _, row := range f.Rows {
		series = append(series, rowToSeries(row))

		for i := 1; i <= 3; i++ {
			name := row.Get(fmt.Sprintf("Custodian %d", i))
			if name == "" {
				continue
			}
			custodians = append(custodians, models.Custodian{
				SeriesISIN:    row.ISIN,
				CustodianName: name,
				AccountNumber: row.Get(fmt.Sprintf("Custodian %d Account Number", i)),
			})
		}

		for _, fc := range feeColumns {
			raw := row.Get(fc.Column)
			if raw == "" {
				continue
			}
			percentage, fixed, notes := parseFeeValue(raw)
			fee := models.FeeStructure{
				SeriesISIN: row.ISIN,
				FeeType:    fc.Column,
				Category:   fc.Category,
				Notes:      notes,
			}
			if percentage != nil {
				fee.FeePercentage = percentage
			}
			if fixed != nil {
				fee.FixedAmount = fixed
			}
			if fc.Category == models.FeeFixed {
				fee.Currency = row.Get("Currency")
			}
			fees = append(fees, fee)
		}
	}
	return series, custodians, fees
}

func rowToSeries(row Row) models.Series {
	s := models.Series{
		ISIN:                     row.ISIN,
		CommonCode:               row.Get("Common Code"),
		SeriesNumber:             row.Get("Series Number"),
		SeriesName:               row.Get("Series Name"),
		Status:                   parseStatus(row.Get("Status")),
		IssuanceType:             row.Get("Issuance Type"),
		ProductType:              row.Get("Product type"),
		Issuer:                   row.Get("Issuer"),
		Region:                   row.Get("Series Region"),
		PortfolioManager:         row.Get("Portfolio Manager"),
		AssetManager:             row.Get("Asset Manager"),
		Currency:                 row.Get("Currency"),
		NAVFrequency:             models.ParseNAVFrequency(row.Get("NAV Frequency")),
		FeesFrequency:            row.Get("Fees Frequency"),
		PaymentMethod:            row.Get("Payment Method"),
		UnderlyingValuationCycle: row.Get("Underlying Valuation Update"),
	}
	s.IssuanceDate = parseOptionalDate(row.Get("Issuance Date"))
	s.MaturityDate = parseOptionalDate(row.Get("Scheduled Maturity Date"))
	s.CloseDate = parseOptionalDate(row.Get("Close Date"))
	if v, err := strconv.ParseFloat(strings.ReplaceAll(row.Get("Issuance Principal Amount"), ",", ""), 64); err == nil {
		s.IssuancePrincipalAmount = v
	}
	return s
}

func parseStatus(s string) models.SeriesStatus {
	switch {
	case strings.EqualFold(s, "A"):
		return models.StatusActive
	case strings.EqualFold(s, "Matured"):
		return models.StatusMatured
	default:
		return models.StatusDiscontinued
	}
}

func parseOptionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := utils.ParseNAVDate(s)
	if err != nil {
		return nil
	}
	return &t
}

// parseFeeValue handles the formats fee cells show up in: percentages,
// percentage ranges ("15.00% - 30.00%", lower bound used, range kept as a
// note), plain numbers, and free text (kept verbatim as a note).
func parseFeeValue(value string) (percentage *float64, fixed *float64, notes string) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" || strings.EqualFold(value, "n/a") {
		zero := 0.0
		return &zero, &zero, ""
	}

	if strings.Contains(value, " - ") && strings.Contains(value, "%") {
		lowerStr := strings.TrimSpace(strings.ReplaceAll(strings.Split(value, " - ")[0], "%", ""))
		if lower, err := strconv.ParseFloat(lowerStr, 64); err == nil {
			p := lower / 100
			return &p, nil, value
		}
		return nil, nil, value
	}

	if strings.Contains(value, "%") {
		numStr := strings.TrimSpace(strings.ReplaceAll(value, "%", ""))
		if num, err := strconv.ParseFloat(numStr, 64); err == nil {
			p := num / 100
			return &p, nil, ""
		}
		return nil, nil, value
	}

	if num, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64); err == nil {
		return nil, &num, ""
	}
	return nil, nil, value
}
