package renderer

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/username/navhub/src/models"
)

// Batch is the record set for one render call.
type Batch struct {
	RunDate time.Time
	Records []models.NAVRecord
	// Series attributes keyed by ISIN; consulted only by maps that join
	// against them.
	Series map[string]models.Series
}

// Coordinate names one mapped cell that was left at its template default.
type Coordinate struct {
	Cell  string `json:"cell"`
	Field Field  `json:"field"`
	ISIN  string `json:"isin,omitempty"`
}

// Render writes the batch into the template at the mapped coordinates and
// returns the new workbook bytes. Nothing outside the mapped cells is
// touched; styles, merged regions and formulas survive serialization.
// Records the map cannot fully place are skipped and reported as unfilled
// coordinates rather than failing the render.
func Render(template []byte, cm CellMap, batch Batch) ([]byte, []Coordinate, error) {
	f, err := excelize.OpenReader(bytes.NewReader(template))
	if err != nil {
		return nil, nil, fmt.Errorf("open template workbook: %w", err)
	}
	defer f.Close()

	sheet := cm.Sheet
	if sheet == "" {
		sheet = f.GetSheetList()[0]
	} else {
		if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
			return nil, nil, fmt.Errorf("template has no sheet %q", cm.Sheet)
		}
	}

	if cm.HeaderDateCell != "" {
		if err := f.SetCellValue(sheet, cm.HeaderDateCell, batch.RunDate.Format("01/02/2006")); err != nil {
			return nil, nil, fmt.Errorf("write run date: %w", err)
		}
	}

	var unfilled []Coordinate
	row := cm.StartRow
	for _, rec := range batch.Records {
		var series models.Series
		if cm.NeedsSeries {
			var ok bool
			series, ok = batch.Series[rec.ISIN]
			if !ok {
				// No attributes for this ISIN; leave the whole row at its
				// template default and report every mapped cell.
				for field, col := range cm.Columns {
					unfilled = append(unfilled, Coordinate{
						Cell:  fmt.Sprintf("%s%d", col, row),
						Field: field,
						ISIN:  rec.ISIN,
					})
				}
				row++
				continue
			}
		}

		for field, col := range cm.Columns {
			cell := fmt.Sprintf("%s%d", col, row)
			value := fieldValue(field, rec, series, cm.NeedsSeries)
			if value == nil {
				unfilled = append(unfilled, Coordinate{Cell: cell, Field: field, ISIN: rec.ISIN})
				continue
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, nil, fmt.Errorf("write %s: %w", cell, err)
			}
		}
		for col, constant := range cm.Constants {
			cell := fmt.Sprintf("%s%d", col, row)
			if err := f.SetCellValue(sheet, cell, constant); err != nil {
				return nil, nil, fmt.Errorf("write %s: %w", cell, err)
			}
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), unfilled, nil
}

func fieldValue(field Field, rec models.NAVRecord, series models.Series, haveSeries bool) any {
	switch field {
	case FieldISIN:
		return rec.ISIN
	case FieldDate:
		return rec.NAVDate.Format("01/02/2006")
	case FieldNAV:
		v, _ := rec.NAVValue.Float64()
		return v
	case FieldSeriesName:
		if !haveSeries || series.SeriesName == "" {
			return nil
		}
		return series.SeriesName
	case FieldCurrency:
		if haveSeries && series.Currency != "" {
			return series.Currency
		}
		return "USD"
	case FieldFrequency:
		if haveSeries && series.NAVFrequency != "" {
			return string(series.NAVFrequency)
		}
		return string(models.FrequencyDaily)
	default:
		return nil
	}
}
