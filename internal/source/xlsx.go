package source

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// XLSXOptions configures the spreadsheet loader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	LonColumn  string // header of the longitude column; detected when empty
	LatColumn  string // header of the latitude column; detected when empty
}

var (
	lonHeaders = []string{"lon", "lng", "long", "longitude", "x"}
	latHeaders = []string{"lat", "latitude", "y"}
)

// LoadXLSX reads one sheet of a workbook as Point features. The first row
// holds the headers. Every other column becomes a property, as float64 when
// the cell parses as a number. Rows whose coordinates do not parse are
// skipped.
func LoadXLSX(path string, opts XLSXOptions) (*geojson.FeatureCollection, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: open xlsx file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	if len(sheet.Rows) == 0 {
		return fc, nil
	}

	header := rowToStrings(sheet.Rows[0])
	lonIdx, err := columnIndex(header, opts.LonColumn, lonHeaders)
	if err != nil {
		return nil, eris.Wrap(err, "source: longitude column")
	}
	latIdx, err := columnIndex(header, opts.LatColumn, latHeaders)
	if err != nil {
		return nil, eris.Wrap(err, "source: latitude column")
	}

	var skipped int
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if len(cells) <= lonIdx || len(cells) <= latIdx {
			skipped++
			continue
		}

		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(cells[lonIdx]), 64)
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(cells[latIdx]), 64)
		if lonErr != nil || latErr != nil {
			skipped++
			continue
		}

		feat := geojson.NewFeature(orb.Point{lon, lat})
		for i, name := range header {
			if i == lonIdx || i == latIdx || name == "" || i >= len(cells) {
				continue
			}
			val := strings.TrimSpace(cells[i])
			if val == "" {
				continue
			}
			if n, err := strconv.ParseFloat(val, 64); err == nil {
				feat.Properties[name] = n
			} else {
				feat.Properties[name] = val
			}
		}
		fc.Append(feat)
	}

	if skipped > 0 {
		zap.L().Debug("source: skipped xlsx rows",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}

	return fc, nil
}

func columnIndex(header []string, name string, candidates []string) (int, error) {
	if name != "" {
		candidates = []string{name}
	}
	for _, want := range candidates {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i, nil
			}
		}
	}
	return -1, eris.Errorf("source: none of %v found in header %v", candidates, header)
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("source: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("source: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
