package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/arrowline/internal/arrowline"
)

// WriteXLSX writes a workbook with two sheets. "Features" lists the ordered
// features with their line point and properties. "ArrowHeads" lists one row
// per segment with the anchor and bearing.
func WriteXLSX(w io.Writer, layer *arrowline.Layer) error {
	f := xlsx.NewFile()

	if err := writeFeatureSheet(f, layer); err != nil {
		return err
	}
	if err := writeArrowSheet(f, layer); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func writeFeatureSheet(f *xlsx.File, layer *arrowline.Layer) error {
	sheet, err := f.AddSheet("Features")
	if err != nil {
		return eris.Wrap(err, "export: add features sheet")
	}

	var keys []string
	if layer.Features != nil {
		seen := make(map[string]bool)
		for _, feat := range layer.Features.Features {
			for k := range feat.Properties {
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
		}
	}
	sort.Strings(keys)

	header := sheet.AddRow()
	for _, h := range append([]string{"order", "lon", "lat"}, keys...) {
		header.AddCell().SetString(h)
	}

	for i, p := range layer.Line {
		row := sheet.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().SetFloat(p.Lon())
		row.AddCell().SetFloat(p.Lat())

		if layer.Features == nil || i >= len(layer.Features.Features) {
			continue
		}
		props := layer.Features.Features[i].Properties
		for _, k := range keys {
			cell := row.AddCell()
			switch v := props[k].(type) {
			case nil:
			case float64:
				cell.SetFloat(v)
			case string:
				cell.SetString(v)
			default:
				cell.SetString(fmt.Sprint(v))
			}
		}
	}
	return nil
}

func writeArrowSheet(f *xlsx.File, layer *arrowline.Layer) error {
	sheet, err := f.AddSheet("ArrowHeads")
	if err != nil {
		return eris.Wrap(err, "export: add arrow heads sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"segment", "lon", "lat", arrowline.BearingProperty} {
		header.AddCell().SetString(h)
	}

	if layer.ArrowHeads == nil {
		return nil
	}
	for i, feat := range layer.ArrowHeads.Features {
		p, ok := pointOf(feat.Geometry)
		if !ok {
			continue
		}
		row := sheet.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().SetFloat(p.Lon())
		row.AddCell().SetFloat(p.Lat())
		row.AddCell().SetFloat(feat.Properties.MustFloat64(arrowline.BearingProperty, 0))
	}
	return nil
}

func pointOf(g orb.Geometry) (orb.Point, bool) {
	p, ok := g.(orb.Point)
	return p, ok
}
