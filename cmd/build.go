package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/arrowline/internal/arrowline"
	"github.com/sells-group/arrowline/internal/export"
	"github.com/sells-group/arrowline/internal/metrics"
	"github.com/sells-group/arrowline/internal/source"
)

var (
	buildInput       string
	buildInputFormat string
	buildOutput      string
	buildFormat      string
	buildName        string
	buildXLSX        source.XLSXOptions
	buildLayer       layerFlags
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an arrow-line layer from a feature file",
	Example: `  arrowline build --input stops.geojson --sort-property visited_at --sort-type date_time --date-time-format "yyyy-MM-dd HH:mm"
  arrowline build --input parcels.shp --layer route.yaml --output route.kml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("build"); err != nil {
			return err
		}
		layerCfg, err := buildLayer.resolve(cfg.Layer)
		if err != nil {
			return err
		}

		fc, err := loadInput(cmd.InOrStdin(), buildInput, buildInputFormat, buildXLSX)
		if err != nil {
			return err
		}

		start := time.Now()
		layer, err := arrowline.Build(fc, layerCfg)
		metrics.ObserveBuild("cli", layer, time.Since(start), err)
		if err != nil {
			return eris.Wrap(err, "build layer")
		}

		format, err := outputFormat(buildFormat, buildOutput)
		if err != nil {
			return err
		}

		if buildOutput != "" && buildOutput != "-" {
			err = writeLayerFile(buildOutput, layer, format, buildName)
		} else {
			err = export.Write(cmd.OutOrStdout(), layer, format, buildName)
		}
		if err != nil {
			return err
		}

		zap.L().Info("layer built",
			zap.String("input", buildInput),
			zap.Int("features", len(layer.Features.Features)),
			zap.Int("arrow_heads", len(layer.ArrowHeads.Features)),
			zap.String("format", format),
		)
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVarP(&buildInput, "input", "i", "", "input file (.geojson, .json, .shp, .xlsx) or - for GeoJSON on stdin")
	buildCmd.Flags().StringVar(&buildInputFormat, "input-format", "", "input format when the extension is ambiguous (geojson, shapefile, xlsx)")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "output file (default stdout)")
	buildCmd.Flags().StringVarP(&buildFormat, "format", "f", "", "output format: geojson, kml or xlsx (default from --output extension)")
	buildCmd.Flags().StringVar(&buildName, "name", "", "document name for KML output")
	registerXLSXFlags(buildCmd, &buildXLSX)
	buildLayer.register(buildCmd)
	_ = buildCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(buildCmd)
}

func registerXLSXFlags(cmd *cobra.Command, opts *source.XLSXOptions) {
	cmd.Flags().StringVar(&opts.SheetName, "sheet", "", "xlsx sheet name (default first sheet)")
	cmd.Flags().StringVar(&opts.LonColumn, "lon-column", "", "xlsx longitude column header")
	cmd.Flags().StringVar(&opts.LatColumn, "lat-column", "", "xlsx latitude column header")
}

// loadInput reads features from path, or GeoJSON from stdin when path is "-".
func loadInput(stdin io.Reader, path, format string, xlsxOpts source.XLSXOptions) (*geojson.FeatureCollection, error) {
	if path == "-" {
		return source.ReadGeoJSON(stdin)
	}
	if format == "" {
		var err error
		if format, err = source.DetectFormat(path); err != nil {
			return nil, err
		}
	}
	if format == source.FormatXLSX {
		return source.LoadXLSX(path, xlsxOpts)
	}
	return source.LoadFormat(path, format)
}

// writeLayerFile renders the layer in memory and then writes it to path, so a
// failed export leaves any existing file untouched. A failed write removes
// the partial file.
func writeLayerFile(path string, layer *arrowline.Layer, format, name string) error {
	var buf bytes.Buffer
	if err := export.Write(&buf, layer, format, name); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	_, werr := f.Write(buf.Bytes())
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return eris.Wrapf(werr, "write %s", path)
	}
	return nil
}

// outputFormat picks the explicit format or infers it from the output path.
func outputFormat(format, output string) (string, error) {
	if format != "" {
		format = strings.ToLower(format)
		switch format {
		case export.FormatGeoJSON, export.FormatKML, export.FormatXLSX:
			return format, nil
		}
		return "", eris.Wrapf(export.ErrUnsupportedFormat, "output format %q", format)
	}
	switch strings.ToLower(filepath.Ext(output)) {
	case ".kml":
		return export.FormatKML, nil
	case ".xlsx":
		return export.FormatXLSX, nil
	}
	return export.FormatGeoJSON, nil
}
