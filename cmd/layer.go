package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/arrowline/internal/arrowline"
)

// layerFlags are the layer overrides shared by build and queue add.
type layerFlags struct {
	file           string
	sortProperty   string
	sortOrder      string
	sortType       string
	dateTimeFormat string
	center         string
	anchor         string
}

func (lf *layerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&lf.file, "layer", "", "YAML layer definition (sort, filters, center, anchor)")
	cmd.Flags().StringVar(&lf.sortProperty, "sort-property", "", "feature property to order by")
	cmd.Flags().StringVar(&lf.sortOrder, "sort-order", "", "asc or desc")
	cmd.Flags().StringVar(&lf.sortType, "sort-type", "", "number, string or date_time")
	cmd.Flags().StringVar(&lf.dateTimeFormat, "date-time-format", "", "pattern for date_time sorts, e.g. yyyy-MM-dd HH:mm:ss")
	cmd.Flags().StringVar(&lf.center, "center", "", "vertex-mean or bounds")
	cmd.Flags().StringVar(&lf.anchor, "anchor", "", "midpoint or great-circle")
}

// resolve starts from base, replaces it with the --layer file when given
// and applies individual flag overrides on top.
func (lf *layerFlags) resolve(base arrowline.Config) (arrowline.Config, error) {
	c := base
	if lf.file != "" {
		loaded, err := loadLayerFile(lf.file)
		if err != nil {
			return arrowline.Config{}, err
		}
		c = loaded
	}

	if lf.sortProperty != "" {
		c.Sort.Property = lf.sortProperty
	}
	if lf.sortOrder != "" {
		c.Sort.Order = arrowline.SortOrder(lf.sortOrder)
	}
	if lf.sortType != "" {
		c.Sort.Type = arrowline.PropertyType(lf.sortType)
	}
	if lf.dateTimeFormat != "" {
		c.Sort.DateTimeFormat = lf.dateTimeFormat
	}
	if lf.center != "" {
		c.Center = arrowline.CenterMode(lf.center)
	}
	if lf.anchor != "" {
		c.Anchor = arrowline.AnchorMode(lf.anchor)
	}

	if err := c.Validate(); err != nil {
		return arrowline.Config{}, eris.Wrap(err, "layer config")
	}
	return c, nil
}

func loadLayerFile(path string) (arrowline.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return arrowline.Config{}, eris.Wrapf(err, "read layer file %s", path)
	}
	var c arrowline.Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return arrowline.Config{}, eris.Wrapf(err, "parse layer file %s", path)
	}
	return c, nil
}
