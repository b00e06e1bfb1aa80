package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/arrowline/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "arrowline",
	Short: "Build directed arrow-line layers from geographic features",
	Long:  "Reduces features to center points, orders them by a property, joins them into a line and marks every segment with a bearing-rotated arrow head. Layers are built from the command line, over HTTP or from a persistent task queue.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
