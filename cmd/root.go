package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bioscope/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bioscope",
	Short: "Biodiversity risk lookup with mitigation recommendations",
	Long:  "Aggregates invasive species, IUCN, and habitat condition layers around a location and attaches a mitigation action to every risk from a curated corpus.",
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
