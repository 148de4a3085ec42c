package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelier-carto/fondplan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fondplan",
	Short: "Municipal base-map builder from French open geodata",
	Long:  "Resolves a commune, fetches IGN Géoplateforme WFS layers clipped to its boundary, ingests SIRENE establishments and exports the composed base map.",
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
