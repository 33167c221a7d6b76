package main

import (
	"github.com/spf13/cobra"

	"github.com/RhNO3-lx/chartgen/internal/config"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chartgen",
		Short:         "Generate styled SVG infographics from tabular data",
		Long:          "chartgen selects a compatible chart template for a dataset, renders it,\nsolves title and image placement against the chart's occupancy mask and\ncomposes the final infographic SVG.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./chartgen.yaml)")

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newBatchCmd())
	root.AddCommand(newTemplatesCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
