package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/RhNO3-lx/chartgen/internal/model"
	"github.com/RhNO3-lx/chartgen/internal/pipeline"
)

func newBatchCmd() *cobra.Command {
	var (
		inDir      string
		outRoot    string
		theme      string
		preview    bool
		statusPath string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Generate infographics for every dataset in a directory",
		Long:  "Scans the input directory for *.json datasets. A sibling <name>.palette.json\nis used as the palette when present. Each dataset's artifacts land in\n<out-root>/<name>/.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if outRoot == "" {
				outRoot = cfg.OutputRoot
			}

			datasets, err := filepath.Glob(filepath.Join(inDir, "*.json"))
			if err != nil {
				return err
			}
			var jobs []pipeline.Job
			for _, ds := range datasets {
				if filepath.Ext(trimExt(ds)) == ".palette" {
					continue
				}
				id := filepath.Base(trimExt(ds))
				job := pipeline.Job{
					ID:          id,
					DatasetPath: ds,
					Theme:       model.ColorTheme(theme),
					OutputDir:   filepath.Join(outRoot, id),
					PreviewPNG:  preview,
				}
				if pal := trimExt(ds) + ".palette.json"; exists(pal) {
					job.PalettePath = pal
				}
				jobs = append(jobs, job)
			}
			if len(jobs) == 0 {
				return fmt.Errorf("no datasets found in %s", inDir)
			}
			sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

			p := pipeline.New(cfg)
			p.Status = pipeline.NewStatusCache(statusPath)
			if err := p.Batch(cmd.Context(), jobs); err != nil {
				return err
			}
			fmt.Printf("batch finished: %d jobs under %s\n", len(jobs), outRoot)
			return nil
		},
	}

	cmd.Flags().StringVar(&inDir, "in", ".", "directory of dataset JSON files")
	cmd.Flags().StringVar(&outRoot, "out-root", "", "root output directory (default from config)")
	cmd.Flags().StringVar(&theme, "theme", "light", "color theme: light or dark")
	cmd.Flags().BoolVar(&preview, "preview", false, "also write PNG previews")
	cmd.Flags().StringVar(&statusPath, "status-file", "", "progress status JSON file")
	return cmd
}

func trimExt(path string) string {
	return path[:len(path)-len(filepath.Ext(path))]
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
