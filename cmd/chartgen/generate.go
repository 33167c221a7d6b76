package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RhNO3-lx/chartgen/internal/model"
	"github.com/RhNO3-lx/chartgen/internal/pipeline"
)

func newGenerateCmd() *cobra.Command {
	var (
		dataPath    string
		csvPath     string
		palettePath string
		title       string
		description string
		chart       string
		theme       string
		imagePath   string
		outDir      string
		preview     bool
		statusPath  string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one infographic from a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataPath == "" && csvPath == "" {
				return fmt.Errorf("one of --data or --csv is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			p := pipeline.New(cfg)
			p.Status = pipeline.NewStatusCache(statusPath)

			job := pipeline.Job{
				ID:          jobID(dataPath, csvPath),
				DatasetPath: dataPath,
				CSVPath:     csvPath,
				PalettePath: palettePath,
				Title:       title,
				Description: description,
				PinnedChart: chart,
				Theme:       model.ColorTheme(theme),
				ImagePath:   imagePath,
				OutputDir:   outDir,
				PreviewPNG:  preview,
			}
			lp, err := p.Run(cmd.Context(), job)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s (%s/%s/%s, canvas %dx%d)\n",
				filepath.Join(outDir, "chart.svg"),
				lp.Engine, lp.ChartType, lp.ChartName,
				lp.CanvasWidth, lp.CanvasHeight)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "dataset JSON file")
	cmd.Flags().StringVar(&csvPath, "csv", "", "dataset CSV file (types inferred)")
	cmd.Flags().StringVar(&palettePath, "palette", "", "two-theme palette JSON file")
	cmd.Flags().StringVar(&title, "title", "", "infographic title (generated when empty)")
	cmd.Flags().StringVar(&description, "description", "", "context for title/image generation")
	cmd.Flags().StringVar(&chart, "chart", "", "pin a specific chart name")
	cmd.Flags().StringVar(&theme, "theme", "light", "color theme: light or dark")
	cmd.Flags().StringVar(&imagePath, "image", "", "decorative image file")
	cmd.Flags().StringVar(&outDir, "out", "out", "output directory")
	cmd.Flags().BoolVar(&preview, "preview", false, "also write a PNG preview")
	cmd.Flags().StringVar(&statusPath, "status-file", "", "progress status JSON file")
	return cmd
}

func jobID(dataPath, csvPath string) string {
	src := dataPath
	if src == "" {
		src = csvPath
	}
	base := filepath.Base(src)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
