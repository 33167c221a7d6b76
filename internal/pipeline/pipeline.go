// Package pipeline chains the generation stages for one infographic:
// load, filter, select, render, mask, layout, compose. Each stage's
// outcome is mirrored into the shared status cache so long batch runs
// are observable from outside.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"math"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RhNO3-lx/chartgen/internal/compat"
	"github.com/RhNO3-lx/chartgen/internal/compose"
	"github.com/RhNO3-lx/chartgen/internal/config"
	"github.com/RhNO3-lx/chartgen/internal/genai"
	"github.com/RhNO3-lx/chartgen/internal/layout"
	"github.com/RhNO3-lx/chartgen/internal/mask"
	"github.com/RhNO3-lx/chartgen/internal/model"
	"github.com/RhNO3-lx/chartgen/internal/registry"
	"github.com/RhNO3-lx/chartgen/internal/render"
	"github.com/RhNO3-lx/chartgen/internal/selector"
)

// Job describes one infographic to generate.
type Job struct {
	ID          string
	DatasetPath string // JSON dataset; CSVPath used when empty
	CSVPath     string
	PalettePath string

	Title       string // empty: generated from the dataset description
	Description string // prompt context for title/image generation
	PinnedChart string // force a specific chart_name
	Theme       model.ColorTheme
	ImagePath   string // decorative image file; empty: generated
	OutputDir   string
	PreviewPNG  bool
}

// Pipeline holds the shared stage components. Safe for concurrent Run
// calls; per-job randomness is derived under a lock.
type Pipeline struct {
	Cfg      *config.Config
	Store    *registry.Store
	Stats    *selector.SelectionStats
	Renderer render.Renderer
	Masks    *mask.Engine
	Headless *render.HeadlessRenderer
	Status   *StatusCache

	Text   genai.TextGenerator
	Images genai.ImageGenerator
	Embed  genai.Embedder

	seedMu sync.Mutex
	seed   *rand.Rand
}

// New wires a pipeline from configuration. The mask rasterizer is the
// external CLI when configured, headless Chrome otherwise.
func New(cfg *config.Config) *Pipeline {
	headless := render.NewHeadlessRenderer()
	headless.Timeout = cfg.ChromeTimeout

	var rz mask.Rasterizer
	if cfg.RasterizerCommand != "" {
		rz = &mask.CLIRasterizer{Command: cfg.RasterizerCommand}
	} else {
		rz = &mask.ChromeRasterizer{}
	}
	eng := &mask.Engine{Rasterizer: rz, Grid: cfg.MaskGrid, Threshold: cfg.MaskThreshold}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p := &Pipeline{
		Cfg:      cfg,
		Store:    registry.NewStore(cfg.TemplateRoot),
		Stats:    selector.NewSelectionStats(),
		Headless: headless,
		Masks:    eng,
		seed:     rand.New(rand.NewSource(seed)),
	}
	p.Renderer = render.NewDispatcher(headless)

	if cfg.Endpoint != "" {
		client := genai.NewClient(cfg.Endpoint)
		p.Text, p.Images, p.Embed = client, client, client
	}
	return p
}

// newRng hands each job an independent deterministic stream.
func (p *Pipeline) newRng() *rand.Rand {
	p.seedMu.Lock()
	defer p.seedMu.Unlock()
	return rand.New(rand.NewSource(p.seed.Int63()))
}

func (p *Pipeline) step(jobID, step string) {
	if err := p.Status.Update(jobID, JobStatus{Step: step, Status: "running"}); err != nil {
		log.Printf("pipeline: status update failed: %v", err)
	}
}

func (p *Pipeline) fail(jobID, step string, err error) error {
	if uerr := p.Status.Update(jobID, JobStatus{Step: step, Status: "failed", Message: err.Error()}); uerr != nil {
		log.Printf("pipeline: status update failed: %v", uerr)
	}
	return err
}

// Run executes the full pipeline for one job and returns the layout
// record written to the sidecar.
func (p *Pipeline) Run(ctx context.Context, job Job) (*model.LayoutPlacement, error) {
	rng := p.newRng()

	p.step(job.ID, StepLoad)
	ds, pp, err := p.load(job)
	if err != nil {
		return nil, p.fail(job.ID, StepLoad, err)
	}
	if err := p.Store.Rebuild(render.BuiltinTemplates(), false); err != nil {
		return nil, p.fail(job.ID, StepLoad, err)
	}

	theme := job.Theme
	if theme == "" {
		theme = model.ThemeLight
	}

	p.step(job.ID, StepFilter)
	cands, err := compat.Filter(ds, p.Store, job.PinnedChart, theme)
	if err != nil {
		return nil, p.fail(job.ID, StepFilter, err)
	}

	p.step(job.ID, StepSelect)
	chosen, err := p.selectTemplate(ctx, cands, job, rng)
	if err != nil {
		return nil, p.fail(job.ID, StepSelect, err)
	}
	tmpl := chosen.Template
	if err := ds.AssignRoles(chosen.Roles); err != nil {
		return nil, p.fail(job.ID, StepSelect, err)
	}
	pal := pp.ForTheme(tmpl.Requirements.Theme())

	p.step(job.ID, StepRender)
	res, err := p.Renderer.Render(ctx, tmpl, ds, pal, p.Cfg.ChartWidth, p.Cfg.ChartHeight)
	if err != nil {
		return nil, p.fail(job.ID, StepRender, err)
	}

	p.step(job.ID, StepMask)
	full, err := p.Masks.Compute(ctx, res.SVG, res.Width, res.Height, pal.BackgroundColor)
	if err != nil {
		return nil, p.fail(job.ID, StepMask, err)
	}
	textMask, err := p.Masks.ComputeText(ctx, res.SVG, res.Width, res.Height, pal.BackgroundColor)
	if err != nil {
		return nil, p.fail(job.ID, StepMask, err)
	}

	p.step(job.ID, StepLayout)
	title, err := p.resolveTitle(ctx, job, ds)
	if err != nil {
		return nil, p.fail(job.ID, StepLayout, err)
	}
	cands2 := layout.MeasureTitleCandidates(title, res.Width, 0)
	tl := layout.PlaceTitle(full, cands2, layout.TitleOptions{ChartType: tmpl.ChartType, Rng: rng})

	lp := &model.LayoutPlacement{
		Title:        tl.Title,
		ChartDX:      tl.ChartDX,
		ChartDY:      tl.ChartDY,
		CanvasWidth:  tl.CanvasWidth,
		CanvasHeight: tl.CanvasHeight,
		Engine:       tmpl.Engine.String(),
		ChartType:    tmpl.ChartType,
		ChartName:    tmpl.ChartName,
		Source:       job.DatasetPath,
	}

	decor, href, err := p.resolveImage(ctx, job, title)
	if err != nil {
		return nil, p.fail(job.ID, StepLayout, err)
	}
	canvasContent := canvasMask(full, tl, true)
	if decor != nil {
		lp.Image = p.placeImage(decor, textMask, tl, canvasContent)
	} else {
		lp.Image = model.ImagePlacement{Mode: model.ImageNone}
	}
	if lp.Image.Mode != model.ImageNone {
		lp.Image.Region = compose.RegionTag(lp.Image.X, lp.Image.Y, lp.Image.Size, lp.CanvasWidth, lp.CanvasHeight)
	}

	p.step(job.ID, StepCompose)
	final, err := compose.Compose(compose.Input{
		ChartSVG:    res.SVG,
		ChartWidth:  res.Width,
		ChartHeight: res.Height,
		Layout:      lp,
		TitleText:   title,
		Palette:     pal,
		ImageHref:   href,
	})
	if err != nil {
		return nil, p.fail(job.ID, StepCompose, err)
	}

	art := &compose.Artifacts{SVG: final, Layout: lp, Dataset: ds, DebugMask: canvasContent}
	if job.PreviewPNG && p.Headless != nil {
		png, err := p.Headless.Screenshot(ctx, final, lp.CanvasWidth, lp.CanvasHeight)
		if err != nil {
			log.Printf("pipeline: %s: preview screenshot failed: %v", job.ID, err)
		} else {
			art.PNG = png
		}
	}
	if err := compose.Write(job.OutputDir, art); err != nil {
		return nil, p.fail(job.ID, StepCompose, err)
	}

	if err := p.Status.Update(job.ID, JobStatus{
		Step: StepCompose, Status: "done", Completed: true,
		Engine: lp.Engine, ChartType: lp.ChartType, ChartName: lp.ChartName,
	}); err != nil {
		log.Printf("pipeline: status update failed: %v", err)
	}
	return lp, nil
}

func (p *Pipeline) load(job Job) (*model.DatasetDescriptor, *model.PalettePair, error) {
	var ds *model.DatasetDescriptor
	var err error
	switch {
	case job.DatasetPath != "":
		ds, err = model.LoadDataset(job.DatasetPath)
	case job.CSVPath != "":
		ds, err = model.LoadCSV(job.CSVPath)
	default:
		return nil, nil, fmt.Errorf("job %s: no dataset source", job.ID)
	}
	if err != nil {
		return nil, nil, err
	}

	if job.PalettePath == "" {
		return ds, defaultPalettes(), nil
	}
	pp, err := model.LoadPalettePair(job.PalettePath)
	if err != nil {
		return nil, nil, err
	}
	return ds, pp, nil
}

func (p *Pipeline) selectTemplate(ctx context.Context, cands []compat.Candidate, job Job, rng *rand.Rand) (compat.Candidate, error) {
	if p.Cfg.Selection == "embedding" && p.Embed != nil {
		target := job.Description
		if target == "" {
			target = job.Title
		}
		return selector.SelectByEmbedding(ctx, p.Embed, cands, p.Cfg.ExampleRoot, target, rng)
	}
	return selector.SelectFair(p.Stats, cands, rng)
}

// resolveTitle uses the job's title verbatim, or fans out a few
// generation attempts and keeps the first non-empty result. Requests are
// staggered by the configured delay to stay under provider rate limits.
func (p *Pipeline) resolveTitle(ctx context.Context, job Job, ds *model.DatasetDescriptor) (string, error) {
	if job.Title != "" {
		return job.Title, nil
	}
	if p.Text == nil {
		return "", fmt.Errorf("job %s: no title given and no text generator configured", job.ID)
	}

	prompt := fmt.Sprintf("Write a short infographic headline for a dataset with columns %s. %s",
		columnNames(ds), job.Description)

	const attempts = 3
	results := make([]string, attempts)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < attempts; i++ {
		i := i
		g.Go(func() error {
			if i > 0 {
				select {
				case <-time.After(time.Duration(i) * p.Cfg.TitleDelay):
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			out, err := p.Text.GenerateText(gctx, prompt)
			if err != nil {
				log.Printf("pipeline: %s: title attempt %d failed: %v", job.ID, i, err)
				return nil // one failed attempt never sinks the job
			}
			results[i] = strings.TrimSpace(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	for _, r := range results {
		if r != "" {
			return r, nil
		}
	}
	return "", fmt.Errorf("job %s: all title generation attempts failed", job.ID)
}

// resolveImage loads or generates the decorative image. A missing image
// source is not an error; the infographic simply goes without.
func (p *Pipeline) resolveImage(ctx context.Context, job Job, title string) (image.Image, string, error) {
	if job.ImagePath != "" {
		f, err := os.Open(job.ImagePath)
		if err != nil {
			return nil, "", fmt.Errorf("opening image %s: %w", job.ImagePath, err)
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return nil, "", fmt.Errorf("decoding image %s: %w", job.ImagePath, err)
		}
		return img, job.ImagePath, nil
	}
	if p.Images == nil {
		return nil, "", nil
	}
	raw, err := p.Images.GenerateImage(ctx, "Minimal decorative illustration for: "+title, 512, 512)
	if err != nil {
		log.Printf("pipeline: %s: image generation failed, continuing without: %v", job.ID, err)
		return nil, "", nil
	}
	img, uri, err := genai.DecodeImage(raw)
	if err != nil {
		log.Printf("pipeline: %s: decoding generated image failed, continuing without: %v", job.ID, err)
		return nil, "", nil
	}
	return img, uri, nil
}

// placeImage runs the size-and-position search on the canvas-level
// masks. Exhaustion degrades to mode none.
func (p *Pipeline) placeImage(decor image.Image, textMask *mask.Mask, tl layout.TitleLayout, canvasContent *mask.Mask) model.ImagePlacement {
	canvasText := canvasMask(textMask, tl, true)
	expanded := canvasContent.Expand(2)

	cellPx := p.Cfg.MaskGrid * p.Cfg.SearchFactor
	stamp := func(sizePx int) (*mask.Mask, error) {
		return layout.StampFromImage(decor, sizePx, cellPx)
	}
	placement, err := layout.ChooseImagePlacement(layout.ImageSearch{
		Content:     expanded,
		Text:        canvasText,
		Factor:      p.Cfg.SearchFactor,
		MinUsablePx: p.Cfg.ImageMinPx,
	}, stamp)
	if err != nil {
		if !errors.Is(err, layout.ErrPlacementExhausted) {
			log.Printf("pipeline: image placement failed: %v", err)
		}
		return model.ImagePlacement{Mode: model.ImageNone}
	}
	return placement
}

// canvasMask projects a chart-space mask into canvas space: shifted by
// the chart offset, with the title block stamped in when asked.
func canvasMask(chart *mask.Mask, tl layout.TitleLayout, includeTitle bool) *mask.Mask {
	g := chart.Grid
	w := cellsCeil(tl.CanvasWidth, g)
	h := cellsCeil(tl.CanvasHeight, g)
	out := mask.New(w, h, g)

	dx, dy := tl.ChartDX/g, tl.ChartDY/g
	for y := 0; y < chart.H; y++ {
		for x := 0; x < chart.W; x++ {
			if chart.At(x, y) {
				out.Set(x+dx, y+dy, true)
			}
		}
	}
	if includeTitle {
		tx, ty := tl.Title.X/g, tl.Title.Y/g
		tw, th := cellsCeil(tl.Title.Width, g), cellsCeil(tl.Title.Height, g)
		for y := ty; y < ty+th; y++ {
			for x := tx; x < tx+tw; x++ {
				out.Set(x, y, true)
			}
		}
	}
	return out
}

// Batch runs jobs concurrently under the configured worker limit. A
// failed job is recorded and skipped; the batch itself only errors when
// every job failed.
func (p *Pipeline) Batch(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}
	var failed int64
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Cfg.Workers)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if _, err := p.Run(gctx, job); err != nil {
				log.Printf("pipeline: job %s failed: %v", job.ID, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if int(failed) == len(jobs) {
		return fmt.Errorf("all %d jobs failed", len(jobs))
	}
	if failed > 0 {
		log.Printf("pipeline: %d of %d jobs failed", failed, len(jobs))
	}
	return nil
}

func columnNames(ds *model.DatasetDescriptor) string {
	names := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

func cellsCeil(px, grid int) int {
	return int(math.Ceil(float64(px) / float64(grid)))
}

// defaultPalettes is the fallback two-theme palette when no palette file
// accompanies the dataset.
func defaultPalettes() *model.PalettePair {
	return &model.PalettePair{
		Light: model.Palette{BackgroundColor: "#ffffff", TextColor: "#222222"},
		Dark:  model.Palette{BackgroundColor: "#1e1e2e", TextColor: "#e8e8f0"},
	}
}
