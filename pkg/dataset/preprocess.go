package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crowdcount/internal/models"
	"crowdcount/pkg/config"
	"crowdcount/pkg/groundtruth"
	"crowdcount/pkg/tiling"
	"crowdcount/pkg/visualization"
)

// Report summarizes one preprocessing run
type Report struct {
	// Found is the number of input images
	Found int

	// Processed images have every output file written
	Processed int

	// Skipped images have no annotation or are smaller than one patch
	Skipped int

	// Failed images hit an error; the run continued without them
	Failed int

	// Patches is the total number of patch images written
	Patches int

	// Points is the number of annotated points read, Dropped the number lost
	// to bounds or pixel collisions while rasterizing
	Points  int
	Dropped int
}

var errEmptyGrid = errors.New("image smaller than one patch")

// Preprocessor turns a raw dataset into the processed layout
type Preprocessor struct {
	cfg *config.Config
	log *zap.SugaredLogger
}

// NewPreprocessor creates a preprocessor. cfg must be valid.
func NewPreprocessor(cfg *config.Config, log *zap.SugaredLogger) *Preprocessor {
	return &Preprocessor{cfg: cfg, log: log}
}

// imageResult is what one image contributes to the report
type imageResult struct {
	patches int
	points  int
	dropped int
}

// Run processes every image under root/images. Failures of single images are
// logged and combined into the returned error; they never stop the run.
// Cancelling ctx stops scheduling further images.
func (p *Preprocessor) Run(ctx context.Context, root, processedDir string) (Report, error) {
	var report Report

	images, err := ListImages(filepath.Join(root, RawImagesDir), p.cfg.Dataset.ImageExtensions)
	if err != nil {
		return report, err
	}
	report.Found = len(images)

	layout := Layout{Root: processedDir}
	if err := layout.Create(); err != nil {
		return report, err
	}
	if p.cfg.Output.SavePreviews {
		if err := os.MkdirAll(filepath.Join(processedDir, PreviewDir), 0755); err != nil {
			return report, errors.Wrap(err, "creating preview directory")
		}
	}

	p.log.Infow("preprocessing", "images", len(images), "root", root, "output", processedDir,
		"workers", p.cfg.Processing.Workers)

	var (
		mu       sync.Mutex
		failures error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Processing.Workers)

	for _, imagePath := range images {
		imagePath := imagePath
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := p.processImage(root, layout, imagePath)

			mu.Lock()
			defer mu.Unlock()
			var missing *groundtruth.MissingGroundTruthError
			switch {
			case errors.As(err, &missing):
				report.Skipped++
				p.log.Warnw("skipping image without ground truth", "image", imagePath, "tried", missing.Tried)
			case errors.Is(err, errEmptyGrid):
				report.Skipped++
				p.log.Warnw("skipping image smaller than one patch", "image", imagePath)
			case err != nil:
				report.Failed++
				failures = multierr.Append(failures, errors.Wrap(err, filepath.Base(imagePath)))
				p.log.Errorw("image failed", "image", imagePath, "error", err)
			default:
				report.Processed++
				report.Patches += res.patches
				report.Points += res.points
				report.Dropped += res.dropped
				p.log.Debugw("image processed", "image", imagePath, "patches", res.patches, "points", res.points)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		failures = multierr.Append(failures, errors.Wrap(err, "preprocessing interrupted"))
	}

	p.log.Infow("preprocessing done", "processed", report.Processed, "skipped", report.Skipped,
		"failed", report.Failed, "patches", report.Patches, "dropped_points", report.Dropped)
	return report, failures
}

// processImage writes every output of one image. The full image copy is
// written last, so an image only appears in full_images once its patches and
// maps are complete.
func (p *Preprocessor) processImage(root string, layout Layout, imagePath string) (imageResult, error) {
	var res imageResult
	fileName := filepath.Base(imagePath)
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))

	gtPath, err := FindAnnotation(filepath.Join(root, RawGroundTruthDir), name,
		p.cfg.GroundTruth.Prefix, p.cfg.GroundTruth.Extensions)
	if err != nil {
		return res, err
	}
	points, err := groundtruth.LoadAnnotation(gtPath)
	if err != nil {
		return res, err
	}

	img, err := LoadImage(imagePath)
	if err != nil {
		return res, err
	}
	h, w := img.Shape.Height, img.Shape.Width

	grid, err := tiling.NewGrid(h, w, p.cfg.Patch.Height, p.cfg.Patch.Width,
		p.cfg.Patch.VerticalOverlap, p.cfg.Patch.HorizontalOverlap)
	if err != nil {
		return res, err
	}
	if grid.Count() == 0 {
		return res, errEmptyGrid
	}
	set, err := grid.Split(img)
	if err != nil {
		return res, err
	}

	gt := groundtruth.Build(points, h, w)
	gtBlur := groundtruth.Blur(gt, p.cfg.GroundTruth.Sigma)
	outside, collided := groundtruth.Dropped(points, h, w)
	if outside+collided > 0 {
		p.log.Debugw("points lost while rasterizing", "image", name, "outside", outside, "collided", collided)
	}

	for i, patch := range set.Patches {
		if err := SaveImage(layout.PatchImagePath(name, i), patch, p.cfg.Dataset.JPEGQuality); err != nil {
			return res, errors.Wrapf(err, "patch %d", i)
		}
	}
	if err := SaveMap(layout.GTMapPath(name), gt); err != nil {
		return res, err
	}
	if err := SaveMap(layout.GTBlurMapPath(name), gtBlur); err != nil {
		return res, err
	}
	if err := SaveGridManifest(layout.GridPath(name), NewGridManifest(name, grid)); err != nil {
		return res, err
	}
	if p.cfg.Output.SavePreviews {
		if err := savePreviews(layout, name, img, points, gtBlur, set); err != nil {
			// previews are for inspection only
			p.log.Warnw("preview failed", "image", name, "error", err)
		}
	}
	if err := copyFile(imagePath, layout.FullImagePath(fileName)); err != nil {
		return res, err
	}

	res.patches = len(set.Patches)
	res.points = len(points)
	res.dropped = outside + collided
	return res, nil
}

// savePreviews writes the point overlay, the density heatmap and the channel
// planes of the last patch, the one carrying the most reflect padding
func savePreviews(layout Layout, name string, img *models.RasterMap, points models.AnnotationPointList, gtBlur *models.RasterMap, set *models.PatchSet) error {
	rgb, err := RasterToImage(img)
	if err != nil {
		return err
	}
	if err := visualization.Save(visualization.Overlay(rgb, points, 3), layout.PreviewPath(name, "points")); err != nil {
		return err
	}
	if err := visualization.Save(visualization.NewViewer(gtBlur).Heatmap(), layout.PreviewPath(name, "density")); err != nil {
		return err
	}
	last := len(set.Patches) - 1
	return visualization.NewViewer(set.Patches[last]).SavePlanes(filepath.Join(layout.Root, PreviewDir), PatchFileName(name, last, ""))
}

// ListImages returns the files in dir with one of the given extensions,
// compared case-insensitively, sorted by name
func ListImages(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing images")
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !hasExtension(e.Name(), extensions) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// FindAnnotation returns the first existing dir/<prefix><name><ext>, trying
// the extensions in order
func FindAnnotation(dir, name, prefix string, extensions []string) (string, error) {
	tried := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		path := filepath.Join(dir, prefix+name+ext)
		if exists(path) {
			return path, nil
		}
		tried = append(tried, path)
	}
	return "", &groundtruth.MissingGroundTruthError{Image: name, Tried: tried}
}
