package dataset

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"crowdcount/internal/models"
	"crowdcount/pkg/config"
	"crowdcount/pkg/tiling"
)

// Indexer enumerates the samples of a processed dataset
type Indexer struct {
	layout Layout
	cfg    *config.Config
	log    *zap.SugaredLogger
}

// NewIndexer creates an indexer over processedDir. The patch parameters of
// cfg must be the ones the dataset was written with.
func NewIndexer(cfg *config.Config, processedDir string, log *zap.SugaredLogger) *Indexer {
	return &Indexer{layout: Layout{Root: processedDir}, cfg: cfg, log: log}
}

// Index returns one sample per complete full image, sorted by file name.
// Images without both ground truth maps, with missing patch files or with a
// patch grid that disagrees with the written one are skipped with a warning.
func (ix *Indexer) Index() ([]models.Sample, error) {
	images, err := ListImages(filepath.Join(ix.layout.Root, FullImagesDir), ix.cfg.Dataset.ImageExtensions)
	if err != nil {
		return nil, err
	}

	samples := make([]models.Sample, 0, len(images))
	for _, fullPath := range images {
		s, err := ix.sample(fullPath)
		if err != nil {
			return nil, err
		}
		if s != nil {
			samples = append(samples, *s)
		}
	}
	ix.log.Infow("indexed dataset", "root", ix.layout.Root, "samples", len(samples), "images", len(images))
	return samples, nil
}

// sample builds the sample of one full image. A nil sample without error
// means the image was skipped.
func (ix *Indexer) sample(fullPath string) (*models.Sample, error) {
	fileName := filepath.Base(fullPath)
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	log := ix.log.With("image", name)

	s := &models.Sample{
		Name:          name,
		FullImagePath: fullPath,
		GTMapPath:     ix.layout.GTMapPath(name),
		GTBlurMapPath: ix.layout.GTBlurMapPath(name),
	}
	if !exists(s.GTMapPath) || !exists(s.GTBlurMapPath) {
		log.Warn("skipping sample without ground truth maps")
		return nil, nil
	}

	w, h, err := ImageSize(fullPath)
	if err != nil {
		log.Warnw("skipping unreadable image", "error", err)
		return nil, nil
	}
	grid, err := ix.Grid(h, w)
	if err != nil {
		return nil, err
	}
	if grid.Count() == 0 {
		log.Warn("skipping sample without patches")
		return nil, nil
	}

	s.PatchImagePaths = make([]string, grid.Count())
	for i := range s.PatchImagePaths {
		s.PatchImagePaths[i] = ix.layout.PatchImagePath(name, i)
		if !exists(s.PatchImagePaths[i]) {
			log.Warnw("skipping sample with missing patch", "patch", i, "expected", grid.Count())
			return nil, nil
		}
	}
	if exists(ix.layout.PatchImagePath(name, grid.Count())) {
		log.Warnw("skipping sample with more patches than the grid", "expected", grid.Count())
		return nil, nil
	}

	if gridPath := ix.layout.GridPath(name); exists(gridPath) {
		gm, err := LoadGridManifest(gridPath)
		if err != nil {
			log.Warnw("skipping sample with unreadable grid manifest", "error", err)
			return nil, nil
		}
		if !gm.Matches(grid) {
			log.Warnw("skipping sample written with a different grid",
				"written", len(gm.Origins), "expected", grid.Count())
			return nil, nil
		}
	}
	return s, nil
}

// Grid is the patch grid of a full image of the given size
func (ix *Indexer) Grid(height, width int) (tiling.Grid, error) {
	return tiling.NewGrid(height, width, ix.cfg.Patch.Height, ix.cfg.Patch.Width,
		ix.cfg.Patch.VerticalOverlap, ix.cfg.Patch.HorizontalOverlap)
}

// LoadedSample holds the decoded data of one sample
type LoadedSample struct {
	Sample models.Sample

	// Full is the (3,H,W) full image
	Full *models.RasterMap

	// Patches are the (3,ph,pw) patch images in tiling order
	Patches []*models.RasterMap

	// GT and GTBlur are the (H,W) ground truth maps
	GT     *models.RasterMap
	GTBlur *models.RasterMap
}

// LoadSample decodes every file of a sample
func LoadSample(s models.Sample) (*LoadedSample, error) {
	ls := &LoadedSample{Sample: s}
	var err error
	if ls.Full, err = LoadImage(s.FullImagePath); err != nil {
		return nil, err
	}
	ls.Patches = make([]*models.RasterMap, len(s.PatchImagePaths))
	for i, path := range s.PatchImagePaths {
		if ls.Patches[i], err = LoadImage(path); err != nil {
			return nil, errors.Wrapf(err, "patch %d", i)
		}
	}
	if ls.GT, err = LoadMap(s.GTMapPath); err != nil {
		return nil, err
	}
	if ls.GTBlur, err = LoadMap(s.GTBlurMapPath); err != nil {
		return nil, err
	}
	if ls.GT.Shape != models.Shape2D(ls.Full.Shape.Height, ls.Full.Shape.Width) {
		return nil, errors.Errorf("%s: ground truth shape %v does not match image %v", s.Name, ls.GT.Shape, ls.Full.Shape)
	}
	return ls, nil
}
