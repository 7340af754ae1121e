// Package evaluation compares crowd counts predicted patch by patch against
// the ground truth of a processed dataset.
//
// Per-patch density predictions come from an external model through the
// Predictor interface. They are reassembled over the same grid the dataset
// was split with, and the sum of the reassembled map is the predicted count.
package evaluation

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crowdcount/internal/models"
	"crowdcount/pkg/config"
	"crowdcount/pkg/dataset"
	"crowdcount/pkg/tiling"
	"crowdcount/pkg/visualization"
)

// Predictor produces the (ph,pw) density map of one patch
type Predictor interface {
	Predict(ctx context.Context, sample models.Sample, index int) (*models.RasterMap, error)
}

// SampleResult is the count comparison for one image
type SampleResult struct {
	Name      string
	Predicted float64
	Actual    float64
}

// Evaluator reassembles predictions and scores the counts
type Evaluator struct {
	cfg       *config.Config
	predictor Predictor
	log       *zap.SugaredLogger

	// SaveDir receives the reassembled prediction maps and their heatmaps
	// when not empty
	SaveDir string
}

// NewEvaluator creates an evaluator. The patch parameters of cfg must be the
// ones the dataset was written with.
func NewEvaluator(cfg *config.Config, predictor Predictor, log *zap.SugaredLogger) *Evaluator {
	return &Evaluator{cfg: cfg, predictor: predictor, log: log}
}

// Evaluate scores every sample. Samples are evaluated concurrently; the first
// failure cancels the rest. Results keep the order of samples.
func (e *Evaluator) Evaluate(ctx context.Context, samples []models.Sample) (Metrics, []SampleResult, error) {
	if e.SaveDir != "" {
		if err := os.MkdirAll(e.SaveDir, 0755); err != nil {
			return Metrics{}, nil, errors.Wrap(err, "creating prediction directory")
		}
	}

	results := make([]SampleResult, len(samples))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Processing.Workers)
	for i, s := range samples {
		i, s := i, s
		g.Go(func() error {
			res, _, err := e.EvaluateSample(gctx, s)
			if err != nil {
				return errors.Wrap(err, s.Name)
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			e.log.Infow("evaluated sample", "image", s.Name, "predicted", res.Predicted, "actual", res.Actual)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Metrics{}, nil, err
	}

	m := ComputeMetrics(results)
	e.log.Infow("evaluation done", "samples", m.N, "mae", m.MAE, "mape", m.MAPE, "rmse", m.RMSE)
	return m, results, nil
}

// EvaluateSample predicts every patch of s, reassembles the full resolution
// prediction map and compares its sum with the ground truth count
func (e *Evaluator) EvaluateSample(ctx context.Context, s models.Sample) (SampleResult, *models.RasterMap, error) {
	res := SampleResult{Name: s.Name}

	gt, err := dataset.LoadMap(s.GTMapPath)
	if err != nil {
		return res, nil, err
	}
	res.Actual = gt.Sum()

	grid, err := tiling.NewGrid(gt.Shape.Height, gt.Shape.Width, e.cfg.Patch.Height, e.cfg.Patch.Width,
		e.cfg.Patch.VerticalOverlap, e.cfg.Patch.HorizontalOverlap)
	if err != nil {
		return res, nil, err
	}

	patches := make([]*models.RasterMap, len(s.PatchImagePaths))
	for i := range patches {
		if err := ctx.Err(); err != nil {
			return res, nil, err
		}
		if patches[i], err = e.predictor.Predict(ctx, s, i); err != nil {
			return res, nil, errors.Wrapf(err, "predicting patch %d", i)
		}
	}

	pred, err := grid.Reassemble(patches, 0)
	if err != nil {
		return res, nil, err
	}
	res.Predicted = pred.Sum()

	if e.SaveDir != "" {
		if err := dataset.SaveMap(filepath.Join(e.SaveDir, s.Name+".npy"), pred); err != nil {
			return res, pred, err
		}
		heat := visualization.NewViewer(pred).Heatmap()
		if err := visualization.Save(heat, filepath.Join(e.SaveDir, s.Name+"_density.png")); err != nil {
			return res, pred, err
		}
	}
	return res, pred, nil
}
