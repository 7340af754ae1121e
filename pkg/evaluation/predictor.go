package evaluation

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"crowdcount/internal/models"
	"crowdcount/pkg/dataset"
)

// FilePredictor reads predictions written by an external model, one .npy
// per patch named like the patch image
type FilePredictor struct {
	Dir string
}

// Predict loads <Dir>/<name>_patch_<index>.npy. A leading singleton channel
// axis is dropped.
func (p FilePredictor) Predict(_ context.Context, s models.Sample, index int) (*models.RasterMap, error) {
	m, err := dataset.LoadMap(filepath.Join(p.Dir, dataset.PatchFileName(s.Name, index, ".npy")))
	if err != nil {
		return nil, err
	}
	switch {
	case !m.Shape.Is3D():
		return m, nil
	case m.Shape.Channels == 1:
		return &models.RasterMap{Data: m.Data, Shape: models.Shape2D(m.Shape.Height, m.Shape.Width)}, nil
	default:
		return nil, errors.Errorf("prediction for %s patch %d has %d channels, want 1", s.Name, index, m.Shape.Channels)
	}
}
