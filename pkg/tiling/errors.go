package tiling

import (
	"fmt"

	"github.com/pkg/errors"

	"crowdcount/internal/models"
)

// ErrInvalidParameter is returned for patch sizes, overlaps or maps that
// cannot describe a patch grid.
var ErrInvalidParameter = errors.New("invalid tiling parameter")

// ShapeMismatchError reports patches that do not fit the grid they are being
// reassembled into. It signals caller misuse and is not recoverable.
type ShapeMismatchError struct {
	What     string
	Expected string
	Actual   string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch in %s: expected %s, got %s", e.What, e.Expected, e.Actual)
}

func countMismatch(expected, actual int) error {
	return &ShapeMismatchError{
		What:     "patch count",
		Expected: fmt.Sprint(expected),
		Actual:   fmt.Sprint(actual),
	}
}

func patchMismatch(index int, expected, actual models.Shape) error {
	return &ShapeMismatchError{
		What:     fmt.Sprintf("patch %d", index),
		Expected: expected.String(),
		Actual:   actual.String(),
	}
}
