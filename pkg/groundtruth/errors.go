package groundtruth

import "fmt"

// FormatError is returned when an annotation file uses neither the
// image_info nor the annPoints layout, or cannot be decoded at all.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("ground truth format not recognized in %s: %s", e.Path, e.Reason)
}

// MissingGroundTruthError is returned when no annotation file exists for an image
type MissingGroundTruthError struct {
	Image string

	// Tried lists the candidate annotation paths that were checked
	Tried []string
}

func (e *MissingGroundTruthError) Error() string {
	return fmt.Sprintf("no ground truth found for %s (tried %v)", e.Image, e.Tried)
}
