package models

// Point is an annotated head position in original image pixel space
type Point struct {
	X float64
	Y float64
}

// AnnotationPointList holds every annotated point of one image
type AnnotationPointList []Point

// PatchSet is the result of splitting a map into overlapping patches.
// Patches are ordered row-major over the patch grid: the outer loop walks the
// vertical offset and the inner loop the horizontal offset.
type PatchSet struct {
	// Patches all share the shape (ph,pw) or (C,ph,pw)
	Patches []*RasterMap

	// OriginalShape is the shape of the map before padding
	OriginalShape Shape

	// PadH and PadW are the rows and columns appended at the bottom and right
	PadH int
	PadW int

	// PatchH and PatchW are the spatial patch dimensions
	PatchH int
	PatchW int

	// VStride and HStride are the offsets between consecutive patch origins
	VStride int
	HStride int
}

// Sample ties one full image to its ordered patch images and ground truth maps.
// Samples are built once by the dataset indexer and never modified afterwards.
type Sample struct {
	// Name is the file name of the full image without extension
	Name string

	// FullImagePath points at the copy of the original image
	FullImagePath string

	// PatchImagePaths are in tiling order, index i holds patch i
	PatchImagePaths []string

	// GTMapPath is the full resolution binary point map
	GTMapPath string

	// GTBlurMapPath is the full resolution blurred point map
	GTBlurMapPath string
}
