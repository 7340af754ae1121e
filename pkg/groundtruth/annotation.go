package groundtruth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"crowdcount/internal/models"
)

// Recognized top level keys. image_info wraps the point matrix in cells and
// structs (ShanghaiTech); annPoints is the bare [N,2] or [1,N,2] matrix
// (UCF-QNRF).
const (
	keyImageInfo = "image_info"
	keyAnnPoints = "annPoints"
	keyLocation  = "location"
)

// SupportedExtensions are the annotation container formats LoadAnnotation reads
var SupportedExtensions = []string{".mat", ".json", ".yaml", ".yml"}

// LoadAnnotation reads the head points of one image from a MATLAB level 5,
// JSON or YAML annotation file.
func LoadAnnotation(path string) (models.AnnotationPointList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading annotation %s", path)
	}
	return ParseAnnotation(path, data)
}

// ParseAnnotation decodes annotation bytes. The container format is chosen by
// the extension of name.
func ParseAnnotation(name string, data []byte) (models.AnnotationPointList, error) {
	var vars map[string]interface{}
	var err error
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".mat":
		vars, err = decodeMAT(data)
	case ".json", ".yaml", ".yml":
		// JSON documents are valid YAML
		err = yaml.Unmarshal(data, &vars)
	default:
		return nil, &FormatError{Path: name, Reason: fmt.Sprintf("unsupported container %q", ext)}
	}
	if err != nil {
		return nil, &FormatError{Path: name, Reason: err.Error()}
	}

	var points models.AnnotationPointList
	if v, ok := vars[keyImageInfo]; ok {
		points, err = imageInfoPoints(v)
	} else if v, ok := vars[keyAnnPoints]; ok {
		points, err = annPoints(v)
	} else {
		return nil, &FormatError{Path: name, Reason: "neither image_info nor annPoints present"}
	}
	if err != nil {
		return nil, &FormatError{Path: name, Reason: err.Error()}
	}
	return points, nil
}

// imageInfoPoints unwraps singleton cells and structs until it reaches the
// location matrix
func imageInfoPoints(v interface{}) (models.AnnotationPointList, error) {
	for {
		switch t := v.(type) {
		case map[string]interface{}:
			loc, ok := t[keyLocation]
			if !ok {
				return nil, errors.New("image_info struct has no location field")
			}
			v = loc
		case []interface{}:
			if isPointMatrix(t) {
				return toPoints(t), nil
			}
			if len(t) != 1 {
				return nil, errors.Errorf("image_info nests %d elements where one was expected", len(t))
			}
			v = t[0]
		default:
			return nil, errors.Errorf("unexpected %T inside image_info", v)
		}
	}
}

func annPoints(v interface{}) (models.AnnotationPointList, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.Errorf("annPoints is %T, not an array", v)
	}
	if isPointMatrix(list) {
		return toPoints(list), nil
	}
	// [1,N,2]
	if len(list) == 1 {
		if inner, ok := list[0].([]interface{}); ok && isPointMatrix(inner) {
			return toPoints(inner), nil
		}
	}
	return nil, errors.New("annPoints is neither [N,2] nor [1,N,2]")
}

// isPointMatrix reports whether every row holds at least an x and a y.
// An empty matrix is an image without heads.
func isPointMatrix(rows []interface{}) bool {
	for _, r := range rows {
		row, ok := r.([]interface{})
		if !ok || len(row) < 2 {
			return false
		}
		if _, ok := number(row[0]); !ok {
			return false
		}
		if _, ok := number(row[1]); !ok {
			return false
		}
	}
	return true
}

func toPoints(rows []interface{}) models.AnnotationPointList {
	points := make(models.AnnotationPointList, 0, len(rows))
	for _, r := range rows {
		row := r.([]interface{})
		x, _ := number(row[0])
		y, _ := number(row[1])
		points = append(points, models.Point{X: x, Y: y})
	}
	return points
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
