package dataset

import (
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/nvr-ai/go-eval/common"
	"github.com/nvr-ai/go-eval/images"
	"github.com/pkg/errors"
)

// Annotation is a Pascal VOC annotation file.
type Annotation struct {
	Filename string   `xml:"filename"`
	Size     vocSize  `xml:"size"`
	Objects  []Object `xml:"object"`
}

type vocSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

// Object is one annotated box.
type Object struct {
	Name      string `xml:"name"`
	Difficult int    `xml:"difficult"`
	BndBox    struct {
		XMin float32 `xml:"xmin"`
		YMin float32 `xml:"ymin"`
		XMax float32 `xml:"xmax"`
		YMax float32 `xml:"ymax"`
	} `xml:"bndbox"`
}

// Rect returns the object's box.
func (o Object) Rect() images.Rect {
	return images.Rect{X1: o.BndBox.XMin, Y1: o.BndBox.YMin, X2: o.BndBox.XMax, Y2: o.BndBox.YMax}
}

// ParseVOC decodes a Pascal VOC annotation.
func ParseVOC(r io.Reader) (*Annotation, error) {
	var a Annotation
	if err := xml.NewDecoder(r).Decode(&a); err != nil {
		return nil, errors.Wrap(err, "decode voc annotation")
	}
	for i := range a.Objects {
		a.Objects[i].Name = strings.TrimSpace(a.Objects[i].Name)
	}
	return &a, nil
}

// LoadVOC reads a Pascal VOC annotation file.
func LoadVOC(path string) (*Annotation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open annotation %s", path)
	}
	defer f.Close()

	a, err := ParseVOC(f)
	if err != nil {
		return nil, errors.Wrapf(err, "annotation %s", path)
	}
	return a, nil
}

// Targets converts the annotation into ground truth.
//
// Boxes are clipped to a width x height image and boxes left without area are dropped.
//
// Arguments:
//   - index: Maps class names to labels.
//   - width: The image width in pixels.
//   - height: The image height in pixels.
//
// Returns:
//   - common.DetectionSet: The ground truth boxes and labels.
//   - error: When an object names a class outside index.
func (a *Annotation) Targets(index map[string]int, width, height int) (common.DetectionSet, error) {
	var target common.DetectionSet
	for _, o := range a.Objects {
		label, ok := index[o.Name]
		if !ok {
			return common.DetectionSet{}, errors.Errorf("unknown class %q", o.Name)
		}
		box := o.Rect().Clip(float32(width), float32(height))
		if box.Area() <= 0 {
			continue
		}
		if err := target.AppendTarget(box, label); err != nil {
			return common.DetectionSet{}, err
		}
	}
	return target, nil
}

// ClassIndex maps each class name to its position in classes.
func ClassIndex(classes []string) map[string]int {
	index := make(map[string]int, len(classes))
	for i, name := range classes {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	return index
}
