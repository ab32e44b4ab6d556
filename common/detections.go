// Package common - Detection sets shared by datasets, models and metrics.
package common

import (
	"fmt"

	"github.com/nvr-ai/go-eval/images"
	"github.com/pkg/errors"
)

// DetectionSet holds the boxes of one image, either predicted or ground truth.
//
// Boxes, Labels and Scores are parallel slices. Scores is only populated for predictions and
// may be nil for ground truth.
type DetectionSet struct {
	// Boxes in pixel space of the (possibly resized) input image.
	Boxes []images.Rect `json:"boxes" yaml:"boxes"`
	// Labels are class identifiers, one per box.
	Labels []int `json:"labels" yaml:"labels"`
	// Scores are confidences in [0, 1], one per box.
	Scores []float32 `json:"scores,omitempty" yaml:"scores,omitempty"`
}

// Len returns the number of boxes in the set.
func (d DetectionSet) Len() int {
	return len(d.Boxes)
}

// HasScores reports whether the set carries confidence scores.
func (d DetectionSet) HasScores() bool {
	return len(d.Scores) > 0
}

// Validate checks that the parallel slices line up.
//
// Labels must always match Boxes in length. Scores must match as well whenever they are
// supplied.
func (d DetectionSet) Validate() error {
	if len(d.Labels) != len(d.Boxes) {
		return errors.Errorf("%d boxes but %d labels", len(d.Boxes), len(d.Labels))
	}
	if d.Scores != nil && len(d.Scores) != len(d.Boxes) {
		return errors.Errorf("%d boxes but %d scores", len(d.Boxes), len(d.Scores))
	}
	return nil
}

// AppendTarget adds an unscored ground truth box.
//
// Returns:
//   - error: When the set already carries scores.
func (d *DetectionSet) AppendTarget(box images.Rect, label int) error {
	if d.Scores != nil {
		return errors.New("cannot add an unscored box to a scored set")
	}
	d.Boxes = append(d.Boxes, box)
	d.Labels = append(d.Labels, label)
	return nil
}

// AppendPrediction adds a scored box.
//
// Returns:
//   - error: When the set already holds unscored boxes.
func (d *DetectionSet) AppendPrediction(box images.Rect, label int, score float32) error {
	if len(d.Scores) != len(d.Boxes) {
		return errors.Errorf("cannot add a scored box to a set with %d unscored boxes", len(d.Boxes)-len(d.Scores))
	}
	d.Boxes = append(d.Boxes, box)
	d.Labels = append(d.Labels, label)
	d.Scores = append(d.Scores, score)
	return nil
}

// Scale returns a copy of the set with every box scaled by sx, sy.
func (d DetectionSet) Scale(sx, sy float32) DetectionSet {
	out := DetectionSet{
		Boxes:  make([]images.Rect, len(d.Boxes)),
		Labels: append([]int(nil), d.Labels...),
	}
	if d.Scores != nil {
		out.Scores = append([]float32(nil), d.Scores...)
	}
	for i, b := range d.Boxes {
		out.Boxes[i] = b.Scale(sx, sy)
	}
	return out
}

func (d DetectionSet) String() string {
	return fmt.Sprintf("DetectionSet{boxes: %d, scored: %t}", len(d.Boxes), d.HasScores())
}
