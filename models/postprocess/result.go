// Package postprocess - Decoded detections and their filtering.
package postprocess

import (
	"github.com/nvr-ai/go-eval/common"
	"github.com/nvr-ai/go-eval/images"
)

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result.
	Box images.Rect
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result, in the model's own class space.
	Class int
}

// FilterByConfidence keeps the results scoring at least threshold, preserving order.
func FilterByConfidence(results []Result, threshold float32) []Result {
	filtered := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// ToDetectionSet converts results into a prediction set.
//
// Arguments:
//   - results: The decoded detections.
//   - label: Maps a model class to a dataset label. A nil label keeps the class as is.
//
// Returns:
//   - common.DetectionSet: Boxes, labels and scores in result order. Scores is never nil.
func ToDetectionSet(results []Result, label func(int) int) common.DetectionSet {
	set := common.DetectionSet{
		Boxes:  make([]images.Rect, 0, len(results)),
		Labels: make([]int, 0, len(results)),
		Scores: make([]float32, 0, len(results)),
	}
	for _, r := range results {
		class := r.Class
		if label != nil {
			class = label(class)
		}
		set.Boxes = append(set.Boxes, r.Box)
		set.Labels = append(set.Labels, class)
		set.Scores = append(set.Scores, r.Score)
	}
	return set
}
