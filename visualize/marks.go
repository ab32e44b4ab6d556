// Package visualize draws match results over evaluation images.
package visualize

import (
	"fmt"
	"image/color"

	"github.com/nvr-ai/go-eval/common"
	"github.com/nvr-ai/go-eval/images"
	"github.com/nvr-ai/go-eval/metrics"
)

// Kind is the outcome a box stands for.
type Kind int

const (
	// TruePositive is a prediction that claimed a ground truth box.
	TruePositive Kind = iota
	// FalsePositive is a prediction that claimed nothing.
	FalsePositive
	// FalseNegative is a ground truth box nobody claimed.
	FalseNegative
)

func (k Kind) String() string {
	switch k {
	case TruePositive:
		return "TP"
	case FalsePositive:
		return "FP"
	case FalseNegative:
		return "FN"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Color returns the overlay color of the kind.
func (k Kind) Color() color.RGBA {
	switch k {
	case TruePositive:
		return color.RGBA{G: 200, A: 255}
	case FalsePositive:
		return color.RGBA{R: 230, A: 255}
	default:
		return color.RGBA{R: 255, G: 165, A: 255}
	}
}

// Mark is one box to draw.
type Mark struct {
	Box  images.Rect
	Kind Kind
	Text string
}

// Marks lists predictions as true or false positives and the unclaimed ground truth as false
// negatives, in that order.
//
// Arguments:
//   - preds: The predictions the assignment was computed on.
//   - gt: The ground truth the assignment was computed on.
//   - a: The assignment.
//   - names: Class names indexed by label, used for the captions.
//
// Returns:
//   - []Mark: One mark per prediction followed by one per missed ground truth box.
func Marks(preds, gt common.DetectionSet, a metrics.Assignment, names []string) []Mark {
	marks := make([]Mark, 0, preds.Len()+gt.Len())
	for i, box := range preds.Boxes {
		kind := FalsePositive
		if i < len(a.Matches) && a.Matches[i] >= 0 {
			kind = TruePositive
		}
		text := className(names, preds.Labels[i])
		if preds.HasScores() {
			text = fmt.Sprintf("%s %.2f", text, preds.Scores[i])
		}
		marks = append(marks, Mark{Box: box, Kind: kind, Text: text})
	}
	for j, box := range gt.Boxes {
		if j < len(a.Claimed) && a.Claimed[j] {
			continue
		}
		marks = append(marks, Mark{Box: box, Kind: FalseNegative, Text: className(names, gt.Labels[j])})
	}
	return marks
}

func className(names []string, label int) string {
	if label >= 0 && label < len(names) {
		return names[label]
	}
	return fmt.Sprintf("class_%d", label)
}
