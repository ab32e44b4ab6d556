// Package metrics - Detection matching and aggregate detection metrics.
package metrics

import (
	"sort"

	"github.com/nvr-ai/go-eval/common"
	"github.com/nvr-ai/go-eval/images"
	"github.com/pkg/errors"
)

// DefaultIoUThreshold is the overlap a prediction needs to count as a true positive.
const DefaultIoUThreshold float32 = 0.50

// ErrInvalidInput is returned when a detection set is malformed or the options are out of range.
var ErrInvalidInput = errors.New("invalid input")

// MatchOptions configures the greedy matcher.
type MatchOptions struct {
	// IoUThreshold is the minimum IoU for a true positive, in (0, 1].
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// SortByScore visits predictions by descending confidence instead of input order.
	// Predictions with equal scores keep their input order.
	SortByScore bool `json:"sort_by_score" yaml:"sort_by_score"`
}

// DefaultMatchOptions returns input-order matching at DefaultIoUThreshold.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{IoUThreshold: DefaultIoUThreshold}
}

// Counts are the per-image outcome of matching.
type Counts struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
}

// Assignment records how each prediction of one image was resolved.
type Assignment struct {
	// Matches holds, per prediction, the index of the ground truth box it claimed or -1 for a
	// false positive.
	Matches []int
	// Claimed holds, per ground truth box, whether a prediction claimed it.
	Claimed []bool
}

// Counts reduces the assignment to TP, FP and FN.
func (a Assignment) Counts() Counts {
	var c Counts
	for _, m := range a.Matches {
		if m >= 0 {
			c.TP++
		} else {
			c.FP++
		}
	}
	for _, claimed := range a.Claimed {
		if !claimed {
			c.FN++
		}
	}
	return c
}

// Match counts the true positives, false positives and false negatives of one image.
//
// See Assign for the matching rules.
//
// Arguments:
//   - preds: The predicted boxes, labels and scores.
//   - gt: The ground truth boxes and labels.
//   - opts: The matching options.
//
// Returns:
//   - Counts: TP + FP equals preds.Len() and TP + FN equals gt.Len().
//   - error: ErrInvalidInput when the sets or options are malformed.
func Match(preds, gt common.DetectionSet, opts MatchOptions) (Counts, error) {
	a, err := Assign(preds, gt, opts)
	if err != nil {
		return Counts{}, err
	}
	return a.Counts(), nil
}

// Assign matches predictions to ground truth one-to-one with a greedy pass.
//
// Predictions are visited in input order (or by descending score with SortByScore). Each
// prediction looks only at the ground truth box with the highest IoU, taking the lowest index
// on ties. It becomes a true positive when that IoU reaches the threshold, the labels agree
// and the box is still unclaimed; otherwise it is a false positive. A prediction whose best
// box is already claimed is never retried against the next best one.
//
// With no predictions every ground truth box is a false negative. With no ground truth every
// prediction is a false positive.
//
// Arguments:
//   - preds: The predicted boxes, labels and scores.
//   - gt: The ground truth boxes and labels.
//   - opts: The matching options.
//
// Returns:
//   - Assignment: The per-prediction and per-ground-truth outcome, owned by the caller.
//   - error: ErrInvalidInput when the sets or options are malformed.
func Assign(preds, gt common.DetectionSet, opts MatchOptions) (Assignment, error) {
	if err := validate(preds, gt, opts); err != nil {
		return Assignment{}, err
	}

	a := Assignment{
		Matches: make([]int, preds.Len()),
		Claimed: make([]bool, gt.Len()),
	}
	for i := range a.Matches {
		a.Matches[i] = -1
	}
	if preds.Len() == 0 || gt.Len() == 0 {
		return a, nil
	}

	ious := images.IoUMatrix(preds.Boxes, gt.Boxes)
	bestGT, err := images.BestMatches(ious)
	if err != nil {
		return Assignment{}, err
	}

	for _, i := range visitOrder(preds, opts.SortByScore) {
		best := bestGT[i]
		if images.Row(ious, i)[best] >= opts.IoUThreshold && preds.Labels[i] == gt.Labels[best] && !a.Claimed[best] {
			a.Matches[i] = best
			a.Claimed[best] = true
		}
	}

	return a, nil
}

func validate(preds, gt common.DetectionSet, opts MatchOptions) error {
	if !(opts.IoUThreshold > 0 && opts.IoUThreshold <= 1) {
		return errors.Wrapf(ErrInvalidInput, "iou threshold %v outside (0, 1]", opts.IoUThreshold)
	}
	if err := preds.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidInput, "predictions: %v", err)
	}
	if err := gt.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidInput, "ground truth: %v", err)
	}
	if opts.SortByScore && preds.Len() > 0 && !preds.HasScores() {
		return errors.Wrap(ErrInvalidInput, "predictions have no scores to sort by")
	}
	return nil
}

func visitOrder(preds common.DetectionSet, byScore bool) []int {
	order := make([]int, preds.Len())
	for i := range order {
		order[i] = i
	}
	if byScore {
		sort.SliceStable(order, func(a, b int) bool {
			return preds.Scores[order[a]] > preds.Scores[order[b]]
		})
	}
	return order
}
