package common

import (
	"testing"

	"github.com/nvr-ai/go-eval/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectionSetValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     DetectionSet
		wantErr bool
	}{
		{"empty", DetectionSet{}, false},
		{"ground truth without scores", DetectionSet{
			Boxes:  []images.Rect{{X1: 0, Y1: 0, X2: 1, Y2: 1}},
			Labels: []int{1},
		}, false},
		{"predictions with scores", DetectionSet{
			Boxes:  []images.Rect{{X1: 0, Y1: 0, X2: 1, Y2: 1}, {X1: 1, Y1: 1, X2: 2, Y2: 2}},
			Labels: []int{1, 2},
			Scores: []float32{0.9, 0.1},
		}, false},
		{"missing label", DetectionSet{
			Boxes:  []images.Rect{{X1: 0, Y1: 0, X2: 1, Y2: 1}, {X1: 1, Y1: 1, X2: 2, Y2: 2}},
			Labels: []int{1},
		}, true},
		{"extra score", DetectionSet{
			Boxes:  []images.Rect{{X1: 0, Y1: 0, X2: 1, Y2: 1}},
			Labels: []int{1},
			Scores: []float32{0.9, 0.1},
		}, true},
		{"empty non-nil scores", DetectionSet{
			Boxes:  []images.Rect{{X1: 0, Y1: 0, X2: 1, Y2: 1}},
			Labels: []int{1},
			Scores: []float32{},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDetectionSetAppendAndScale(t *testing.T) {
	var d DetectionSet
	require.NoError(t, d.AppendPrediction(images.Rect{X1: 10, Y1: 10, X2: 20, Y2: 20}, 3, 0.75))
	require.NoError(t, d.AppendPrediction(images.Rect{X1: 0, Y1: 0, X2: 4, Y2: 8}, 1, 0.5))

	assert.Equal(t, 2, d.Len())
	assert.True(t, d.HasScores())
	assert.NoError(t, d.Validate())

	scaled := d.Scale(0.5, 2)
	assert.Equal(t, images.Rect{X1: 5, Y1: 20, X2: 10, Y2: 40}, scaled.Boxes[0])
	assert.Equal(t, []int{3, 1}, scaled.Labels)
	assert.Equal(t, []float32{0.75, 0.5}, scaled.Scores)

	// The original is untouched.
	assert.Equal(t, images.Rect{X1: 10, Y1: 10, X2: 20, Y2: 20}, d.Boxes[0])

	var gt DetectionSet
	require.NoError(t, gt.AppendTarget(images.Rect{X1: 0, Y1: 0, X2: 1, Y2: 1}, 1))
	assert.False(t, gt.HasScores())
	assert.Nil(t, gt.Scores)
	assert.Nil(t, gt.Scale(1, 1).Scores)
}

// TestDetectionSetAppendKeepsSlicesAligned validates that scored and unscored boxes cannot be
// mixed in one set.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestDetectionSetAppendKeepsSlicesAligned(t *testing.T) {
	box := images.Rect{X1: 0, Y1: 0, X2: 2, Y2: 2}

	var preds DetectionSet
	require.NoError(t, preds.AppendPrediction(box, 1, 0.9))
	assert.Error(t, preds.AppendTarget(box, 1))
	assert.Equal(t, 1, preds.Len())
	assert.NoError(t, preds.Validate())

	var gt DetectionSet
	require.NoError(t, gt.AppendTarget(box, 1))
	assert.Error(t, gt.AppendPrediction(box, 1, 0.9))
	assert.Equal(t, 1, gt.Len())
	assert.Nil(t, gt.Scores)
	assert.NoError(t, gt.Validate())

	// A set built with empty, non-nil slices still accepts predictions.
	empty := DetectionSet{Boxes: []images.Rect{}, Labels: []int{}, Scores: []float32{}}
	assert.NoError(t, empty.AppendPrediction(box, 2, 0.4))
	assert.Error(t, empty.AppendTarget(box, 2))
}
