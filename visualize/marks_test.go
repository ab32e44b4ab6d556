package visualize

import (
	"testing"

	"github.com/nvr-ai/go-eval/common"
	"github.com/nvr-ai/go-eval/images"
	"github.com/nvr-ai/go-eval/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarks(t *testing.T) {
	preds := common.DetectionSet{
		Boxes:  []images.Rect{{X1: 0, Y1: 0, X2: 10, Y2: 10}, {X1: 50, Y1: 50, X2: 60, Y2: 60}},
		Labels: []int{1, 2},
		Scores: []float32{0.9, 0.4},
	}
	gt := common.DetectionSet{
		Boxes:  []images.Rect{{X1: 0, Y1: 0, X2: 10, Y2: 10}, {X1: 20, Y1: 20, X2: 30, Y2: 30}},
		Labels: []int{1, 7},
	}
	a, err := metrics.Assign(preds, gt, metrics.DefaultMatchOptions())
	require.NoError(t, err)

	marks := Marks(preds, gt, a, []string{"__background__", "person", "car"})
	require.Len(t, marks, 3)

	assert.Equal(t, TruePositive, marks[0].Kind)
	assert.Equal(t, "person 0.90", marks[0].Text)
	assert.Equal(t, FalsePositive, marks[1].Kind)
	assert.Equal(t, "car 0.40", marks[1].Text)
	assert.Equal(t, FalseNegative, marks[2].Kind)
	assert.Equal(t, "class_7", marks[2].Text)
	assert.Equal(t, gt.Boxes[1], marks[2].Box)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "TP", TruePositive.String())
	assert.Equal(t, "FP", FalsePositive.String())
	assert.Equal(t, "FN", FalseNegative.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
	assert.NotEqual(t, TruePositive.Color(), FalsePositive.Color())
}

func TestNew(t *testing.T) {
	dir := t.TempDir() + "/overlays"
	v, err := New(dir, nil, metrics.DefaultMatchOptions())
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, dir+"/img_001.jpg", v.OutputPath("/data/images/img_001.png"))

	_, err = New("", nil, metrics.DefaultMatchOptions())
	assert.Error(t, err)
}
