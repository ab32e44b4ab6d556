package yolov4

import (
	"testing"

	"github.com/nvr-ai/go-eval/models/model"
	"github.com/nvr-ai/go-eval/models/model/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(cx, cy, w, h, obj float32, class int, score float32) []float32 {
	r := make([]float32, numCols)
	r[0], r[1], r[2], r[3], r[4] = cx, cy, w, h, obj
	r[5+class] = score
	return r
}

// TestPostProcess validates scoring, letterbox unmapping and NMS.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestPostProcess(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{ConfidenceThreshold: 0.25})
	require.NoError(t, err)
	assert.Equal(t, DefaultInputSize, m.Options().InputSize)
	require.NotNil(t, m.Options().NMS)

	var data []float32
	data = append(data, row(208, 208, 100, 100, 0.9, 0, 0.9)...)
	data = append(data, row(210, 210, 100, 100, 0.8, 0, 0.9)...)
	data = append(data, row(100, 150, 20, 20, 0.9, 2, 0.5)...)
	data = append(data, row(300, 300, 50, 50, 0.2, 5, 1.0)...)

	input := &preprocess.Result{
		OriginalWidth: 832, OriginalHeight: 416,
		InputWidth: 416, InputHeight: 416,
		ScaleX: 0.5, ScaleY: 0.5, PadTop: 104,
	}
	got, err := m.PostProcess([]model.Output{{Name: "output", Float32: data}}, input)
	require.NoError(t, err)
	require.Len(t, got, 2, "duplicate suppressed and low objectness dropped")

	assert.Equal(t, 0, got[0].Class)
	assert.InDelta(t, 0.81, got[0].Score, 1e-5)
	assert.InDelta(t, 316, got[0].Box.X1, 1e-3)
	assert.InDelta(t, 108, got[0].Box.Y1, 1e-3)
	assert.InDelta(t, 516, got[0].Box.X2, 1e-3)
	assert.InDelta(t, 308, got[0].Box.Y2, 1e-3)

	assert.Equal(t, 2, got[1].Class)
	assert.InDelta(t, 0.45, got[1].Score, 1e-5)
}

// TestPostProcessErrors validates malformed and missing outputs.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestPostProcessErrors(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{})
	require.NoError(t, err)

	_, err = m.PostProcess([]model.Output{{Name: "output", Float32: make([]float32, numCols+1)}}, &preprocess.Result{})
	assert.Error(t, err)

	_, err = m.PostProcess([]model.Output{{Name: "other"}}, &preprocess.Result{})
	assert.Error(t, err)
}
