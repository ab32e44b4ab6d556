package rfdetr

import (
	"testing"

	"github.com/nvr-ai/go-eval/models/model"
	"github.com/nvr-ai/go-eval/models/model/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPostProcessQueries validates the native box and logit pair.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestPostProcessQueries(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{ConfidenceThreshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, DefaultInputSize, m.Options().InputSize)
	assert.Equal(t, model.ModelFamilyCOCO, m.Options().Family)

	input := &preprocess.Result{
		OriginalWidth: 200, OriginalHeight: 100,
		InputWidth: 100, InputHeight: 100,
		ScaleX: 0.5, ScaleY: 1,
	}
	outputs := []model.Output{
		{Name: "dets", Float32: []float32{
			0.5, 0.5, 0.2, 0.4,
			0.1, 0.1, 0.1, 0.1,
		}},
		{Name: "labels", Float32: []float32{
			-5, 3, 0,
			-5, -4, -3,
		}},
	}

	got, err := m.PostProcess(outputs, input)
	require.NoError(t, err)
	require.Len(t, got, 1, "the second query scores below the threshold")

	assert.Equal(t, 1, got[0].Class)
	assert.InDelta(t, 0.9526, got[0].Score, 1e-3)
	assert.InDelta(t, 80, got[0].Box.X1, 1e-3)
	assert.InDelta(t, 30, got[0].Box.Y1, 1e-3)
	assert.InDelta(t, 120, got[0].Box.X2, 1e-3)
	assert.InDelta(t, 70, got[0].Box.Y2, 1e-3)
}

// TestPostProcessRows validates the single output layout with in-graph postprocessing.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestPostProcessRows(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{Outputs: []string{"output"}})
	require.NoError(t, err)

	input := &preprocess.Result{OriginalWidth: 100, OriginalHeight: 100, ScaleX: 1, ScaleY: 1}
	got, err := m.PostProcess([]model.Output{{Name: "output", Float32: []float32{
		0, 0, 10, 10, 0.2, 3,
		5, 5, 50, 50, 0.8, 1,
	}}}, input)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, float32(0.8), got[0].Score, "sorted by score")
	assert.Equal(t, 1, got[0].Class)
	assert.Equal(t, 3, got[1].Class)

	_, err = m.PostProcess([]model.Output{{Name: "output", Float32: make([]float32, 7)}}, input)
	assert.Error(t, err)
}

// TestPostProcessMissingOutput validates that absent outputs are reported.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestPostProcessMissingOutput(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{})
	require.NoError(t, err)

	_, err = m.PostProcess([]model.Output{{Name: "dets", Float32: make([]float32, 4)}}, &preprocess.Result{})
	assert.Error(t, err)

	_, err = m.PostProcess([]model.Output{
		{Name: "dets", Float32: make([]float32, 8)},
		{Name: "labels", Float32: make([]float32, 3)},
	}, &preprocess.Result{})
	assert.Error(t, err)
}
