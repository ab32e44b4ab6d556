package evaluator

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-eval/common"
	"github.com/nvr-ai/go-eval/dataset"
	"github.com/nvr-ai/go-eval/images"
	"github.com/nvr-ai/go-eval/profiler"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var personBox = images.Rect{X1: 10, Y1: 20, X2: 110, Y2: 80}

// fakeDetector predicts personBox on every image for which hit returns true.
type fakeDetector struct {
	calls int
	seen  int
	hit   func(i int) bool
	err   error
	short bool
}

func (d *fakeDetector) Predict(_ context.Context, imgs []image.Image) ([]common.DetectionSet, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	sets := make([]common.DetectionSet, len(imgs))
	for i := range imgs {
		sets[i] = common.DetectionSet{Boxes: []images.Rect{}, Labels: []int{}, Scores: []float32{}}
		if d.hit == nil || d.hit(d.seen) {
			if err := sets[i].AppendPrediction(personBox, 1, 0.9); err != nil {
				return nil, err
			}
		}
		d.seen++
	}
	if d.short {
		return sets[:len(sets)-1], nil
	}
	return sets, nil
}

// newLoader writes count 200x100 images with one person box each.
func newLoader(t *testing.T, count, batch int) *dataset.Loader {
	t.Helper()
	root := t.TempDir()
	imgDir := filepath.Join(root, "images")
	lblDir := filepath.Join(root, "labels")
	require.NoError(t, os.MkdirAll(imgDir, 0o755))
	require.NoError(t, os.MkdirAll(lblDir, 0o755))

	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	for i := 0; i < count; i++ {
		stem := fmt.Sprintf("img_%03d", i)
		require.NoError(t, os.WriteFile(filepath.Join(imgDir, stem+".png"), buf.Bytes(), 0o644))
		xml := fmt.Sprintf(`<annotation><filename>%s.png</filename>
<size><width>200</width><height>100</height><depth>3</depth></size>
<object><name>person</name><difficult>0</difficult>
<bndbox><xmin>10</xmin><ymin>20</ymin><xmax>110</xmax><ymax>80</ymax></bndbox></object>
</annotation>`, stem)
		require.NoError(t, os.WriteFile(filepath.Join(lblDir, stem+".xml"), []byte(xml), 0o644))
	}

	ds, err := dataset.New(imgDir, lblDir, dataset.Options{Classes: []string{dataset.BackgroundClass, "person"}})
	require.NoError(t, err)
	loader, err := dataset.NewLoader(ds, batch, 2)
	require.NoError(t, err)
	return loader
}

// TestRunPerfect validates a detector that finds every box.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestRunPerfect(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prof := profiler.NewProfiler(0)
	var progress bytes.Buffer

	opts := DefaultOptions()
	opts.LogEvery = 1
	opts.Progress = &progress
	det := &fakeDetector{}

	e, err := New(det, newLoader(t, 5, 2), opts, zap.New(core).Sugar(), prof)
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, det.calls)
	assert.Equal(t, 5, summary.Images)
	assert.Equal(t, 5, summary.Counts.TP)
	assert.Equal(t, 0, summary.Counts.FP)
	assert.Equal(t, 0, summary.Counts.FN)
	assert.InDelta(t, 1.0, summary.Precision, 1e-9)
	assert.InDelta(t, 1.0, summary.Recall, 1e-9)
	assert.InDelta(t, 1.0, summary.MAP, 1e-9)
	assert.InDelta(t, 1.0, summary.MAP50, 1e-9)

	assert.Equal(t, 3, logs.FilterMessage("progress").Len())
	assert.Equal(t, 1, logs.FilterMessage("evaluation done").Len())
	assert.NotEmpty(t, progress.String())

	_, ok := prof.Stats(profiler.OperationEvaluate)
	assert.True(t, ok)
	load, ok := prof.Stats(profiler.OperationLoad)
	require.True(t, ok, "batch loads are timed")
	assert.Equal(t, int64(3), load.Count)
}

// TestRunMissedImages validates that images without predictions count as false negatives.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestRunMissedImages(t *testing.T) {
	det := &fakeDetector{hit: func(i int) bool { return i%2 == 0 }}
	e, err := New(det, newLoader(t, 4, 3), DefaultOptions(), nil, nil)
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Images)
	assert.Equal(t, 2, summary.Counts.TP)
	assert.Equal(t, 2, summary.Counts.FN)
	assert.InDelta(t, 1.0, summary.Precision, 1e-9)
	assert.InDelta(t, 0.5, summary.Recall, 1e-9)
	assert.InDelta(t, 51.0/101.0, summary.MAP50, 1e-9)
}

// TestRunErrors validates that detector failures stop the run.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestRunErrors(t *testing.T) {
	e, err := New(&fakeDetector{err: errors.New("gpu lost")}, newLoader(t, 3, 1), DefaultOptions(), nil, nil)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.ErrorContains(t, err, "gpu lost")

	e, err = New(&fakeDetector{short: true}, newLoader(t, 2, 2), DefaultOptions(), nil, nil)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.ErrorContains(t, err, "prediction sets")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, err = New(&fakeDetector{}, newLoader(t, 2, 1), DefaultOptions(), nil, nil)
	require.NoError(t, err)
	_, err = e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = New(nil, newLoader(t, 1, 1), DefaultOptions(), nil, nil)
	assert.Error(t, err)
	_, err = New(&fakeDetector{}, nil, DefaultOptions(), nil, nil)
	assert.Error(t, err)
}
