package visualize

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-eval/common"
	"github.com/nvr-ai/go-eval/metrics"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Visualizer writes one annotated JPEG per evaluated image.
type Visualizer struct {
	outDir string
	names  []string
	opts   metrics.MatchOptions
}

// New creates the output directory and a visualizer writing into it.
//
// Arguments:
//   - outDir: Where the annotated images go.
//   - names: Class names indexed by label.
//   - opts: The matching options used for the TP/FP/FN split.
//
// Returns:
//   - *Visualizer: The visualizer.
//   - error: When the directory cannot be created.
func New(outDir string, names []string, opts metrics.MatchOptions) (*Visualizer, error) {
	if outDir == "" {
		return nil, errors.New("output directory is required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", outDir)
	}
	return &Visualizer{outDir: outDir, names: names, opts: opts}, nil
}

// OutputPath returns where the overlay of the image at imgPath is written.
func (v *Visualizer) OutputPath(imgPath string) string {
	stem := strings.TrimSuffix(filepath.Base(imgPath), filepath.Ext(imgPath))
	return filepath.Join(v.outDir, stem+".jpg")
}

// Draw matches preds against gt and writes the image with every mark drawn on it.
//
// Arguments:
//   - imgPath: The source image path, used to name the output.
//   - img: The image the boxes are expressed in.
//   - preds: The predictions.
//   - gt: The ground truth.
//
// Returns:
//   - error: When matching, conversion or writing fails.
func (v *Visualizer) Draw(imgPath string, img image.Image, preds, gt common.DetectionSet) error {
	a, err := metrics.Assign(preds, gt, v.opts)
	if err != nil {
		return err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrapf(err, "convert %s", imgPath)
	}
	defer mat.Close()

	for _, m := range Marks(preds, gt, a, v.names) {
		rect := m.Box.ToRectangle()
		gocv.Rectangle(&mat, rect, m.Kind.Color(), 2)
		origin := image.Pt(rect.Min.X, max(rect.Min.Y-4, 12))
		gocv.PutText(&mat, m.Kind.String()+" "+m.Text, origin, gocv.FontHersheyPlain, 1.0, m.Kind.Color(), 1)
	}

	out := v.OutputPath(imgPath)
	if !gocv.IMWrite(out, mat) {
		return errors.Errorf("failed to write %s", out)
	}
	return nil
}
