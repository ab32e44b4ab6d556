package dataset

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nvr-ai/go-eval/images"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClasses = []string{BackgroundClass, "person", "car"}

type vocBox struct {
	name                   string
	xmin, ymin, xmax, ymax int
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func vocXML(filename string, w, h int, boxes ...vocBox) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<annotation>\n  <filename>%s</filename>\n", filename)
	fmt.Fprintf(&sb, "  <size><width>%d</width><height>%d</height><depth>3</depth></size>\n", w, h)
	for _, b := range boxes {
		fmt.Fprintf(&sb, "  <object>\n    <name> %s </name>\n    <difficult>0</difficult>\n", b.name)
		fmt.Fprintf(&sb, "    <bndbox><xmin>%d</xmin><ymin>%d</ymin><xmax>%d</xmax><ymax>%d</ymax></bndbox>\n",
			b.xmin, b.ymin, b.xmax, b.ymax)
		sb.WriteString("  </object>\n")
	}
	sb.WriteString("</annotation>\n")
	return sb.String()
}

// newFixture writes count 200x100 images, each with one person box, and returns the image and
// label directories.
func newFixture(t *testing.T, count int) (string, string) {
	t.Helper()
	root := t.TempDir()
	imgDir := filepath.Join(root, "images")
	lblDir := filepath.Join(root, "labels")
	require.NoError(t, os.MkdirAll(imgDir, 0o755))
	require.NoError(t, os.MkdirAll(lblDir, 0o755))

	for i := 0; i < count; i++ {
		stem := fmt.Sprintf("img_%03d", i)
		writePNG(t, filepath.Join(imgDir, stem+".png"), 200, 100)
		xml := vocXML(stem+".png", 200, 100, vocBox{"person", 10, 20, 110, 80})
		require.NoError(t, os.WriteFile(filepath.Join(lblDir, stem+".xml"), []byte(xml), 0o644))
	}
	return imgDir, lblDir
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.PNG", "c.webp", "notes.txt", "d.bmp", "e.jpeg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755))

	files, err := ListImageFiles(dir)
	require.NoError(t, err)

	var stems []string
	for _, f := range files {
		stems = append(stems, f.Stem)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, stems)

	_, err = ListImageFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestParseVOC(t *testing.T) {
	xml := vocXML("x.jpg", 640, 480, vocBox{"person", 1, 2, 30, 40}, vocBox{"car", 5, 5, 700, 500})
	ann, err := ParseVOC(strings.NewReader(xml))
	require.NoError(t, err)

	assert.Equal(t, "x.jpg", ann.Filename)
	assert.Equal(t, 640, ann.Size.Width)
	require.Len(t, ann.Objects, 2)
	assert.Equal(t, "person", ann.Objects[0].Name)
	assert.Equal(t, images.Rect{X1: 1, Y1: 2, X2: 30, Y2: 40}, ann.Objects[0].Rect())

	target, err := ann.Targets(ClassIndex(testClasses), 640, 480)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, target.Labels)
	assert.Nil(t, target.Scores)
	assert.Equal(t, images.Rect{X1: 5, Y1: 5, X2: 640, Y2: 480}, target.Boxes[1], "boxes are clipped")

	_, err = ParseVOC(strings.NewReader("<annotation><object>"))
	assert.Error(t, err)
}

func TestAnnotationTargets(t *testing.T) {
	index := ClassIndex(testClasses)

	ann, err := ParseVOC(strings.NewReader(vocXML("x", 100, 100, vocBox{"dog", 0, 0, 10, 10})))
	require.NoError(t, err)
	_, err = ann.Targets(index, 100, 100)
	assert.ErrorContains(t, err, `unknown class "dog"`)

	ann, err = ParseVOC(strings.NewReader(vocXML("x", 100, 100,
		vocBox{"person", 150, 0, 160, 10},
		vocBox{"car", 10, 10, 10, 50},
		vocBox{"car", 10, 10, 20, 50},
	)))
	require.NoError(t, err)
	target, err := ann.Targets(index, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, target.Len(), "boxes outside the image or without area are dropped")
	assert.Equal(t, []int{2}, target.Labels)
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
VALID_DIR_IMAGES: valid/images
VALID_DIR_LABELS: valid/labels
TEST_DIR_IMAGES: test/images
TEST_DIR_LABELS: test/labels
NC: 3
CLASSES:
  - __background__
  - person
  - car
COCO_91_CLASSES:
  - __background__
  - person
  - bicycle
  - car
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	imgDir, lblDir, err := cfg.EvalDirs()
	require.NoError(t, err)
	assert.Equal(t, "test/images", imgDir)
	assert.Equal(t, "test/labels", lblDir)

	classes, err := cfg.LabelSpace(false)
	require.NoError(t, err)
	assert.Equal(t, testClasses, classes)

	coco, err := cfg.LabelSpace(true)
	require.NoError(t, err)
	assert.Len(t, coco, 4)

	cfg.TestDirImages = ""
	imgDir, _, err = cfg.EvalDirs()
	require.NoError(t, err)
	assert.Equal(t, "valid/images", imgDir)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no dirs", "NC: 1\nCLASSES: [__background__]\n"},
		{"no classes", "VALID_DIR_IMAGES: a\nVALID_DIR_LABELS: b\n"},
		{"nc mismatch", "VALID_DIR_IMAGES: a\nVALID_DIR_LABELS: b\nNC: 5\nCLASSES: [__background__, x]\n"},
		{"bad yaml", "CLASSES: [unterminated\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	cfg := &Config{ValidDirImages: "a", ValidDirLabels: "b", Classes: testClasses}
	_, err = cfg.LabelSpace(true)
	assert.Error(t, err)
}

func TestDatasetGet(t *testing.T) {
	imgDir, lblDir := newFixture(t, 2)
	// An image without an annotation file has no ground truth.
	writePNG(t, filepath.Join(imgDir, "unlabelled.png"), 50, 50)

	ds, err := New(imgDir, lblDir, Options{ImageSize: 100, Classes: testClasses})
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())
	assert.Equal(t, testClasses, ds.Classes())

	s, err := ds.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 100, s.Image.Bounds().Dx(), "200x100 scaled to a longest side of 100")
	assert.Equal(t, 50, s.Image.Bounds().Dy())
	require.Equal(t, 1, s.Target.Len())
	assert.Equal(t, []int{1}, s.Target.Labels)
	assert.Equal(t, images.Rect{X1: 5, Y1: 10, X2: 55, Y2: 40}, s.Target.Boxes[0])

	s, err = ds.Get(2)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Target.Len())
	assert.NoError(t, s.Target.Validate())

	_, err = ds.Get(3)
	assert.Error(t, err)
}

func TestDatasetSquare(t *testing.T) {
	imgDir, lblDir := newFixture(t, 1)
	ds, err := New(imgDir, lblDir, Options{ImageSize: 100, Square: true, Classes: testClasses})
	require.NoError(t, err)

	s, err := ds.Get(0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), s.Image.Bounds())
	assert.Equal(t, images.Rect{X1: 5, Y1: 20, X2: 55, Y2: 80}, s.Target.Boxes[0])
}

func TestDatasetErrors(t *testing.T) {
	_, err := New(t.TempDir(), t.TempDir(), Options{})
	assert.Error(t, err, "no classes")

	imgDir, lblDir := newFixture(t, 1)
	require.NoError(t, os.WriteFile(filepath.Join(imgDir, "broken.png"), []byte("not a png"), 0o644))
	ds, err := New(imgDir, lblDir, Options{Classes: testClasses})
	require.NoError(t, err)
	_, err = ds.Get(0)
	assert.ErrorContains(t, err, "decode image")

	require.NoError(t, os.WriteFile(filepath.Join(lblDir, "img_000.xml"), []byte("<annotation>"), 0o644))
	_, err = ds.Get(1)
	assert.Error(t, err)
}

func TestLoader(t *testing.T) {
	imgDir, lblDir := newFixture(t, 7)
	ds, err := New(imgDir, lblDir, Options{ImageSize: 50, Classes: testClasses})
	require.NoError(t, err)

	_, err = NewLoader(ds, 0, 2)
	assert.Error(t, err)

	loader, err := NewLoader(ds, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, loader.NumBatches())

	var got []string
	var sizes []int
	err = loader.Run(context.Background(), func(b Batch) error {
		assert.Equal(t, len(sizes), b.Index)
		sizes = append(sizes, len(b.Samples))
		for _, s := range b.Samples {
			got = append(got, filepath.Base(s.Path))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	require.Len(t, got, 7)
	assert.Equal(t, "img_000.png", got[0])
	assert.Equal(t, "img_006.png", got[6])
}

func TestLoader_StopsOnError(t *testing.T) {
	imgDir, lblDir := newFixture(t, 6)
	ds, err := New(imgDir, lblDir, Options{Classes: testClasses})
	require.NoError(t, err)
	loader, err := NewLoader(ds, 2, 0)
	require.NoError(t, err)

	boom := errors.New("boom")
	var calls atomic.Int32
	err = loader.Run(context.Background(), func(b Batch) error {
		calls.Add(1)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoader_Cancelled(t *testing.T) {
	imgDir, lblDir := newFixture(t, 4)
	ds, err := New(imgDir, lblDir, Options{Classes: testClasses})
	require.NoError(t, err)
	loader, err := NewLoader(ds, 1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	err = loader.Run(ctx, func(b Batch) error {
		if b.Index == 1 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
