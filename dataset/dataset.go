package dataset

import (
	"image"
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-eval/common"
	"github.com/nvr-ai/go-eval/images"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// Options controls how samples are prepared.
type Options struct {
	// ImageSize is the resize target in pixels. Zero keeps the original size.
	ImageSize int `json:"image_size" yaml:"image_size"`
	// Square stretches every image to ImageSize x ImageSize instead of keeping the aspect ratio.
	Square bool `json:"square" yaml:"square"`
	// Classes is the label space, indexed by label.
	Classes []string `json:"classes" yaml:"classes"`
}

// Sample is one decoded image with its ground truth, both in resized pixel space.
type Sample struct {
	Path   string
	Image  image.Image
	Target common.DetectionSet
}

// Dataset is an image directory with Pascal VOC annotations next to it.
type Dataset struct {
	labelsDir string
	files     []ImageFile
	index     map[string]int
	opts      Options
}

// New indexes an evaluation dataset.
//
// Arguments:
//   - imagesDir: Directory holding the images.
//   - labelsDir: Directory holding one <stem>.xml annotation per image.
//   - opts: Resize and label options.
//
// Returns:
//   - *Dataset: The dataset.
//   - error: When the images cannot be listed or no classes were given.
func New(imagesDir, labelsDir string, opts Options) (*Dataset, error) {
	if len(opts.Classes) == 0 {
		return nil, errors.New("dataset needs at least one class")
	}
	files, err := ListImageFiles(imagesDir)
	if err != nil {
		return nil, err
	}
	return &Dataset{
		labelsDir: labelsDir,
		files:     files,
		index:     ClassIndex(opts.Classes),
		opts:      opts,
	}, nil
}

// Len returns the number of images.
func (d *Dataset) Len() int {
	return len(d.files)
}

// Classes returns the label space.
func (d *Dataset) Classes() []string {
	return d.opts.Classes
}

// Get loads sample i. A missing annotation file yields an image without ground truth.
func (d *Dataset) Get(i int) (Sample, error) {
	if i < 0 || i >= len(d.files) {
		return Sample{}, errors.Errorf("sample %d out of range [0, %d)", i, len(d.files))
	}
	file := d.files[i]

	img, err := decodeImage(file.Path)
	if err != nil {
		return Sample{}, err
	}
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	var target common.DetectionSet
	labelPath := filepath.Join(d.labelsDir, file.Stem+".xml")
	ann, err := LoadVOC(labelPath)
	switch {
	case err == nil:
		target, err = ann.Targets(d.index, w, h)
		if err != nil {
			return Sample{}, errors.Wrapf(err, "annotation %s", labelPath)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Sample{}, err
	}

	resized, sx, sy := images.ResizeForEval(img, d.opts.ImageSize, d.opts.Square)

	return Sample{
		Path:   file.Path,
		Image:  resized,
		Target: target.Scale(sx, sy),
	}, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %s", path)
	}
	return img, nil
}
