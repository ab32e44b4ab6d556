// Package yolov4 - YOLOv4 model.
package yolov4

import (
	"image"

	"github.com/nvr-ai/go-eval/models/model"
	"github.com/nvr-ai/go-eval/models/model/preprocess"
	"github.com/nvr-ai/go-eval/models/postprocess"
)

// DefaultInputSize is the letterboxed square input.
const DefaultInputSize = 416

// YOLOv4 is the instance of the YOLOv4 model.
type YOLOv4 struct {
	options      model.NewModelArgs
	preprocessor *preprocess.Preprocessor
}

// Options returns the options for the YOLOv4 model.
//
// Returns:
//   - The options for the YOLOv4 model.
func (m *YOLOv4) Options() model.NewModelArgs {
	return m.options
}

// PreProcess letterboxes the image into the square input.
func (m *YOLOv4) PreProcess(img image.Image) (*preprocess.Result, error) {
	return m.preprocessor.Preprocess(img)
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
func NewModel(args model.NewModelArgs) (*YOLOv4, error) {
	opts := args
	opts.Name = model.ModelNameYOLOv4
	if opts.Family == "" {
		opts.Family = model.ModelFamilyYOLO
	}
	if opts.InputSize <= 0 {
		opts.InputSize = DefaultInputSize
	}
	if len(opts.Inputs) == 0 {
		opts.Inputs = []string{"input"}
	}
	if len(opts.Outputs) == 0 {
		opts.Outputs = []string{"output"}
	}
	if opts.NMS == nil {
		opts.NMS = postprocess.DefaultNMSConfig()
	}

	return &YOLOv4{
		options:      opts,
		preprocessor: preprocess.NewPreprocessor(preprocess.GetYOLOv4Config(opts.InputSize)),
	}, nil
}
