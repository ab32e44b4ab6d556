// Package rfdetr - RF-DETR model.
package rfdetr

import (
	"image"

	"github.com/nvr-ai/go-eval/models/model"
	"github.com/nvr-ai/go-eval/models/model/preprocess"
)

// DefaultInputSize is the square input RF-DETR is exported with.
const DefaultInputSize = 560

// RFDETR is the instance of the RF-DETR model.
type RFDETR struct {
	options      model.NewModelArgs
	preprocessor *preprocess.Preprocessor
}

// Options returns the options for the RF-DETR model.
//
// Returns:
//   - The options for the RF-DETR model.
func (m *RFDETR) Options() model.NewModelArgs {
	return m.options
}

// PreProcess stretches the image to the square input and standardizes it.
func (m *RFDETR) PreProcess(img image.Image) (*preprocess.Result, error) {
	return m.preprocessor.Preprocess(img)
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
func NewModel(args model.NewModelArgs) (*RFDETR, error) {
	opts := args
	opts.Name = model.ModelNameRFDETR
	if opts.Family == "" {
		opts.Family = model.ModelFamilyCOCO
	}
	if opts.InputSize <= 0 {
		opts.InputSize = DefaultInputSize
	}
	if len(opts.Inputs) == 0 {
		opts.Inputs = []string{"input"}
	}
	if len(opts.Outputs) == 0 {
		opts.Outputs = []string{"dets", "labels"}
	}

	return &RFDETR{
		options:      opts,
		preprocessor: preprocess.NewPreprocessor(preprocess.GetRFDETRConfig(opts.InputSize)),
	}, nil
}
