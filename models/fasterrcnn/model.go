// Package fasterrcnn - torchvision Faster R-CNN exports.
//
// The exported graph takes one image as a [3, H, W] tensor of RGB values in [0, 1] and returns
// boxes [N, 4] as x1, y1, x2, y2 in input pixels, labels [N] and scores [N].
package fasterrcnn

import (
	"image"

	"github.com/nvr-ai/go-eval/images"
	"github.com/nvr-ai/go-eval/models/model"
	"github.com/nvr-ai/go-eval/models/model/preprocess"
	"github.com/nvr-ai/go-eval/models/postprocess"
	"github.com/pkg/errors"
)

// FasterRCNN is the instance of the Faster R-CNN model.
type FasterRCNN struct {
	options      model.NewModelArgs
	preprocessor *preprocess.Preprocessor
}

// NewModel creates a new model. Labels default to the dataset's own classes.
func NewModel(args model.NewModelArgs) (*FasterRCNN, error) {
	opts := args
	opts.Name = model.ModelNameFasterRCNN
	if opts.Family == "" {
		opts.Family = model.ModelFamilyCustom
	}
	if len(opts.Inputs) == 0 {
		opts.Inputs = []string{"images"}
	}
	if len(opts.Outputs) == 0 {
		opts.Outputs = []string{"boxes", "labels", "scores"}
	}
	if len(opts.Outputs) != 3 {
		return nil, errors.Errorf("fasterrcnn needs 3 outputs (boxes, labels, scores), got %v", opts.Outputs)
	}

	cfg := preprocess.GetFasterRCNNConfig()
	cfg.InputWidth = opts.InputSize
	cfg.InputHeight = opts.InputSize
	cfg.KeepAspectRatio = true

	return &FasterRCNN{
		options:      opts,
		preprocessor: preprocess.NewPreprocessor(cfg),
	}, nil
}

// Options returns the options for the Faster R-CNN model.
func (m *FasterRCNN) Options() model.NewModelArgs {
	return m.options
}

// PreProcess converts the image to a [3, H, W] tensor.
func (m *FasterRCNN) PreProcess(img image.Image) (*preprocess.Result, error) {
	return m.preprocessor.Preprocess(img)
}

// PostProcess pairs up the boxes, labels and scores outputs.
func (m *FasterRCNN) PostProcess(outputs []model.Output, input *preprocess.Result) ([]postprocess.Result, error) {
	boxesOut, err := model.FindOutput(outputs, m.options.Outputs[0])
	if err != nil {
		return nil, err
	}
	labelsOut, err := model.FindOutput(outputs, m.options.Outputs[1])
	if err != nil {
		return nil, err
	}
	scoresOut, err := model.FindOutput(outputs, m.options.Outputs[2])
	if err != nil {
		return nil, err
	}

	boxes := boxesOut.Floats()
	labels := labelsOut.Ints()
	scores := scoresOut.Floats()
	n := len(scores)
	if len(boxes) != 4*n || len(labels) != n {
		return nil, errors.Errorf("fasterrcnn outputs disagree: %d box values, %d labels, %d scores",
			len(boxes), len(labels), n)
	}

	results := make([]postprocess.Result, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, postprocess.Result{
			Box: input.Unmap(images.Rect{
				X1: boxes[i*4],
				Y1: boxes[i*4+1],
				X2: boxes[i*4+2],
				Y2: boxes[i*4+3],
			}),
			Score: scores[i],
			Class: labels[i],
		})
	}

	results = postprocess.FilterByConfidence(results, m.options.ConfidenceThreshold)
	if m.options.NMS != nil {
		results = postprocess.ApplyGreedyNMS(results, m.options.NMS)
	}
	return results, nil
}
