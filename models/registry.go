package models

import (
	"github.com/nvr-ai/go-eval/models/fasterrcnn"
	"github.com/nvr-ai/go-eval/models/model"
	"github.com/nvr-ai/go-eval/models/rfdetr"
	"github.com/nvr-ai/go-eval/models/yolov4"
	"github.com/pkg/errors"
)

// NewModel creates a new detection model instance based on the specified model type.
//
// Arguments:
//   - args: Configuration parameters specifying the model type and location.
//
// Returns:
//   - model.Model: A fully configured model instance implementing the Model interface.
//   - error: An error if the model type is unsupported or its arguments are invalid.
//
// Example:
//
// ```go
//
//	m, err := NewModel(model.NewModelArgs{
//	    Name: model.ModelNameFasterRCNN,
//	    Path: "/models/fasterrcnn_voc.onnx",
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
//
// ```
func NewModel(args model.NewModelArgs) (model.Model, error) {
	switch args.Name {
	case model.ModelNameFasterRCNN:
		m, err := fasterrcnn.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	case model.ModelNameRFDETR:
		m, err := rfdetr.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	case model.ModelNameYOLOv4:
		m, err := yolov4.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.Errorf("unsupported model name: %s", args.Name)
	}
}
