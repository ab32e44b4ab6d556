// Package model - The contract shared by every detection model decoder.
package model

import (
	"image"

	"github.com/nvr-ai/go-eval/models/model/preprocess"
	"github.com/nvr-ai/go-eval/models/postprocess"
	"github.com/pkg/errors"
)

// Family is the class space a model predicts in.
type Family string

const (
	// ModelFamilyCOCO is the COCO model family.
	ModelFamilyCOCO Family = "coco"
	// ModelFamilyYOLO is the YOLO model family.
	ModelFamilyYOLO Family = "yolo"
	// ModelFamilyTF is the TensorFlow model family.
	ModelFamilyTF Family = "tf"
	// ModelFamilyVOC is the Pascal VOC model family.
	ModelFamilyVOC Family = "voc"
	// ModelFamilyCustom predicts directly in the dataset's own class list.
	ModelFamilyCustom Family = "custom"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameFasterRCNN is the name of the torchvision Faster R-CNN export.
	ModelNameFasterRCNN Name = "fasterrcnn"
	// ModelNameRFDETR is the name of the RF-DETR model.
	ModelNameRFDETR Name = "rfdetr"
	// ModelNameYOLOv4 is the name of the YOLOv4 model.
	ModelNameYOLOv4 Name = "yolov4"
)

// Names lists every supported model.
var Names = []Name{ModelNameFasterRCNN, ModelNameRFDETR, ModelNameYOLOv4}

// Output is one named output tensor copied out of the runtime.
//
// Exactly one of Float32 and Int64 is set, matching the tensor's element type.
type Output struct {
	Name    string
	Shape   []int64
	Float32 []float32
	Int64   []int64
}

// Len returns the number of elements held.
func (o Output) Len() int {
	if o.Float32 != nil {
		return len(o.Float32)
	}
	return len(o.Int64)
}

// Floats returns the elements as float32, converting integer tensors.
func (o Output) Floats() []float32 {
	if o.Float32 != nil {
		return o.Float32
	}
	out := make([]float32, len(o.Int64))
	for i, v := range o.Int64 {
		out[i] = float32(v)
	}
	return out
}

// Ints returns the elements as int, truncating float tensors.
func (o Output) Ints() []int {
	out := make([]int, o.Len())
	if o.Float32 != nil {
		for i, v := range o.Float32 {
			out[i] = int(v)
		}
		return out
	}
	for i, v := range o.Int64 {
		out[i] = int(v)
	}
	return out
}

// FindOutput returns the output called name.
func FindOutput(outputs []Output, name string) (Output, error) {
	for _, o := range outputs {
		if o.Name == name {
			return o, nil
		}
	}
	return Output{}, errors.Errorf("model output %q not found", name)
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name   Name   `json:"name" yaml:"name"`
	Path   string `json:"path" yaml:"path"`
	Family Family `json:"family" yaml:"family"`
	// InputSize is the square model input in pixels. Zero feeds images at their own size.
	InputSize int `json:"input_size" yaml:"input_size"`
	// ConfidenceThreshold drops detections scoring below it.
	ConfidenceThreshold float32                `json:"confidence_threshold" yaml:"confidence_threshold"`
	NMS                 *postprocess.NMSConfig `json:"nms" yaml:"nms"`
	Inputs              []string               `json:"inputs" yaml:"inputs"`
	Outputs             []string               `json:"outputs" yaml:"outputs"`
}

// Model turns images into model inputs and model outputs into detections.
//
// Implementations are stateless and safe for concurrent use.
type Model interface {
	// Options returns the arguments the model was created with, defaults filled in.
	Options() NewModelArgs
	// PreProcess converts one image into an input tensor.
	PreProcess(img image.Image) (*preprocess.Result, error)
	// PostProcess decodes the outputs of one image into boxes in that image's pixel space.
	PostProcess(outputs []Output, input *preprocess.Result) ([]postprocess.Result, error)
}
