// Package preprocess - Image to tensor conversion for detection models.
package preprocess

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-eval/images"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputWidth is the expected width of the model input. Zero keeps the image width.
	InputWidth int
	// InputHeight is the expected height of the model input. Zero keeps the image height.
	InputHeight int
	// InputChannels is the number of channels (1 for grayscale, 3 for RGB).
	InputChannels int
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// MeanValues for standardization (if NormalizationType is Standardize), on the 0-255 scale.
	MeanValues []float32
	// StdValues for standardization (if NormalizationType is Standardize), on the 0-255 scale.
	StdValues []float32
	// ChannelOrder defines the channel ordering (CHW or HWC).
	ChannelOrder ChannelOrder
	// ColorMode defines the color space (RGB, BGR, Grayscale).
	ColorMode ColorMode
	// KeepAspectRatio if true, maintains aspect ratio with letterboxing.
	KeepAspectRatio bool
	// LetterboxColor is the color used for letterbox padding (default black).
	LetterboxColor color.Color
	// BatchDim prepends a batch dimension of 1 to the tensor shape.
	BatchDim bool
}

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
	// NormalizeStandardize applies mean and std normalization.
	NormalizeStandardize
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderCHW is Channel-Height-Width ordering (common for ONNX).
	ChannelOrderCHW ChannelOrder = iota
	// ChannelOrderHWC is Height-Width-Channel ordering.
	ChannelOrderHWC
)

// ColorMode defines the color space of the image.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (common for OpenCV models).
	ColorModeBGR
	// ColorModeGrayscale is single channel grayscale.
	ColorModeGrayscale
)

// Result contains the preprocessed image data and how to map boxes back.
type Result struct {
	// Data is the preprocessed float32 tensor data.
	Data []float32
	// Shape is the tensor shape, [C, H, W] or [H, W, C] with an optional leading batch of 1.
	Shape []int64
	// OriginalWidth is the original image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the original image height before preprocessing.
	OriginalHeight int
	// InputWidth is the width of the tensor image.
	InputWidth int
	// InputHeight is the height of the tensor image.
	InputHeight int
	// ScaleX is the horizontal scaling factor applied.
	ScaleX float32
	// ScaleY is the vertical scaling factor applied.
	ScaleY float32
	// PadLeft is the left padding applied for letterboxing.
	PadLeft int
	// PadTop is the top padding applied for letterboxing.
	PadTop int
}

// Unmap converts a box from tensor pixel space back to the original image and clips it.
func (r *Result) Unmap(box images.Rect) images.Rect {
	sx, sy := r.ScaleX, r.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	px := float32(r.PadLeft)
	py := float32(r.PadTop)
	out := images.Rect{
		X1: (box.X1 - px) / sx,
		Y1: (box.Y1 - py) / sy,
		X2: (box.X2 - px) / sx,
		Y2: (box.Y2 - py) / sy,
	}
	return out.Clip(float32(r.OriginalWidth), float32(r.OriginalHeight))
}

// Preprocessor handles image preprocessing for ONNX models.
type Preprocessor struct {
	config ModelConfig
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//
// Returns:
//   - A configured Preprocessor instance.
func NewPreprocessor(config ModelConfig) *Preprocessor {
	if config.LetterboxColor == nil {
		config.LetterboxColor = color.Black
	}
	if config.InputChannels == 0 {
		config.InputChannels = 3
	}
	if config.ColorMode == ColorModeGrayscale {
		config.InputChannels = 1
	}

	return &Preprocessor{config: config}
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() ModelConfig {
	return p.config
}

// Preprocess performs all necessary preprocessing steps on the input image.
//
// Arguments:
//   - img: The decoded input image.
//
// Returns:
//   - *Result containing the tensor and the transform applied.
//   - error if the image is empty.
func (p *Preprocessor) Preprocess(img image.Image) (*Result, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	originalWidth := img.Bounds().Dx()
	originalHeight := img.Bounds().Dy()
	if originalWidth <= 0 || originalHeight <= 0 {
		return nil, errors.Errorf("invalid image dimensions: %dx%d", originalWidth, originalHeight)
	}

	resized, res := p.resizeImage(img)
	res.OriginalWidth = originalWidth
	res.OriginalHeight = originalHeight
	res.InputWidth = resized.Bounds().Dx()
	res.InputHeight = resized.Bounds().Dy()

	res.Data = p.imageToTensor(resized)
	p.normalize(res.Data)

	c := int64(p.config.InputChannels)
	h := int64(res.InputHeight)
	w := int64(res.InputWidth)
	if p.config.ChannelOrder == ChannelOrderCHW {
		res.Shape = []int64{c, h, w}
	} else {
		res.Shape = []int64{h, w, c}
	}
	if p.config.BatchDim {
		res.Shape = append([]int64{1}, res.Shape...)
	}

	return res, nil
}

// resizeImage resizes the image to the model's input dimensions.
func (p *Preprocessor) resizeImage(img image.Image) (image.Image, *Result) {
	srcWidth := img.Bounds().Dx()
	srcHeight := img.Bounds().Dy()
	width := p.config.InputWidth
	height := p.config.InputHeight

	if width <= 0 || height <= 0 || (width == srcWidth && height == srcHeight) {
		return img, &Result{ScaleX: 1, ScaleY: 1}
	}

	if !p.config.KeepAspectRatio {
		// Simple resize without maintaining aspect ratio.
		resized := resize.Resize(uint(width), uint(height), img, resize.Bilinear)
		return resized, &Result{
			ScaleX: float32(width) / float32(srcWidth),
			ScaleY: float32(height) / float32(srcHeight),
		}
	}

	canvas, lb := images.LetterboxImage(img, width, height, p.config.LetterboxColor)
	return canvas, &Result{ScaleX: lb.Scale, ScaleY: lb.Scale, PadLeft: lb.PadLeft, PadTop: lb.PadTop}
}

// imageToTensor converts an image to a float32 tensor with values in 0-255.
func (p *Preprocessor) imageToTensor(img image.Image) []float32 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	plane := width * height

	tensor := make([]float32, plane*p.config.InputChannels)

	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			// Convert from uint32 to uint8.
			r8 := float32(uint8(r >> 8))
			g8 := float32(uint8(g >> 8))
			b8 := float32(uint8(b >> 8))

			if p.config.InputChannels == 1 {
				tensor[y*width+x] = 0.299*r8 + 0.587*g8 + 0.114*b8
				continue
			}

			ch0, ch1, ch2 := r8, g8, b8
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch2 = b8, r8
			}

			if p.config.ChannelOrder == ChannelOrderCHW {
				tensor[y*width+x] = ch0
				tensor[plane+y*width+x] = ch1
				tensor[2*plane+y*width+x] = ch2
			} else {
				tensor[idx] = ch0
				tensor[idx+1] = ch1
				tensor[idx+2] = ch2
				idx += 3
			}
		}
	}

	return tensor
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(tensor []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range tensor {
			tensor[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range tensor {
			tensor[i] = (tensor[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		channels := p.config.InputChannels
		if len(p.config.MeanValues) != channels || len(p.config.StdValues) != channels {
			// Fallback to zero-to-one if mean/std not properly configured.
			for i := range tensor {
				tensor[i] /= 255.0
			}
			return
		}

		pixelsPerChannel := len(tensor) / channels
		for c := 0; c < channels; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]

			if p.config.ChannelOrder == ChannelOrderCHW {
				offset := c * pixelsPerChannel
				for i := 0; i < pixelsPerChannel; i++ {
					tensor[offset+i] = (tensor[offset+i] - mean) / std
				}
			} else {
				for i := c; i < len(tensor); i += channels {
					tensor[i] = (tensor[i] - mean) / std
				}
			}
		}
	}
}

// GetFasterRCNNConfig returns the configuration of a torchvision Faster R-CNN export: the
// image at its own size, RGB scaled to [0, 1], no batch dimension.
func GetFasterRCNNConfig() ModelConfig {
	return ModelConfig{
		Name:              "fasterrcnn",
		InputChannels:     3,
		NormalizationType: NormalizeZeroToOne,
		ChannelOrder:      ChannelOrderCHW,
		ColorMode:         ColorModeRGB,
	}
}

// GetYOLOv4Config returns a standard configuration for YOLOv4 models.
//
// Arguments:
//   - inputSize: The input size (typically 416, 512, or 608).
//
// Returns:
//   - A configured ModelConfig for YOLOv4.
func GetYOLOv4Config(inputSize int) ModelConfig {
	return ModelConfig{
		Name:              "yolov4",
		InputWidth:        inputSize,
		InputHeight:       inputSize,
		InputChannels:     3,
		NormalizationType: NormalizeZeroToOne,
		ChannelOrder:      ChannelOrderHWC,
		ColorMode:         ColorModeRGB,
		KeepAspectRatio:   true,
		LetterboxColor:    color.RGBA{114, 114, 114, 255},
		BatchDim:          true,
	}
}

// GetRFDETRConfig returns a standard configuration for RF-DETR models: a stretched square
// input with ImageNet standardization.
func GetRFDETRConfig(inputSize int) ModelConfig {
	return ModelConfig{
		Name:              "rfdetr",
		InputWidth:        inputSize,
		InputHeight:       inputSize,
		InputChannels:     3,
		NormalizationType: NormalizeStandardize,
		MeanValues:        []float32{123.675, 116.28, 103.53},
		StdValues:         []float32{58.395, 57.12, 57.375},
		ChannelOrder:      ChannelOrderCHW,
		ColorMode:         ColorModeRGB,
		BatchDim:          true,
	}
}

// BatchPreprocess processes multiple images in parallel.
//
// Arguments:
//   - imgs: Slice of images to preprocess.
//   - maxConcurrency: Maximum number of images to process concurrently.
//
// Returns:
//   - Slice of preprocessing results, aligned with imgs.
//   - error if any preprocessing fails.
func (p *Preprocessor) BatchPreprocess(imgs []image.Image, maxConcurrency int) ([]*Result, error) {
	return BatchPreprocessFunc(imgs, maxConcurrency, p.Preprocess)
}

// BatchPreprocessFunc runs fn over every image with at most maxConcurrency calls in flight.
// Results stay aligned with imgs.
func BatchPreprocessFunc(
	imgs []image.Image,
	maxConcurrency int,
	fn func(image.Image) (*Result, error),
) ([]*Result, error) {
	results := make([]*Result, len(imgs))

	var g errgroup.Group
	g.SetLimit(max(maxConcurrency, 1))
	for i, img := range imgs {
		g.Go(func() error {
			res, err := fn(img)
			if err != nil {
				return errors.Wrapf(err, "failed to preprocess image %d", i)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
