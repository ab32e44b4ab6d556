package yolov4

import (
	"github.com/nvr-ai/go-eval/images"
	"github.com/nvr-ai/go-eval/models/model"
	"github.com/nvr-ai/go-eval/models/model/preprocess"
	"github.com/nvr-ai/go-eval/models/postprocess"
	"github.com/pkg/errors"
)

const numCols = 85

// PostProcess postprocesses the output of the YOLOv4 model.
//
// Each row is cx, cy, w, h in input pixels, the objectness and 80 class scores. The score of a
// row is its objectness times its best class score.
//
// Arguments:
//   - outputs: The outputs of the YOLOv4 model for one image.
//   - input: The preprocessing result of that image.
//
// Returns:
//   - A slice of postprocessed results in image pixels, after NMS.
//   - error when the output is missing or malformed.
func (m *YOLOv4) PostProcess(outputs []model.Output, input *preprocess.Result) ([]postprocess.Result, error) {
	out, err := model.FindOutput(outputs, m.options.Outputs[0])
	if err != nil {
		return nil, err
	}
	output := out.Floats()
	if len(output)%numCols != 0 {
		return nil, errors.Errorf("yolov4 output of %d values is not a multiple of %d", len(output), numCols)
	}

	threshold := m.options.ConfidenceThreshold
	numRows := len(output) / numCols
	results := make([]postprocess.Result, 0, numRows)

	for i := 0; i < numRows; i++ {
		offset := i * numCols
		objConf := output[offset+4]
		if objConf < threshold {
			continue
		}

		classID := 0
		maxScore := float32(0)
		for j := 5; j < numCols; j++ {
			score := output[offset+j]
			if score > maxScore {
				maxScore = score
				classID = j - 5
			}
		}

		finalScore := objConf * maxScore
		if finalScore < threshold {
			continue
		}

		w := output[offset+2]
		h := output[offset+3]

		box := images.Rect{
			X1: output[offset+0] - w/2, // cx - w/2
			Y1: output[offset+1] - h/2, // cy - h/2
			X2: output[offset+0] + w/2, // cx + w/2
			Y2: output[offset+1] + h/2, // cy + h/2
		}
		results = append(results, postprocess.Result{
			Box:   input.Unmap(box),
			Score: finalScore,
			Class: classID,
		})
	}

	return postprocess.ApplyGreedyNMS(results, m.options.NMS), nil
}
