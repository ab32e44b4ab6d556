package rfdetr

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-eval/images"
	"github.com/nvr-ai/go-eval/models/model"
	"github.com/nvr-ai/go-eval/models/model/preprocess"
	"github.com/nvr-ai/go-eval/models/postprocess"
	"github.com/pkg/errors"
)

const rowSize = 6

// PostProcess postprocesses the output of the RF-DETR model.
//
// Two layouts are understood. A single output of rows [x1, y1, x2, y2, score, class] in input
// pixels, or the native pair of normalized cx, cy, w, h query boxes with per-class logits.
//
// Arguments:
//   - outputs: The outputs of the RF-DETR model for one image.
//   - input: The preprocessing result of that image.
//
// Returns:
//   - A slice of postprocessed results in image pixels.
//   - error when the outputs are missing or malformed.
func (m *RFDETR) PostProcess(outputs []model.Output, input *preprocess.Result) ([]postprocess.Result, error) {
	var (
		results []postprocess.Result
		err     error
	)
	if len(m.options.Outputs) == 1 {
		results, err = m.decodeRows(outputs)
	} else {
		results, err = m.decodeQueries(outputs, input)
	}
	if err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Box = input.Unmap(results[i].Box)
	}
	results = postprocess.FilterByConfidence(results, m.options.ConfidenceThreshold)
	return postprocess.ApplyGreedyNMS(results, m.options.NMS), nil
}

func (m *RFDETR) decodeRows(outputs []model.Output) ([]postprocess.Result, error) {
	out, err := model.FindOutput(outputs, m.options.Outputs[0])
	if err != nil {
		return nil, err
	}
	output := out.Floats()
	if len(output)%rowSize != 0 {
		return nil, errors.Errorf("rfdetr output of %d values is not a multiple of %d", len(output), rowSize)
	}

	numRows := len(output) / rowSize
	results := make([]postprocess.Result, 0, numRows)

	for i := 0; i < numRows; i++ {
		offset := i * rowSize
		results = append(results, postprocess.Result{
			Box: images.Rect{
				X1: output[offset+0],
				Y1: output[offset+1],
				X2: output[offset+2],
				Y2: output[offset+3],
			},
			Score: output[offset+4],
			Class: int(output[offset+5]),
		})
	}
	return results, nil
}

func (m *RFDETR) decodeQueries(outputs []model.Output, input *preprocess.Result) ([]postprocess.Result, error) {
	dets, err := model.FindOutput(outputs, m.options.Outputs[0])
	if err != nil {
		return nil, err
	}
	logits, err := model.FindOutput(outputs, m.options.Outputs[1])
	if err != nil {
		return nil, err
	}

	boxes := dets.Floats()
	scores := logits.Floats()
	if len(boxes)%4 != 0 {
		return nil, errors.Errorf("rfdetr boxes of %d values are not a multiple of 4", len(boxes))
	}
	numQueries := len(boxes) / 4
	if numQueries == 0 {
		return nil, nil
	}
	if len(scores)%numQueries != 0 {
		return nil, errors.Errorf("rfdetr logits of %d values do not split over %d queries", len(scores), numQueries)
	}
	numClasses := len(scores) / numQueries

	w := float32(input.InputWidth)
	h := float32(input.InputHeight)
	results := make([]postprocess.Result, 0, numQueries)
	for q := 0; q < numQueries; q++ {
		row := scores[q*numClasses : (q+1)*numClasses]
		best := 0
		for c := 1; c < numClasses; c++ {
			if row[c] > row[best] {
				best = c
			}
		}

		cx, cy, bw, bh := boxes[q*4], boxes[q*4+1], boxes[q*4+2], boxes[q*4+3]
		results = append(results, postprocess.Result{
			Box: images.Rect{
				X1: (cx - bw/2) * w,
				Y1: (cy - bh/2) * h,
				X2: (cx + bw/2) * w,
				Y2: (cy + bh/2) * h,
			},
			Score: sigmoid(row[best]),
			Class: best,
		})
	}
	return results, nil
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}
