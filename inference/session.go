// Package inference - onnxruntime sessions and the detection engine.
package inference

import (
	"sync"

	"github.com/nvr-ai/go-eval/inference/providers"
	"github.com/nvr-ai/go-eval/models/model"
	"github.com/nvr-ai/go-eval/models/model/preprocess"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Runner executes a model on one preprocessed input.
type Runner interface {
	Run(input *preprocess.Result) ([]model.Output, error)
	Close() error
}

// NewSessionArgs represents the arguments for creating a new ONNX session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The input names of the model. Only the first one is fed.
	Inputs []string
	// The output names of the model.
	Outputs []string
	// Provider selects the execution provider.
	Provider providers.Config
}

// Session represents a model session from the onnxruntime.
//
// Output tensors are allocated by onnxruntime on every run, so models whose output shape depends
// on the number of detections work without knowing that shape in advance.
type Session struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	outputs []string
}

// NewSession creates a session. The onnxruntime environment must already be initialized.
//
// Arguments:
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The session.
//   - error: An error if the session creation fails.
func NewSession(args NewSessionArgs) (*Session, error) {
	if args.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if len(args.Inputs) == 0 || len(args.Outputs) == 0 {
		return nil, errors.Errorf("model needs input and output names, got %v and %v", args.Inputs, args.Outputs)
	}

	options, err := args.Provider.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(args.ModelPath, args.Inputs[:1], args.Outputs, options)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating ORT session for %s", args.ModelPath)
	}

	return &Session{session: session, outputs: args.Outputs}, nil
}

// Run feeds one input tensor and copies every output out of the runtime.
//
// Arguments:
//   - input: The preprocessed image.
//
// Returns:
//   - []model.Output: The outputs in the order of the output names.
//   - error: When the run fails or an output has an unsupported element type.
func (s *Session) Run(input *preprocess.Result) ([]model.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.New("session is closed")
	}

	tensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating input tensor of shape %v", input.Shape)
	}
	defer tensor.Destroy()

	values := make([]ort.Value, len(s.outputs))
	if err := s.session.Run([]ort.Value{tensor}, values); err != nil {
		return nil, errors.Wrap(err, "error running ORT session")
	}
	defer func() {
		for _, v := range values {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	outputs := make([]model.Output, len(values))
	for i, v := range values {
		out, err := copyOutput(s.outputs[i], v)
		if err != nil {
			return nil, err
		}
		outputs[i] = out
	}
	return outputs, nil
}

// Close releases the native session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return errors.Wrap(err, "error destroying ORT session")
	}
	return nil
}

func copyOutput(name string, v ort.Value) (model.Output, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		return model.Output{
			Name:    name,
			Shape:   append([]int64(nil), t.GetShape()...),
			Float32: append([]float32(nil), t.GetData()...),
		}, nil
	case *ort.Tensor[int64]:
		return model.Output{
			Name:  name,
			Shape: append([]int64(nil), t.GetShape()...),
			Int64: append([]int64(nil), t.GetData()...),
		}, nil
	case nil:
		return model.Output{}, errors.Errorf("output %q was not produced", name)
	default:
		return model.Output{}, errors.Errorf("output %q has unsupported type %T", name, v)
	}
}
