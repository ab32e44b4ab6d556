package inference

import (
	"testing"

	"github.com/nvr-ai/go-eval/inference/providers"
	"github.com/stretchr/testify/assert"
)

func providersCPU() providers.Config {
	return providers.Config{Backend: providers.CPUProviderBackend}
}

func TestNewSessionArgs(t *testing.T) {
	_, err := NewSession(NewSessionArgs{Inputs: []string{"images"}, Outputs: []string{"boxes"}})
	assert.Error(t, err, "model path is required")

	_, err = NewSession(NewSessionArgs{ModelPath: "m.onnx", Outputs: []string{"boxes"}})
	assert.Error(t, err)

	_, err = NewSession(NewSessionArgs{ModelPath: "m.onnx", Inputs: []string{"images"}})
	assert.Error(t, err)
}

func TestCopyOutputNil(t *testing.T) {
	_, err := copyOutput("boxes", nil)
	assert.Error(t, err)
}

func TestClosedSession(t *testing.T) {
	s := &Session{}
	assert.NoError(t, s.Close())
	_, err := s.Run(nil)
	assert.Error(t, err)
}
