// Package providers - Execution providers for onnxruntime sessions.
package providers

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers
type ProviderBackend string

// Backends lists every device accepted by ParseDevice.
var Backends = []ProviderBackend{
	CPUProviderBackend,
	CUDAProviderBackend,
	CoreMLProviderBackend,
	OpenVINOProviderBackend,
}

// Config selects the execution provider of a session and its threading.
type Config struct {
	// Backend specifies the backend to use
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// IntraOpThreads is the number of threads used inside an operator. Zero lets onnxruntime decide.
	IntraOpThreads int `json:"intraOpThreads" yaml:"intraOpThreads"`
	// InterOpThreads is the number of threads running independent operators. Zero lets onnxruntime
	// decide.
	InterOpThreads int `json:"interOpThreads" yaml:"interOpThreads"`

	CUDA     CUDAOptions     `json:"cuda"     yaml:"cuda"`
	CoreML   CoreMLOptions   `json:"coreml"   yaml:"coreml"`
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// ParseDevice turns a device string into a provider configuration.
//
// Accepted forms are "cpu", "cuda", "cuda:N", "coreml", "openvino" and "openvino:TYPE" where TYPE
// is an OpenVINO device type such as CPU or GPU. Matching ignores case.
//
// Arguments:
//   - device: The device string.
//
// Returns:
//   - Config: The provider configuration.
//   - error: When the device is unknown or its index is malformed.
func ParseDevice(device string) (Config, error) {
	name, arg, hasArg := strings.Cut(strings.TrimSpace(device), ":")
	backend := ProviderBackend(strings.ToLower(name))
	if backend == "" {
		backend = CPUProviderBackend
	}

	switch backend {
	case CPUProviderBackend, CoreMLProviderBackend:
		if hasArg {
			return Config{}, errors.Errorf("device %q takes no index", device)
		}
		return Config{Backend: backend}, nil
	case CUDAProviderBackend:
		cfg := Config{Backend: backend}
		if hasArg {
			id, err := strconv.Atoi(arg)
			if err != nil || id < 0 {
				return Config{}, errors.Errorf("invalid cuda device index in %q", device)
			}
			cfg.CUDA.DeviceID = id
		}
		return cfg, nil
	case OpenVINOProviderBackend:
		cfg := Config{Backend: backend, OpenVINO: OpenVINOOptions{DeviceType: "CPU"}}
		if hasArg {
			if arg == "" {
				return Config{}, errors.Errorf("missing openvino device type in %q", device)
			}
			cfg.OpenVINO.DeviceType = strings.ToUpper(arg)
		}
		return cfg, nil
	default:
		return Config{}, errors.Errorf("unsupported device %q, expected one of %v", device, Backends)
	}
}

// String renders the configuration back into device form.
func (c Config) String() string {
	switch c.Backend {
	case CUDAProviderBackend:
		return string(c.Backend) + ":" + strconv.Itoa(c.CUDA.DeviceID)
	case OpenVINOProviderBackend:
		return string(c.Backend) + ":" + c.OpenVINO.DeviceType
	case "":
		return string(CPUProviderBackend)
	default:
		return string(c.Backend)
	}
}

// NewSessionOptions builds onnxruntime session options for the configuration.
//
// The caller owns the returned options and must Destroy them.
//
// Returns:
//   - *ort.SessionOptions: Options with threading, graph optimization and the execution provider set.
//   - error: When the options cannot be created or the provider cannot be enabled.
func (c Config) NewSessionOptions() (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := c.apply(options); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func (c Config) apply(options *ort.SessionOptions) error {
	if err := options.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
		return errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(c.InterOpThreads); err != nil {
		return errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}

	switch c.Backend {
	case CPUProviderBackend, "":
		return nil
	case CUDAProviderBackend:
		cuda, err := c.CUDA.ToNativeProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error converting CUDA options")
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(c.CoreML.Flags()); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(c.OpenVINO.ToNativeProviderOptions()); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	default:
		return errors.Errorf("unsupported provider backend: %s", c.Backend)
	}
	return nil
}
