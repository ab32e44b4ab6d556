package inference

import (
	"context"
	"image"
	"runtime"

	"github.com/nvr-ai/go-eval/common"
	"github.com/nvr-ai/go-eval/inference/providers"
	"github.com/nvr-ai/go-eval/models"
	"github.com/nvr-ai/go-eval/models/model"
	"github.com/nvr-ai/go-eval/models/model/preprocess"
	"github.com/nvr-ai/go-eval/models/postprocess"
	"github.com/nvr-ai/go-eval/profiler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Engine defines the interface for ML inference engines
type Engine interface {
	// Predict returns one prediction set per image, in dataset labels and image pixels.
	Predict(ctx context.Context, imgs []image.Image) ([]common.DetectionSet, error)
	Close() error
}

// EngineBuilder assembles an engine with a fluent API.
//
// The first failing step is remembered and returned by Build.
type EngineBuilder struct {
	provider       providers.Config
	libPath        string
	model          model.Model
	mapper         *models.LabelMapper
	runner         Runner
	profiler       *profiler.Profiler
	logger         *zap.SugaredLogger
	preprocWorkers int
	warmup         int
	err            error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		provider:       providers.Config{Backend: providers.CPUProviderBackend},
		logger:         zap.NewNop().Sugar(),
		preprocWorkers: runtime.GOMAXPROCS(0),
	}
}

// WithProvider sets the execution provider for the engine.
//
// Arguments:
//   - cfg: The provider configuration.
//   - libPath: The onnxruntime shared library; empty resolves it with providers.GetSharedLibPath.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(cfg providers.Config, libPath string) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.provider = cfg
	b.libPath = libPath
	return b
}

// WithModel sets the model for the engine.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args model.NewModelArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}
	m, err := models.NewModel(args)
	if err != nil {
		b.err = err
		return b
	}
	b.model = m
	return b
}

// WithLabels maps model classes into the dataset label space.
//
// Arguments:
//   - datasetClasses: The dataset label space, indexed by label.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithLabels(datasetClasses []string) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if b.model == nil {
		b.err = errors.New("model must be set before labels")
		return b
	}
	mapper, err := models.NewLabelMapper(b.model.Options().Family, datasetClasses)
	if err != nil {
		b.err = err
		return b
	}
	b.mapper = mapper
	return b
}

// WithRunner replaces the onnxruntime session, e.g. with a remote or fake runner.
func (b *EngineBuilder) WithRunner(r Runner) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.runner = r
	return b
}

// WithProfiler records preprocess, inference and postprocess times.
func (b *EngineBuilder) WithProfiler(p *profiler.Profiler) *EngineBuilder {
	b.profiler = p
	return b
}

// WithLogger sets the logger.
func (b *EngineBuilder) WithLogger(logger *zap.SugaredLogger) *EngineBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithWarmup runs the model on a blank image n times before Build returns.
func (b *EngineBuilder) WithWarmup(n int) *EngineBuilder {
	b.warmup = n
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Build builds the engine.
//
// Without a runner, Build loads the onnxruntime library and opens a session on the model path.
//
// Returns:
//   - Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.model == nil {
		return nil, errors.New("model not configured")
	}

	runner := b.runner
	if runner == nil {
		libPath, err := providers.GetSharedLibPath(b.libPath)
		if err != nil {
			return nil, err
		}
		if err := providers.InitializeRuntime(libPath); err != nil {
			return nil, err
		}
		opts := b.model.Options()
		session, err := NewSession(NewSessionArgs{
			ModelPath: opts.Path,
			Inputs:    opts.Inputs,
			Outputs:   opts.Outputs,
			Provider:  b.provider,
		})
		if err != nil {
			return nil, err
		}
		runner = session
		b.logger.Infow("session ready", "model", opts.Name, "path", opts.Path, "device", b.provider.String())
	}

	if b.mapper != nil {
		family := b.model.Options().Family
		if mapped := b.mapper.Mapped(); mapped == 0 {
			b.logger.Warnw("no model class maps to a dataset class", "family", family)
		} else if mapped > 0 {
			b.logger.Infow("label mapping", "family", family, "mapped", mapped)
		}
	}

	e := &engine{
		model:    b.model,
		runner:   runner,
		mapper:   b.mapper,
		profiler: b.profiler,
		workers:  max(b.preprocWorkers, 1),
	}
	if err := e.warmUp(b.warmup); err != nil {
		runner.Close()
		return nil, err
	}
	return e, nil
}

// engine implements the Engine interface.
type engine struct {
	model    model.Model
	runner   Runner
	mapper   *models.LabelMapper
	profiler *profiler.Profiler
	workers  int
}

// Predict predicts the output of the model.
//
// Arguments:
//   - ctx: The context for the prediction.
//   - imgs: The images to predict.
//
// Returns:
//   - []common.DetectionSet: One prediction set per image, aligned with imgs.
//   - error: The error if any.
func (e *engine) Predict(ctx context.Context, imgs []image.Image) ([]common.DetectionSet, error) {
	done := e.profiler.StartOperation(profiler.OperationPreprocess)
	inputs, err := preprocess.BatchPreprocessFunc(imgs, e.workers, e.model.PreProcess)
	done()
	if err != nil {
		return nil, err
	}

	var label func(int) int
	if e.mapper != nil {
		label = e.mapper.Map
	}

	sets := make([]common.DetectionSet, len(inputs))
	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		done = e.profiler.StartOperation(profiler.OperationInference)
		outputs, err := e.runner.Run(input)
		done()
		if err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}

		done = e.profiler.StartOperation(profiler.OperationPostprocess)
		results, err := e.model.PostProcess(outputs, input)
		done()
		if err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}
		sets[i] = postprocess.ToDetectionSet(results, label)
	}
	return sets, nil
}

// Close releases the runner.
func (e *engine) Close() error {
	return e.runner.Close()
}

func (e *engine) warmUp(runs int) error {
	if runs <= 0 {
		return nil
	}
	size := max(e.model.Options().InputSize, 32)
	blank := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < runs; i++ {
		input, err := e.model.PreProcess(blank)
		if err != nil {
			return errors.Wrap(err, "warmup")
		}
		if _, err := e.runner.Run(input); err != nil {
			return errors.Wrap(err, "warmup")
		}
	}
	return nil
}
