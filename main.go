// Command go-eval scores an ONNX object detector on a Pascal VOC style dataset.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-eval/dataset"
	"github.com/nvr-ai/go-eval/evaluator"
	"github.com/nvr-ai/go-eval/inference"
	"github.com/nvr-ai/go-eval/inference/providers"
	"github.com/nvr-ai/go-eval/logging"
	"github.com/nvr-ai/go-eval/metrics"
	"github.com/nvr-ai/go-eval/models/model"
	"github.com/nvr-ai/go-eval/models/postprocess"
	"github.com/nvr-ai/go-eval/profiler"
	"github.com/nvr-ai/go-eval/visualize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

const (
	flagData           = "data"
	flagModel          = "model"
	flagWeights        = "weights"
	flagImageSize      = "imgsz"
	flagWorkers        = "workers"
	flagBatch          = "batch"
	flagDevice         = "device"
	flagVerbose        = "verbose"
	flagSquare         = "square-training"
	flagIoUThreshold   = "iou-threshold"
	flagSortByScore    = "sort-by-score"
	flagConfThreshold  = "conf-threshold"
	flagNMSThreshold   = "nms-threshold"
	flagModelFamily    = "model-family"
	flagModelInputSize = "model-input-size"
	flagCOCOLabels     = "coco-labels"
	flagOutDir         = "out-dir"
	flagOutputJSON     = "output-json"
	flagONNXRuntimeLib = "onnxruntime-lib"
	flagWarmup         = "warmup"
	flagLogLevel       = "log-level"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:            "go-eval",
		Usage:           "compute mAP, precision and recall of an ONNX detector",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagData,
				Value: "data_configs/test_image_config.yaml",
				Usage: "path to the data config file",
			},
			&cli.StringFlag{
				Name:    flagModel,
				Aliases: []string{"m"},
				Value:   string(model.ModelNameFasterRCNN),
				Usage:   fmt.Sprintf("model decoder, one of %v", model.Names),
			},
			&cli.StringFlag{
				Name:     flagWeights,
				Aliases:  []string{"mw"},
				Required: true,
				Usage:    "path to the ONNX model",
			},
			&cli.IntFlag{
				Name:    flagImageSize,
				Aliases: []string{"ims"},
				Value:   640,
				Usage:   "resize dataset images to this size, 0 keeps them as they are",
			},
			&cli.IntFlag{
				Name:    flagWorkers,
				Aliases: []string{"w"},
				Value:   4,
				Usage:   "number of concurrent image decodes",
			},
			&cli.IntFlag{
				Name:    flagBatch,
				Aliases: []string{"b"},
				Value:   8,
				Usage:   "batch size",
			},
			&cli.StringFlag{
				Name:    flagDevice,
				Aliases: []string{"d"},
				Value:   string(providers.CPUProviderBackend),
				Usage:   "execution provider: cpu, cuda[:N], coreml or openvino[:TYPE]",
			},
			&cli.BoolFlag{
				Name:    flagVerbose,
				Aliases: []string{"v"},
				Usage:   "show class-wise mAP and mAR",
			},
			&cli.BoolFlag{
				Name:    flagSquare,
				Aliases: []string{"st"},
				Usage:   "resize images to imgsz x imgsz instead of keeping the aspect ratio",
			},
			&cli.Float64Flag{
				Name:  flagIoUThreshold,
				Value: float64(metrics.DefaultIoUThreshold),
				Usage: "IoU a prediction needs to claim a ground truth box",
			},
			&cli.BoolFlag{
				Name:  flagSortByScore,
				Usage: "match predictions by descending score instead of model order",
			},
			&cli.Float64Flag{
				Name:  flagConfThreshold,
				Value: 0.001,
				Usage: "drop detections scoring below this",
			},
			&cli.Float64Flag{
				Name:  flagNMSThreshold,
				Value: 0,
				Usage: "class-aware NMS IoU threshold, 0 keeps the model default",
			},
			&cli.StringFlag{
				Name:  flagModelFamily,
				Value: "",
				Usage: "class family of the model outputs (coco, yolo, tf, voc, custom); empty uses the model default",
			},
			&cli.IntFlag{
				Name:  flagModelInputSize,
				Value: 0,
				Usage: "model input size in pixels, 0 uses the model default",
			},
			&cli.BoolFlag{
				Name:  flagCOCOLabels,
				Usage: "use COCO_91_CLASSES from the data config as the label space",
			},
			&cli.StringFlag{
				Name:  flagOutDir,
				Usage: "write TP/FP/FN overlays into this directory",
			},
			&cli.StringFlag{
				Name:  flagOutputJSON,
				Usage: "write the summary as JSON to this file",
			},
			&cli.StringFlag{
				Name:    flagONNXRuntimeLib,
				EnvVars: []string{providers.SharedLibraryEnv},
				Usage:   "path to the onnxruntime shared library",
			},
			&cli.IntFlag{
				Name:  flagWarmup,
				Value: 0,
				Usage: "inference runs on a blank image before evaluating",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "log level: debug, info, warn or error",
			},
		},
		Action: run,
	}
}

// options holds the validated command line.
type options struct {
	dataPath   string
	model      model.NewModelArgs
	provider   providers.Config
	libPath    string
	warmup     int
	imageSize  int
	square     bool
	workers    int
	batch      int
	match      metrics.MatchOptions
	verbose    bool
	cocoLabels bool
	outDir     string
	outputJSON string
	logLevel   string
}

func optionsFromContext(c *cli.Context) (options, error) {
	provider, err := providers.ParseDevice(c.String(flagDevice))
	if err != nil {
		return options{}, err
	}

	iou := c.Float64(flagIoUThreshold)
	if iou <= 0 || iou > 1 {
		return options{}, errors.Errorf("--%s must be in (0, 1], got %v", flagIoUThreshold, iou)
	}
	if c.Int(flagBatch) <= 0 {
		return options{}, errors.Errorf("--%s must be positive", flagBatch)
	}
	if c.Int(flagImageSize) < 0 || c.Int(flagModelInputSize) < 0 {
		return options{}, errors.Errorf("image sizes cannot be negative")
	}

	args := model.NewModelArgs{
		Name:                model.Name(c.String(flagModel)),
		Path:                c.String(flagWeights),
		Family:              model.Family(c.String(flagModelFamily)),
		InputSize:           c.Int(flagModelInputSize),
		ConfidenceThreshold: float32(c.Float64(flagConfThreshold)),
	}
	if nms := c.Float64(flagNMSThreshold); nms > 0 {
		args.NMS = &postprocess.NMSConfig{IoUThreshold: float32(nms), ClassAware: true}
	}

	return options{
		dataPath:   c.String(flagData),
		model:      args,
		provider:   provider,
		libPath:    c.String(flagONNXRuntimeLib),
		warmup:     c.Int(flagWarmup),
		imageSize:  c.Int(flagImageSize),
		square:     c.Bool(flagSquare),
		workers:    c.Int(flagWorkers),
		batch:      c.Int(flagBatch),
		match:      metrics.MatchOptions{IoUThreshold: float32(iou), SortByScore: c.Bool(flagSortByScore)},
		verbose:    c.Bool(flagVerbose),
		cocoLabels: c.Bool(flagCOCOLabels),
		outDir:     c.String(flagOutDir),
		outputJSON: c.String(flagOutputJSON),
		logLevel:   c.String(flagLogLevel),
	}, nil
}

func run(c *cli.Context) error {
	opts, err := optionsFromContext(c)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger("eval", opts.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := dataset.LoadConfig(opts.dataPath)
	if err != nil {
		return err
	}
	imagesDir, labelsDir, err := cfg.EvalDirs()
	if err != nil {
		return err
	}
	classes, err := cfg.LabelSpace(opts.cocoLabels)
	if err != nil {
		return err
	}

	ds, err := dataset.New(imagesDir, labelsDir, dataset.Options{
		ImageSize: opts.imageSize,
		Square:    opts.square,
		Classes:   classes,
	})
	if err != nil {
		return err
	}
	loader, err := dataset.NewLoader(ds, opts.batch, opts.workers)
	if err != nil {
		return err
	}
	logger.Infow("dataset",
		"images", ds.Len(),
		"classes", len(classes),
		"dir", imagesDir,
		"batches", loader.NumBatches(),
	)

	prof := profiler.NewProfiler(0)
	engine, err := inference.NewEngineBuilder().
		WithLogger(logger).
		WithProvider(opts.provider, opts.libPath).
		WithModel(opts.model).
		WithLabels(classes).
		WithProfiler(prof).
		WithWarmup(opts.warmup).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()
	defer providers.ShutdownRuntime() //nolint:errcheck

	evalOpts := evaluator.DefaultOptions()
	evalOpts.Match = opts.match
	evalOpts.MeanAP.ClassMetrics = opts.verbose
	evalOpts.Progress = os.Stderr
	if opts.outDir != "" {
		vis, err := visualize.New(opts.outDir, classes, opts.match)
		if err != nil {
			return err
		}
		evalOpts.Visualizer = vis
	}

	eval, err := evaluator.New(engine, loader, evalOpts, logger, prof)
	if err != nil {
		return err
	}
	summary, err := eval.Run(ctx)
	if err != nil {
		return err
	}
	prof.LogSummary(logger)

	if err := metrics.WriteReport(c.App.Writer, summary, classes, opts.verbose); err != nil {
		return err
	}
	if opts.outputJSON != "" {
		if err := metrics.WriteJSON(opts.outputJSON, summary); err != nil {
			return err
		}
		logger.Infow("summary written", "path", opts.outputJSON)
	}
	return nil
}
