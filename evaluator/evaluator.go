// Package evaluator runs a detector over a dataset and scores it.
package evaluator

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/nvr-ai/go-eval/common"
	"github.com/nvr-ai/go-eval/dataset"
	"github.com/nvr-ai/go-eval/metrics"
	"github.com/nvr-ai/go-eval/profiler"
	"github.com/nvr-ai/go-eval/visualize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// DefaultLogEvery is how many batches pass between progress log lines.
const DefaultLogEvery = 100

// Detector predicts boxes for a batch of images.
type Detector interface {
	// Predict returns one prediction set per image, aligned with imgs, in the images' pixel space.
	Predict(ctx context.Context, imgs []image.Image) ([]common.DetectionSet, error)
}

// Options configures an evaluation run.
type Options struct {
	Match  metrics.MatchOptions
	MeanAP metrics.MeanAPOptions
	// LogEvery is how many batches pass between progress log lines. Zero means DefaultLogEvery.
	LogEvery int
	// Progress receives the progress bar. Nil hides it.
	Progress io.Writer
	// Visualizer draws match overlays when set.
	Visualizer *visualize.Visualizer
}

// DefaultOptions returns the options of a standard run.
func DefaultOptions() Options {
	return Options{
		Match:    metrics.DefaultMatchOptions(),
		MeanAP:   metrics.DefaultMeanAPOptions(),
		LogEvery: DefaultLogEvery,
	}
}

// Evaluator drives the loader, the detector and the metrics.
type Evaluator struct {
	detector Detector
	loader   *dataset.Loader
	opts     Options
	logger   *zap.SugaredLogger
	profiler *profiler.Profiler
}

// New creates an evaluator.
//
// Arguments:
//   - detector: The model under evaluation.
//   - loader: The batched dataset.
//   - opts: Matching, mAP and reporting options.
//   - logger: Progress logger; nil discards.
//   - prof: Records batch load and mAP evaluate times; nil disables.
//
// Returns:
//   - *Evaluator: The evaluator.
//   - error: When a required argument is missing.
func New(detector Detector, loader *dataset.Loader, opts Options, logger *zap.SugaredLogger, prof *profiler.Profiler) (*Evaluator, error) {
	if detector == nil {
		return nil, errors.New("detector is required")
	}
	if loader == nil {
		return nil, errors.New("loader is required")
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = DefaultLogEvery
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Evaluator{
		detector: detector,
		loader:   loader,
		opts:     opts,
		logger:   logger,
		profiler: prof,
	}, nil
}

// Run evaluates every batch and returns the summary.
//
// Each image is matched greedily into the TP/FP/FN tally and fed to the COCO mAP metric. Images
// without predictions still count their ground truth as false negatives.
//
// Arguments:
//   - ctx: Cancels the run.
//
// Returns:
//   - metrics.Summary: mAP, mAR and the tally based precision and recall.
//   - error: The first loading, prediction or matching error.
func (e *Evaluator) Run(ctx context.Context) (metrics.Summary, error) {
	meanAP, err := metrics.NewMeanAveragePrecision(e.opts.MeanAP)
	if err != nil {
		return metrics.Summary{}, err
	}
	tally := &metrics.Tally{}

	total := e.loader.NumBatches()
	bar := e.newProgressBar(total)
	start := time.Now()

	err = e.loader.Run(ctx, func(batch dataset.Batch) error {
		e.profiler.Record(profiler.OperationLoad, batch.LoadTime)
		if err := e.evaluateBatch(ctx, batch, meanAP, tally); err != nil {
			return errors.Wrapf(err, "batch %d", batch.Index)
		}
		_ = bar.Add(1)

		if done := batch.Index + 1; done%e.opts.LogEvery == 0 {
			c := tally.Counts()
			e.logger.Infow("progress",
				"batch", done,
				"of", total,
				"images", tally.Images(),
				"tp", c.TP, "fp", c.FP, "fn", c.FN,
				"elapsed", time.Since(start).Truncate(time.Second),
			)
		}
		return nil
	})
	_ = bar.Finish()
	if err != nil {
		return metrics.Summary{}, err
	}

	done := e.profiler.StartOperation(profiler.OperationEvaluate)
	summary, err := meanAP.Compute(ctx)
	done()
	if err != nil {
		return metrics.Summary{}, err
	}

	c := tally.Counts()
	e.logger.Infow("evaluation done",
		"images", tally.Images(),
		"tp", c.TP, "fp", c.FP, "fn", c.FN,
		"elapsed", time.Since(start).Truncate(time.Millisecond),
	)
	return summary.WithTally(tally), nil
}

func (e *Evaluator) evaluateBatch(ctx context.Context, batch dataset.Batch, meanAP *metrics.MeanAveragePrecision, tally *metrics.Tally) error {
	imgs := make([]image.Image, len(batch.Samples))
	targets := make([]common.DetectionSet, len(batch.Samples))
	for i, s := range batch.Samples {
		imgs[i] = s.Image
		targets[i] = s.Target
	}

	preds, err := e.detector.Predict(ctx, imgs)
	if err != nil {
		return err
	}
	if len(preds) != len(imgs) {
		return errors.Errorf("detector returned %d prediction sets for %d images", len(preds), len(imgs))
	}

	for i, s := range batch.Samples {
		counts, err := metrics.Match(preds[i], targets[i], e.opts.Match)
		if err != nil {
			return errors.Wrap(err, s.Path)
		}
		tally.Add(counts)

		if e.opts.Visualizer != nil {
			if err := e.opts.Visualizer.Draw(s.Path, s.Image, preds[i], targets[i]); err != nil {
				e.logger.Warnw("overlay failed", "image", s.Path, "error", err)
			}
		}
	}
	return meanAP.Update(preds, targets)
}

func (e *Evaluator) newProgressBar(total int) *progressbar.ProgressBar {
	w := e.opts.Progress
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("evaluating"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
	)
}
