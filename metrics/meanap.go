package metrics

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/nvr-ai/go-eval/common"
	"github.com/nvr-ai/go-eval/images"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gorgonia.org/tensor"
)

// epsilon matches numpy's spacing(1), used to keep precision finite before any detection.
const epsilon = 2.220446049250313e-16

// MeanAPOptions configures the COCO-style mean average precision computation.
type MeanAPOptions struct {
	// IoUThresholds are the overlaps at which precision is measured.
	IoUThresholds []float64 `json:"iou_thresholds" yaml:"iou_thresholds"`
	// RecThresholds are the recall points at which the precision envelope is sampled.
	RecThresholds []float64 `json:"rec_thresholds" yaml:"rec_thresholds"`
	// MaxDetections are the per-image detection caps, ascending. Exactly three are required and
	// map onto mar_1, mar_10 and mar_100.
	MaxDetections []int `json:"max_detections" yaml:"max_detections"`
	// ClassMetrics enables per-class AP and AR.
	ClassMetrics bool `json:"class_metrics" yaml:"class_metrics"`
}

// DefaultMeanAPOptions returns the COCO evaluation parameters.
func DefaultMeanAPOptions() MeanAPOptions {
	iou := make([]float64, 10)
	for i := range iou {
		iou[i] = math.Round((0.5+0.05*float64(i))*100) / 100
	}
	rec := make([]float64, 101)
	for i := range rec {
		rec[i] = float64(i) / 100
	}
	return MeanAPOptions{
		IoUThresholds: iou,
		RecThresholds: rec,
		MaxDetections: []int{1, 10, 100},
	}
}

type areaRange struct {
	name   string
	lo, hi float64
}

var cocoAreaRanges = []areaRange{
	{"all", 0, 1e10},
	{"small", 0, 32 * 32},
	{"medium", 32 * 32, 96 * 96},
	{"large", 96 * 96, 1e10},
}

func (a areaRange) outside(r images.Rect) bool {
	area := float64(r.Area())
	return area < a.lo || area > a.hi
}

// MeanAveragePrecision accumulates predictions and targets image by image and computes COCO
// mAP and mAR over them. Update may be called concurrently.
type MeanAveragePrecision struct {
	opts MeanAPOptions

	mu      sync.Mutex
	preds   []common.DetectionSet
	targets []common.DetectionSet
}

// NewMeanAveragePrecision creates an aggregator.
//
// Arguments:
//   - opts: The evaluation parameters, usually DefaultMeanAPOptions with ClassMetrics set.
//
// Returns:
//   - *MeanAveragePrecision: The aggregator.
//   - error: When the thresholds or detection caps are unusable.
func NewMeanAveragePrecision(opts MeanAPOptions) (*MeanAveragePrecision, error) {
	if len(opts.IoUThresholds) == 0 || len(opts.RecThresholds) == 0 {
		return nil, errors.New("iou and recall thresholds must not be empty")
	}
	if len(opts.MaxDetections) != 3 {
		return nil, errors.Errorf("expected 3 max detection caps, got %d", len(opts.MaxDetections))
	}
	if !sort.IntsAreSorted(opts.MaxDetections) || opts.MaxDetections[0] <= 0 {
		return nil, errors.Errorf("max detection caps must be positive and ascending: %v", opts.MaxDetections)
	}
	return &MeanAveragePrecision{opts: opts}, nil
}

// Update adds the predictions and targets of a batch of images. preds[i] and targets[i] must
// describe the same image and must not be modified afterwards.
func (m *MeanAveragePrecision) Update(preds, targets []common.DetectionSet) error {
	if len(preds) != len(targets) {
		return errors.Errorf("%d prediction sets but %d target sets", len(preds), len(targets))
	}
	for i := range preds {
		if err := preds[i].Validate(); err != nil {
			return errors.Wrapf(err, "predictions of image %d", i)
		}
		if preds[i].Len() > 0 && !preds[i].HasScores() {
			return errors.Errorf("predictions of image %d have no scores", i)
		}
		if err := targets[i].Validate(); err != nil {
			return errors.Wrapf(err, "targets of image %d", i)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.preds = append(m.preds, preds...)
	m.targets = append(m.targets, targets...)
	return nil
}

// Images returns the number of images accumulated.
func (m *MeanAveragePrecision) Images() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.preds)
}

// imageEval is the matching outcome of one image and class at one area range, at every IoU
// threshold. Detections are sorted by descending score and capped at the largest max det.
type imageEval struct {
	scores   []float64
	matched  [][]bool
	ignored  [][]bool
	gtIgnore []bool
}

// classEval holds precision [area][maxDet][iou][recall] and recall [area][maxDet][iou] of one
// class, -1 where undefined.
type classEval struct {
	precision [][][][]float64
	recall    [][][]float64
}

// Compute evaluates everything accumulated so far.
//
// Classes are evaluated in parallel. Negative labels never form a class of their own.
//
// Arguments:
//   - ctx: Cancels the computation.
//
// Returns:
//   - Summary: The mAP and mAR fields filled in; precision and recall are left for the caller.
//   - error: When ctx is cancelled.
func (m *MeanAveragePrecision) Compute(ctx context.Context) (Summary, error) {
	m.mu.Lock()
	preds := m.preds
	targets := m.targets
	m.mu.Unlock()

	classes := collectClasses(preds, targets)
	evals := make([]classEval, len(classes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for k, class := range classes {
		g.Go(func() error {
			ce, err := m.evaluateClass(gctx, preds, targets, class)
			if err != nil {
				return err
			}
			evals[k] = ce
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, errors.Wrap(err, "mean average precision")
	}

	return m.summarize(classes, evals), nil
}

func collectClasses(sets ...[]common.DetectionSet) []int {
	seen := map[int]struct{}{}
	for _, group := range sets {
		for _, s := range group {
			for _, l := range s.Labels {
				if l >= 0 {
					seen[l] = struct{}{}
				}
			}
		}
	}
	classes := make([]int, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	sort.Ints(classes)
	return classes
}

func (m *MeanAveragePrecision) evaluateClass(ctx context.Context, preds, targets []common.DetectionSet, class int) (classEval, error) {
	maxDet := m.opts.MaxDetections[len(m.opts.MaxDetections)-1]
	ce := classEval{
		precision: make([][][][]float64, len(cocoAreaRanges)),
		recall:    make([][][]float64, len(cocoAreaRanges)),
	}

	for a, ar := range cocoAreaRanges {
		evals := make([]*imageEval, 0, len(preds))
		for i := range preds {
			if err := ctx.Err(); err != nil {
				return classEval{}, err
			}
			if e := m.evaluateImage(preds[i], targets[i], class, ar, maxDet); e != nil {
				evals = append(evals, e)
			}
		}

		ce.precision[a] = make([][][]float64, len(m.opts.MaxDetections))
		ce.recall[a] = make([][]float64, len(m.opts.MaxDetections))
		for d, limit := range m.opts.MaxDetections {
			ce.precision[a][d], ce.recall[a][d] = m.accumulate(evals, limit)
		}
	}
	return ce, nil
}

// evaluateImage matches detections of one class to ground truth at every IoU threshold. Each
// detection, in score order, takes the best remaining ground truth at or above the threshold,
// preferring ground truth inside the area range. Unmatched detections outside the range and
// detections matched to ignored ground truth are ignored.
func (m *MeanAveragePrecision) evaluateImage(pred, gt common.DetectionSet, class int, ar areaRange, maxDet int) *imageEval {
	var gi, di []int
	for j, l := range gt.Labels {
		if l == class {
			gi = append(gi, j)
		}
	}
	for i, l := range pred.Labels {
		if l == class {
			di = append(di, i)
		}
	}
	if len(gi) == 0 && len(di) == 0 {
		return nil
	}

	sort.SliceStable(gi, func(a, b int) bool {
		return !ar.outside(gt.Boxes[gi[a]]) && ar.outside(gt.Boxes[gi[b]])
	})
	gtBoxes := make([]images.Rect, len(gi))
	gtIgnore := make([]bool, len(gi))
	for k, j := range gi {
		gtBoxes[k] = gt.Boxes[j]
		gtIgnore[k] = ar.outside(gt.Boxes[j])
	}

	sort.SliceStable(di, func(a, b int) bool {
		return pred.Scores[di[a]] > pred.Scores[di[b]]
	})
	if len(di) > maxDet {
		di = di[:maxDet]
	}
	dtBoxes := make([]images.Rect, len(di))
	scores := make([]float64, len(di))
	for k, i := range di {
		dtBoxes[k] = pred.Boxes[i]
		scores[k] = float64(pred.Scores[i])
	}

	var ious *tensor.Dense
	if len(dtBoxes) > 0 && len(gtBoxes) > 0 {
		ious = images.IoUMatrix(dtBoxes, gtBoxes)
	}

	e := &imageEval{
		scores:   scores,
		matched:  make([][]bool, len(m.opts.IoUThresholds)),
		ignored:  make([][]bool, len(m.opts.IoUThresholds)),
		gtIgnore: gtIgnore,
	}
	for t, thr := range m.opts.IoUThresholds {
		gtTaken := make([]bool, len(gtBoxes))
		matched := make([]bool, len(dtBoxes))
		ignored := make([]bool, len(dtBoxes))

		for d := range dtBoxes {
			best := -1
			if ious != nil {
				iou := math.Min(thr, 1-1e-10)
				row := images.Row(ious, d)
				for g := range gtBoxes {
					if gtTaken[g] {
						continue
					}
					// Ground truth is sorted with ignored boxes last.
					if best > -1 && !gtIgnore[best] && gtIgnore[g] {
						break
					}
					if float64(row[g]) < iou {
						continue
					}
					iou = float64(row[g])
					best = g
				}
			}
			if best >= 0 {
				matched[d] = true
				ignored[d] = gtIgnore[best]
				gtTaken[best] = true
				continue
			}
			ignored[d] = ar.outside(dtBoxes[d])
		}

		e.matched[t] = matched
		e.ignored[t] = ignored
	}
	return e
}

// accumulate builds the precision envelope of one class at one area range and detection cap.
func (m *MeanAveragePrecision) accumulate(evals []*imageEval, maxDet int) ([][]float64, []float64) {
	nT := len(m.opts.IoUThresholds)
	precision := make([][]float64, nT)
	recall := make([]float64, nT)
	for t := range precision {
		precision[t] = filled(len(m.opts.RecThresholds), -1)
		recall[t] = -1
	}

	type det struct {
		score float64
		img   int
		idx   int
	}
	var dets []det
	npig := 0
	for ei, e := range evals {
		for d := 0; d < min(maxDet, len(e.scores)); d++ {
			dets = append(dets, det{score: e.scores[d], img: ei, idx: d})
		}
		for _, ig := range e.gtIgnore {
			if !ig {
				npig++
			}
		}
	}
	if npig == 0 {
		return precision, recall
	}
	sort.SliceStable(dets, func(a, b int) bool { return dets[a].score > dets[b].score })

	nd := len(dets)
	for t := range m.opts.IoUThresholds {
		rc := make([]float64, nd)
		pr := make([]float64, nd)
		var tp, fp float64
		for k, d := range dets {
			e := evals[d.img]
			if !e.ignored[t][d.idx] {
				if e.matched[t][d.idx] {
					tp++
				} else {
					fp++
				}
			}
			rc[k] = tp / float64(npig)
			pr[k] = tp / (tp + fp + epsilon)
		}

		recall[t] = 0
		if nd > 0 {
			recall[t] = rc[nd-1]
		}

		for i := nd - 1; i > 0; i-- {
			if pr[i] > pr[i-1] {
				pr[i-1] = pr[i]
			}
		}

		q := make([]float64, len(m.opts.RecThresholds))
		for ri, r := range m.opts.RecThresholds {
			pi := sort.SearchFloat64s(rc, r)
			if pi >= nd {
				break
			}
			q[ri] = pr[pi]
		}
		precision[t] = q
	}
	return precision, recall
}

func (m *MeanAveragePrecision) summarize(classes []int, evals []classEval) Summary {
	last := len(m.opts.MaxDetections) - 1
	all := 0

	iouIndex := func(thr float64) int {
		for t, v := range m.opts.IoUThresholds {
			if math.Abs(v-thr) < 1e-9 {
				return t
			}
		}
		return -1
	}

	// ap averages precision over classes, the selected IoU thresholds (iou < 0 means all) and
	// recall points.
	ap := func(iou, area, maxDet int) float64 {
		var vals []float64
		for _, ce := range evals {
			for t, row := range ce.precision[area][maxDet] {
				if iou >= 0 && t != iou {
					continue
				}
				vals = append(vals, row...)
			}
		}
		return meanDefined(vals)
	}
	ar := func(area, maxDet int) float64 {
		var vals []float64
		for _, ce := range evals {
			vals = append(vals, ce.recall[area][maxDet]...)
		}
		return meanDefined(vals)
	}
	apAt := func(thr float64) float64 {
		t := iouIndex(thr)
		if t < 0 {
			return -1
		}
		return ap(t, all, last)
	}

	s := Summary{
		MAP:       ap(-1, all, last),
		MAP50:     apAt(0.5),
		MAP75:     apAt(0.75),
		MAPSmall:  ap(-1, 1, last),
		MAPMedium: ap(-1, 2, last),
		MAPLarge:  ap(-1, 3, last),
		MAR1:      ar(all, 0),
		MAR10:     ar(all, 1),
		MAR100:    ar(all, last),
		MARSmall:  ar(1, last),
		MARMedium: ar(2, last),
		MARLarge:  ar(3, last),
		Classes:   classes,
	}

	if m.opts.ClassMetrics {
		s.MAPPerClass = make([]float64, len(classes))
		s.MARPerClass = make([]float64, len(classes))
		for k, ce := range evals {
			var p []float64
			for _, row := range ce.precision[all][last] {
				p = append(p, row...)
			}
			s.MAPPerClass[k] = meanDefined(p)
			s.MARPerClass[k] = meanDefined(ce.recall[all][last])
		}
	}
	return s
}

// meanDefined averages the entries above -1, returning -1 when there are none.
func meanDefined(vals []float64) float64 {
	var sum float64
	n := 0
	for _, v := range vals {
		if v > -1 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return -1
	}
	return sum / float64(n)
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
