package metrics

import "sync"

// Tally accumulates matcher counts across a dataset. It is safe for concurrent use.
type Tally struct {
	mu     sync.Mutex
	counts Counts
	images int
}

// Add folds the counts of one image into the tally.
func (t *Tally) Add(c Counts) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts.TP += c.TP
	t.counts.FP += c.FP
	t.counts.FN += c.FN
	t.images++
}

// Counts returns the accumulated totals.
func (t *Tally) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts
}

// Images returns how many images were added.
func (t *Tally) Images() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.images
}

// Precision returns TP / (TP + FP), or 0 when nothing was predicted.
func (t *Tally) Precision() float64 {
	return t.Counts().Precision()
}

// Recall returns TP / (TP + FN), or 0 when there was no ground truth.
func (t *Tally) Recall() float64 {
	return t.Counts().Recall()
}

// Precision returns TP / (TP + FP), or 0 when the denominator is 0.
func (c Counts) Precision() float64 {
	return ratio(c.TP, c.TP+c.FP)
}

// Recall returns TP / (TP + FN), or 0 when the denominator is 0.
func (c Counts) Recall() float64 {
	return ratio(c.TP, c.TP+c.FN)
}

func ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den)
}
