package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
)

// Summary is the result of an evaluation run. Undefined mAP/mAR values are -1.
type Summary struct {
	MAP       float64 `json:"map"`
	MAP50     float64 `json:"map_50"`
	MAP75     float64 `json:"map_75"`
	MAPSmall  float64 `json:"map_small"`
	MAPMedium float64 `json:"map_medium"`
	MAPLarge  float64 `json:"map_large"`
	MAR1      float64 `json:"mar_1"`
	MAR10     float64 `json:"mar_10"`
	MAR100    float64 `json:"mar_100"`
	MARSmall  float64 `json:"mar_small"`
	MARMedium float64 `json:"mar_medium"`
	MARLarge  float64 `json:"mar_large"`

	// MAPPerClass and MARPerClass are aligned with Classes and only set with class metrics.
	MAPPerClass []float64 `json:"map_per_class,omitempty"`
	MARPerClass []float64 `json:"mar_100_per_class,omitempty"`
	Classes     []int     `json:"classes"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Counts    Counts  `json:"counts"`
	Images    int     `json:"images"`
}

// WithTally fills in the greedy matcher precision and recall.
func (s Summary) WithTally(t *Tally) Summary {
	s.Counts = t.Counts()
	s.Images = t.Images()
	s.Precision = s.Counts.Precision()
	s.Recall = s.Counts.Recall()
	return s
}

// ClassMetric returns the AP and AR of one class label.
func (s Summary) ClassMetric(label int) (ap, ar float64, ok bool) {
	for k, c := range s.Classes {
		if c == label && k < len(s.MAPPerClass) && k < len(s.MARPerClass) {
			return s.MAPPerClass[k], s.MARPerClass[k], true
		}
	}
	return -1, -1, false
}

// MetricsTable renders every summary metric as a two column table.
func (s Summary) MetricsTable() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	rows := []struct {
		name  string
		value float64
	}{
		{"map", s.MAP},
		{"map_50", s.MAP50},
		{"map_75", s.MAP75},
		{"map_small", s.MAPSmall},
		{"map_medium", s.MAPMedium},
		{"map_large", s.MAPLarge},
		{"mar_1", s.MAR1},
		{"mar_10", s.MAR10},
		{"mar_100", s.MAR100},
		{"mar_small", s.MARSmall},
		{"mar_medium", s.MARMedium},
		{"mar_large", s.MARLarge},
		{"precision", s.Precision},
		{"recall", s.Recall},
	}
	for _, r := range rows {
		t.AppendRow(table.Row{r.name, formatMetric(r.value)})
	}
	t.AppendFooter(table.Row{"TP / FP / FN", fmt.Sprintf("%d / %d / %d", s.Counts.TP, s.Counts.FP, s.Counts.FN)})
	return t.Render()
}

// ClassTable renders AP and AR per class.
//
// names is the dataset class list, indexed by label with the background at index 0. With at
// most one real class the table collapses to that class and the average.
func (s Summary) ClassTable(names []string) string {
	t := table.NewWriter()

	if len(names) <= 2 {
		name := "object"
		if len(names) == 2 {
			name = names[1]
		}
		t.AppendHeader(table.Row{"Class", "AP", "AR"})
		t.AppendRow(table.Row{name, formatMetric(s.MAP), formatMetric(s.MAR100)})
		t.AppendFooter(table.Row{"Avg", formatMetric(s.MAP), formatMetric(s.MAR100)})
		return t.Render()
	}

	t.AppendHeader(table.Row{"#", "Class", "AP", "AR"})
	for _, label := range s.Classes {
		ap, ar, ok := s.ClassMetric(label)
		if !ok {
			continue
		}
		t.AppendRow(table.Row{strconv.Itoa(label), className(names, label), formatMetric(ap), formatMetric(ar)})
	}
	t.AppendFooter(table.Row{"Avg", "", formatMetric(s.MAP), formatMetric(s.MAR100)})
	return t.Render()
}

// WriteReport prints the evaluation report.
//
// Arguments:
//   - w: The destination.
//   - s: The evaluation summary.
//   - names: The dataset class names, indexed by label.
//   - verbose: Whether to print the class-wise table.
//
// Returns:
//   - error: The first write error.
func WriteReport(w io.Writer, s Summary, names []string, verbose bool) error {
	ew := &errWriter{w: w}

	ew.printf("\n===== Evaluation Metrics =====\n")
	ew.printf("mAP@50-95: %.3f\n", s.MAP)
	ew.printf("mAP@50: %.3f\n", s.MAP50)
	ew.printf("\n")
	ew.printf("Precision: %.3f\n", s.Precision)
	ew.printf("Recall: %.3f\n", s.Recall)
	ew.printf("\n%s\n", s.MetricsTable())

	if verbose {
		ew.printf("\n===== Class-wise AP and AR =====\n")
		ew.printf("%s\n", s.ClassTable(names))
	}
	return ew.err
}

// WriteJSON writes the summary to path as indented JSON.
func WriteJSON(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal summary")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write summary to %s", path)
	}
	return nil
}

func className(names []string, label int) string {
	if label >= 0 && label < len(names) {
		return names[label]
	}
	return "class_" + strconv.Itoa(label)
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
