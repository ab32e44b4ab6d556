package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary() Summary {
	var tally Tally
	tally.Add(Counts{TP: 3, FP: 1, FN: 1})
	return Summary{
		MAP:         0.4567,
		MAP50:       0.789,
		MAP75:       0.5,
		MAPSmall:    -1,
		MAR100:      0.61,
		Classes:     []int{1, 3},
		MAPPerClass: []float64{0.25, 0.75},
		MARPerClass: []float64{0.5, 1},
	}.WithTally(&tally)
}

func TestSummaryWithTally(t *testing.T) {
	s := sampleSummary()
	assert.Equal(t, Counts{TP: 3, FP: 1, FN: 1}, s.Counts)
	assert.Equal(t, 1, s.Images)
	assert.InDelta(t, 0.75, s.Precision, 1e-9)
	assert.InDelta(t, 0.75, s.Recall, 1e-9)
}

func TestWriteReport(t *testing.T) {
	names := []string{"__background__", "person", "car", "dog"}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleSummary(), names, false))
	out := buf.String()

	assert.Contains(t, out, "===== Evaluation Metrics =====")
	assert.Contains(t, out, "mAP@50-95: 0.457")
	assert.Contains(t, out, "mAP@50: 0.789")
	assert.Contains(t, out, "Precision: 0.750")
	assert.Contains(t, out, "Recall: 0.750")
	assert.Contains(t, out, "map_small")
	assert.Contains(t, out, "-1.000")
	assert.NotContains(t, out, "Class-wise")

	buf.Reset()
	require.NoError(t, WriteReport(&buf, sampleSummary(), names, true))
	out = buf.String()
	assert.Contains(t, out, "===== Class-wise AP and AR =====")
	assert.Contains(t, out, "person")
	assert.Contains(t, out, "dog")
	assert.NotContains(t, out, "car", "classes without metrics are not listed")
	assert.Contains(t, out, "0.250")
	assert.Contains(t, out, "AVG")
}

func TestClassTable_SingleClass(t *testing.T) {
	out := sampleSummary().ClassTable([]string{"__background__", "smoke"})
	assert.Contains(t, out, "smoke")
	assert.Contains(t, out, "0.457")
	assert.Contains(t, out, "0.610")
	assert.Equal(t, 2, strings.Count(out, "0.457"), "class row and average row")
}

func TestClassTable_UnknownLabel(t *testing.T) {
	s := sampleSummary()
	s.Classes = []int{1, 9}
	out := s.ClassTable([]string{"__background__", "a", "b"})
	assert.Contains(t, out, "class_9")
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, WriteJSON(path, sampleSummary()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.InDelta(t, 0.4567, decoded["map"], 1e-9)
	assert.InDelta(t, 0.789, decoded["map_50"], 1e-9)
	assert.Contains(t, decoded, "mar_100_per_class")
	assert.InDelta(t, 0.75, decoded["precision"], 1e-9)

	assert.Error(t, WriteJSON(filepath.Join(t.TempDir(), "missing", "summary.json"), sampleSummary()))
}
