package models

import (
	"strings"

	"github.com/nvr-ai/go-eval/models/model"
	"github.com/pkg/errors"
)

// datasetFamily registers the evaluation dataset's own class list with a ClassManager.
const datasetFamily model.Family = "dataset"

// nameAliases pairs Pascal VOC spellings with their COCO equivalents.
var nameAliases = map[string]string{
	"aeroplane":   "airplane",
	"motorbike":   "motorcycle",
	"diningtable": "dining table",
	"pottedplant": "potted plant",
	"sofa":        "couch",
	"tvmonitor":   "tv",
}

// ClassSetFor returns a copy of the built-in class set of family.
func ClassSetFor(family model.Family) (*OutputClassSet, error) {
	for _, set := range AllClassSets {
		if set.Style == family {
			return NewClassSet(family, set.Names()), nil
		}
	}
	return nil, errors.Errorf("no class set for model family %q", family)
}

// LabelMapper converts model class indices into dataset labels.
type LabelMapper struct {
	identity bool
	table    []int
}

// NewLabelMapper matches the classes of a model family to dataset classes by name.
//
// The custom family predicts dataset labels directly. For the other families every model class
// is looked up by name (Pascal VOC and COCO spellings are interchangeable, case is ignored);
// classes the dataset does not know map to -1 and can never be true positives.
//
// Arguments:
//   - family: The class family of the model outputs.
//   - datasetClasses: The dataset label space, indexed by label.
//
// Returns:
//   - *LabelMapper: The mapper.
//   - error: When family is unknown.
func NewLabelMapper(family model.Family, datasetClasses []string) (*LabelMapper, error) {
	if family == model.ModelFamilyCustom || family == "" {
		return &LabelMapper{identity: true}, nil
	}

	from, err := ClassSetFor(family)
	if err != nil {
		return nil, err
	}

	normalized := make([]string, len(datasetClasses))
	for i, name := range datasetClasses {
		normalized[i] = normalizeClassName(name)
	}
	mgr := NewClassManager(
		NewClassSet(family, normalizedNames(from.Names())),
		NewClassSet(datasetFamily, normalized),
	)

	table := make([]int, len(from.Classes))
	for i, c := range from.Classes {
		table[i] = -1
		if c.Name == unusedName {
			continue
		}
		if target, err := mgr.MapClass(family, i, datasetFamily); err == nil {
			table[i] = target.Index
		}
	}
	return &LabelMapper{table: table}, nil
}

// Map returns the dataset label of a model class, or -1.
func (m *LabelMapper) Map(class int) int {
	if m.identity {
		if class < 0 {
			return -1
		}
		return class
	}
	if class < 0 || class >= len(m.table) {
		return -1
	}
	return m.table[class]
}

// Mapped returns how many model classes have a dataset label, or -1 when labels pass through.
func (m *LabelMapper) Mapped() int {
	if m.identity {
		return -1
	}
	n := 0
	for _, l := range m.table {
		if l >= 0 {
			n++
		}
	}
	return n
}

func normalizedNames(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = normalizeClassName(n)
	}
	return out
}

func normalizeClassName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := nameAliases[n]; ok {
		return alias
	}
	return n
}
