// Package models holds the built-in class sets, label mapping and the model registry.
package models

import (
	"github.com/nvr-ai/go-eval/models/model"
	"github.com/pkg/errors"
)

// OutputClass is one label of a class set.
type OutputClass struct {
	Index int
	Name  string
}

// OutputClassSet is the ordered label list a model family predicts.
type OutputClassSet struct {
	Style   model.Family
	Classes []OutputClass
	byName  map[string]int
}

// NewClassSet builds a class set whose indices are the positions in names.
//
// Arguments:
//   - style: The family the labels belong to.
//   - names: The label names in index order. Later duplicates shadow earlier ones on lookup.
//
// Returns:
//   - *OutputClassSet: The indexed set.
func NewClassSet(style model.Family, names []string) *OutputClassSet {
	set := &OutputClassSet{
		Style:   style,
		Classes: make([]OutputClass, len(names)),
		byName:  make(map[string]int, len(names)),
	}
	for i, name := range names {
		set.Classes[i] = OutputClass{Index: i, Name: name}
		set.byName[name] = i
	}
	return set
}

// Names returns the class names in index order.
func (s *OutputClassSet) Names() []string {
	names := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		names[i] = c.Name
	}
	return names
}

// ClassManager translates class indices between registered sets by name.
type ClassManager struct {
	sets map[model.Family]*OutputClassSet
}

// NewClassManager registers sets by style. A later set replaces an earlier one of the same style.
func NewClassManager(sets ...*OutputClassSet) *ClassManager {
	mgr := &ClassManager{sets: make(map[model.Family]*OutputClassSet, len(sets))}
	for _, set := range sets {
		mgr.sets[set.Style] = set
	}
	return mgr
}

func (m *ClassManager) set(style model.Family) (*OutputClassSet, error) {
	set, ok := m.sets[style]
	if !ok {
		return nil, errors.Errorf("class set %q is not registered", style)
	}
	return set, nil
}

// GetName returns the name of class idx in style.
func (m *ClassManager) GetName(style model.Family, idx int) (string, error) {
	set, err := m.set(style)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(set.Classes) {
		return "", errors.Errorf("class %d is outside %q (%d classes)", idx, style, len(set.Classes))
	}
	return set.Classes[idx].Name, nil
}

// GetIndex returns the index of name in style.
func (m *ClassManager) GetIndex(style model.Family, name string) (int, error) {
	set, err := m.set(style)
	if err != nil {
		return -1, err
	}
	idx, ok := set.byName[name]
	if !ok {
		return -1, errors.Errorf("class %q is not in %q", name, style)
	}
	return idx, nil
}

// MapClass translates class idx of fromStyle into the class of toStyle with the same name.
func (m *ClassManager) MapClass(fromStyle model.Family, idx int, toStyle model.Family) (OutputClass, error) {
	name, err := m.GetName(fromStyle, idx)
	if err != nil {
		return OutputClass{}, err
	}
	toIdx, err := m.GetIndex(toStyle, name)
	if err != nil {
		return OutputClass{}, err
	}
	return OutputClass{Index: toIdx, Name: name}, nil
}

// cocoNames lists the 80 COCO categories in their contiguous training order.
var cocoNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog",
	"horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich",
	"orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
	"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote",
	"keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// vocNames lists the 20 Pascal VOC categories.
var vocNames = []string{
	"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person", "pottedplant", "sheep", "sofa",
	"train", "tvmonitor",
}

const (
	backgroundName = "__background__"
	// unusedName fills the COCO category ids that have no class.
	unusedName = "N/A"
)

// cocoUnusedIDs are the category ids (1..90) left empty by the COCO 2017 release.
var cocoUnusedIDs = []int{12, 26, 29, 30, 45, 66, 68, 69, 71, 83}

func withBackground(names []string) []string {
	return append([]string{backgroundName}, names...)
}

// cocoCategoryNames lays the 80 names out by COCO category id, with N/A in the gaps.
func cocoCategoryNames() []string {
	out := make([]string, 0, len(cocoNames)+len(cocoUnusedIDs)+1)
	out = append(out, backgroundName)
	next, gap := 0, 0
	for id := 1; next < len(cocoNames); id++ {
		if gap < len(cocoUnusedIDs) && cocoUnusedIDs[gap] == id {
			out = append(out, unusedName)
			gap++
			continue
		}
		out = append(out, cocoNames[next])
		next++
	}
	return out
}

var (
	// COCOClasses is indexed by COCO category id (91 entries, person is 1, toothbrush is 90),
	// the layout torchvision and DETR-style heads predict.
	COCOClasses = NewClassSet(model.ModelFamilyCOCO, cocoCategoryNames())
	// YOLOClasses indexes the 80 COCO names contiguously from 0.
	YOLOClasses = NewClassSet(model.ModelFamilyYOLO, cocoNames)
	// TFCOCOClasses shares the COCO category id layout of the TF object detection label map.
	TFCOCOClasses = NewClassSet(model.ModelFamilyTF, cocoCategoryNames())
	// PascalVOCClasses puts "__background__" at 0, so person is 15.
	PascalVOCClasses = NewClassSet(model.ModelFamilyVOC, withBackground(vocNames))
)

// AllClassSets lists every built-in class set.
var AllClassSets = []*OutputClassSet{
	COCOClasses,
	YOLOClasses,
	TFCOCOClasses,
	PascalVOCClasses,
}
