package model

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// FormatVersion is the only artifact format this runtime understands
const FormatVersion = 1

// FeatureNames is the column order the classifier was trained on
var FeatureNames = []string{"ph", "tds", "turbidity", "temperature"}

// leafChild marks a node without children, as in scikit-learn's tree_ export
const leafChild = -1

// Classifier is a random forest exported from the training notebook
type Classifier struct {
	FormatVersion int      `json:"format_version"`
	ModelType     string   `json:"model_type"`
	FeatureNames  []string `json:"feature_names"`
	NClasses      int      `json:"n_classes"`
	Trees         []Tree   `json:"trees"`
}

// Tree is a flattened decision tree. Node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is either a split (Left/Right set) or a leaf holding per-class weights in Value.
// Samples with x[Feature] <= Threshold go left.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

func (n Node) isLeaf() bool {
	return n.Left == leafChild && n.Right == leafChild
}

// LabelDecoder maps class indices back to human readable labels
type LabelDecoder struct {
	FormatVersion int      `json:"format_version"`
	Classes       []string `json:"classes"`
}

func decodeClassifier(r io.Reader) (Classifier, error) {
	var c Classifier
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Classifier{}, fmt.Errorf("%w: classifier: %v", ErrInvalidArtifact, err)
	}
	return c, c.validate()
}

func decodeLabelDecoder(r io.Reader) (LabelDecoder, error) {
	var d LabelDecoder
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return LabelDecoder{}, fmt.Errorf("%w: label decoder: %v", ErrInvalidArtifact, err)
	}
	return d, d.validate()
}

func (c Classifier) validate() error {
	if c.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: classifier format_version %d, want %d", ErrUnsupportedVersion, c.FormatVersion, FormatVersion)
	}
	if c.ModelType != "random_forest" {
		return fmt.Errorf("%w: unsupported model_type %q", ErrInvalidArtifact, c.ModelType)
	}
	if len(c.FeatureNames) != len(FeatureNames) {
		return fmt.Errorf("%w: expected features %v, got %v", ErrInvalidArtifact, FeatureNames, c.FeatureNames)
	}
	for i, name := range FeatureNames {
		if c.FeatureNames[i] != name {
			return fmt.Errorf("%w: expected features %v, got %v", ErrInvalidArtifact, FeatureNames, c.FeatureNames)
		}
	}
	if c.NClasses < 2 {
		return fmt.Errorf("%w: n_classes must be at least 2, got %d", ErrInvalidArtifact, c.NClasses)
	}
	if len(c.Trees) == 0 {
		return fmt.Errorf("%w: forest has no trees", ErrInvalidArtifact)
	}
	for ti, tree := range c.Trees {
		if err := tree.validate(c.NClasses); err != nil {
			return fmt.Errorf("%w: tree %d: %v", ErrInvalidArtifact, ti, err)
		}
	}
	return nil
}

// validate checks every child index points forward, which also rules out cycles
func (t Tree) validate(nClasses int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("no nodes")
	}
	for i, n := range t.Nodes {
		if n.isLeaf() {
			if len(n.Value) != nClasses {
				return fmt.Errorf("leaf %d has %d class weights, want %d", i, len(n.Value), nClasses)
			}
			var total float64
			for _, v := range n.Value {
				if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("leaf %d has invalid weight %v", i, v)
				}
				total += v
			}
			if total == 0 {
				return fmt.Errorf("leaf %d has no weight", i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= len(FeatureNames) {
			return fmt.Errorf("node %d splits on unknown feature %d", i, n.Feature)
		}
		if math.IsNaN(n.Threshold) || math.IsInf(n.Threshold, 0) {
			return fmt.Errorf("node %d has invalid threshold", i)
		}
		for _, child := range []int{n.Left, n.Right} {
			if child <= i || child >= len(t.Nodes) {
				return fmt.Errorf("node %d has invalid child %d", i, child)
			}
		}
	}
	return nil
}

func (d LabelDecoder) validate() error {
	if d.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: label decoder format_version %d, want %d", ErrUnsupportedVersion, d.FormatVersion, FormatVersion)
	}
	seen := make(map[string]bool, len(d.Classes))
	for _, c := range d.Classes {
		if c == "" || seen[c] {
			return fmt.Errorf("%w: label decoder classes must be unique and non-empty", ErrInvalidArtifact)
		}
		seen[c] = true
	}
	return nil
}
