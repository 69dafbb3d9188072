// Package model holds the pre-trained water-quality classifier in memory.
//
// A Runtime is created once during startup by Load and is read-only afterwards,
// so any number of goroutines may call Predict without locking.
package model

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/abelzeko/water-quality/internal/entities"
)

var (
	// ErrNotLoaded is returned by Predict on a Runtime that was never loaded
	ErrNotLoaded = errors.New("model artifacts not loaded")

	// ErrInvalidArtifact is wrapped by load errors caused by a corrupt artifact
	ErrInvalidArtifact = errors.New("invalid model artifact")

	// ErrUnsupportedVersion is wrapped by load errors caused by an artifact format mismatch
	ErrUnsupportedVersion = errors.New("unsupported model artifact version")

	// ErrInvalidFeatures is returned when a feature is NaN or infinite
	ErrInvalidFeatures = errors.New("invalid feature vector")
)

// Result is the classifier's verdict for one feature vector
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Runtime is a loaded classifier together with its label decoder
type Runtime struct {
	classifier Classifier
	decoder    LabelDecoder
}

// Load reads both artifacts from disk. Any failure means the process must not serve predictions.
func Load(modelPath, decoderPath string) (*Runtime, error) {
	modelFile, err := os.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open model artifact: %w", err)
	}
	defer modelFile.Close()

	decoderFile, err := os.Open(decoderPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open label decoder artifact: %w", err)
	}
	defer decoderFile.Close()

	return LoadFrom(modelFile, decoderFile)
}

// LoadFrom decodes and cross-checks both artifacts
func LoadFrom(model, decoder io.Reader) (*Runtime, error) {
	classifier, err := decodeClassifier(model)
	if err != nil {
		return nil, err
	}
	labels, err := decodeLabelDecoder(decoder)
	if err != nil {
		return nil, err
	}
	if len(labels.Classes) != classifier.NClasses {
		return nil, fmt.Errorf("%w: classifier has %d classes but label decoder has %d",
			ErrInvalidArtifact, classifier.NClasses, len(labels.Classes))
	}
	return &Runtime{classifier: classifier, decoder: labels}, nil
}

// Classes returns the decoded class labels in index order
func (rt *Runtime) Classes() []string {
	if rt == nil {
		return nil
	}
	return append([]string(nil), rt.decoder.Classes...)
}

// Trees returns the number of trees in the forest
func (rt *Runtime) Trees() int {
	if rt == nil {
		return 0
	}
	return len(rt.classifier.Trees)
}

// Predict classifies the daily means. Confidence is the highest class probability.
func (rt *Runtime) Predict(f entities.Features) (Result, error) {
	if rt == nil || len(rt.classifier.Trees) == 0 {
		return Result{}, ErrNotLoaded
	}
	x := f.Vector()
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, fmt.Errorf("%w: %s is %v", ErrInvalidFeatures, FeatureNames[i], v)
		}
	}

	probs := rt.Probabilities(x)
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return Result{Label: rt.decoder.Classes[best], Confidence: probs[best]}, nil
}

// Probabilities averages the normalized leaf distributions of every tree.
// x must hold len(FeatureNames) finite values.
func (rt *Runtime) Probabilities(x []float64) []float64 {
	probs := make([]float64, rt.classifier.NClasses)
	for _, tree := range rt.classifier.Trees {
		leaf := tree.leaf(x)
		var total float64
		for _, v := range leaf.Value {
			total += v
		}
		for i, v := range leaf.Value {
			probs[i] += v / total
		}
	}
	n := float64(len(rt.classifier.Trees))
	for i := range probs {
		probs[i] /= n
	}
	return probs
}

func (t Tree) leaf(x []float64) Node {
	i := 0
	for {
		n := t.Nodes[i]
		if n.isLeaf() {
			return n
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
