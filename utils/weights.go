package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// WeightsVersion is written into every saved weights file.
const WeightsVersion = "1.0"

// ErrMissingLayer is returned when a weights file lacks a parameter the
// model needs.
var ErrMissingLayer = errors.New("weights: missing layer")

// WeightData represents serializable weight data for a layer
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights represents all weights in a model
type ModelWeights struct {
	Version string                 `json:"version"`
	Layers  map[string]LayerWeight `json:"layers"`
}

// LayerWeight contains weights and bias for a layer
type LayerWeight struct {
	Weight *WeightData `json:"weight,omitempty"`
	Bias   *WeightData `json:"bias,omitempty"`
}

// NewModelWeights returns an empty set tagged with the current version.
func NewModelWeights() *ModelWeights {
	return &ModelWeights{Version: WeightsVersion, Layers: make(map[string]LayerWeight)}
}

// SaveWeights saves model weights to a JSON file
func SaveWeights(filepath string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadWeights loads model weights from a JSON file
func LoadWeights(filepath string) (*ModelWeights, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights file: %w", err)
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
	}
	return &weights, nil
}

// Layer returns the named layer or ErrMissingLayer.
func (w *ModelWeights) Layer(name string) (LayerWeight, error) {
	l, ok := w.Layers[name]
	if !ok {
		return LayerWeight{}, fmt.Errorf("%w: %s", ErrMissingLayer, name)
	}
	return l, nil
}

// TensorToWeightData converts a tensor to serializable weight data
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: t.Shape,
		Data:  append([]float64{}, t.Data...), // copy
	}
}

// WeightDataToTensor converts weight data back to a tensor. The data must
// fill the recorded shape exactly.
func WeightDataToTensor(wd *WeightData) (*tensor.Tensor, error) {
	t, err := tensor.FromData(wd.Data, wd.Shape...)
	if err != nil {
		return nil, fmt.Errorf("weights: %s: %w", wd.Name, err)
	}
	return t, nil
}

// AssignWeightData copies wd into an existing parameter tensor. The shapes
// must match.
func AssignWeightData(dst *tensor.Tensor, wd *WeightData) error {
	if wd == nil {
		return fmt.Errorf("weights: no data for parameter of shape %v", dst.Shape)
	}
	src, err := WeightDataToTensor(wd)
	if err != nil {
		return err
	}
	if !tensor.SameShape(dst, src) {
		return fmt.Errorf("weights: %s: %w: have %v, want %v", wd.Name, tensor.ErrShapeMismatch, wd.Shape, dst.Shape)
	}
	copy(dst.Data, src.Data)
	return nil
}
