//go:build ort

package onnxscore

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/LiorZ/BoltzDesign1/nn"
	"github.com/LiorZ/BoltzDesign1/tensor"
)

// Model is an nn.ScoreModel backed by an ONNX Runtime session. It ignores
// the inference cache; the exported graph recomputes the pair bias.
type Model struct {
	session *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
}

// FindLibrary looks for libonnxruntime in common locations.
func FindLibrary() string {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	candidates := []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.dylib",
		"/opt/homebrew/lib/libonnxruntime.dylib",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Open initializes the runtime from libPath and loads the graph at
// modelPath. The graph must produce OutputUpdate; OutputTokenRep is read
// when present.
func Open(modelPath, libPath string) (*Model, error) {
	if libPath == "" {
		libPath = FindLibrary()
	}
	if libPath == "" {
		return nil, fmt.Errorf("onnxscore: libonnxruntime not found")
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("onnxscore: init: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("onnxscore: session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)

	ins, outs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("onnxscore: graph info: %w", err)
	}
	m := &Model{}
	for _, in := range ins {
		m.inputs = append(m.inputs, in.Name)
	}
	hasUpdate := false
	for _, out := range outs {
		if out.Name == OutputUpdate || out.Name == OutputTokenRep {
			m.outputs = append(m.outputs, out.Name)
		}
		hasUpdate = hasUpdate || out.Name == OutputUpdate
	}
	if !hasUpdate {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("onnxscore: graph has no %q output", OutputUpdate)
	}

	m.session, err = ort.NewDynamicAdvancedSession(modelPath, m.inputs, m.outputs, opts)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("onnxscore: session: %w", err)
	}
	return m, nil
}

// Evaluate implements nn.ScoreModel.
func (m *Model) Evaluate(in *nn.ScoreInput) (*nn.ScoreOutput, error) {
	bound, err := bindInputs(m.inputs, in)
	if err != nil {
		return nil, err
	}
	values, err := createValues(m.inputs, bound, newValue)
	defer func() {
		for _, v := range values {
			v.Destroy()
		}
	}()
	if err != nil {
		return nil, err
	}

	outputs := make([]ort.Value, len(m.outputs))
	if err := m.session.Run(values, outputs); err != nil {
		return nil, fmt.Errorf("onnxscore: run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	res := &nn.ScoreOutput{}
	for i, name := range m.outputs {
		t, ok := outputs[i].(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("onnxscore: output %q has type %T", name, outputs[i])
		}
		x, err := fromFloat32(t.GetData(), t.GetShape())
		if err != nil {
			return nil, fmt.Errorf("onnxscore: output %q: %w", name, err)
		}
		switch name {
		case OutputUpdate:
			res.Update = x
		case OutputTokenRep:
			res.TokenRepr = x
		}
	}
	if !tensor.SameShape(res.Update, in.Coords) {
		return nil, fmt.Errorf("onnxscore: update shape %v, want %v", res.Update.Shape, in.Coords.Shape)
	}
	return res, nil
}

// newValue copies x into a float32 ORT tensor. A failed allocation yields a
// nil interface, never a typed nil pointer.
func newValue(x *tensor.Tensor) (ort.Value, error) {
	dims := make([]int64, len(x.Shape))
	for k, d := range x.Shape {
		dims[k] = int64(d)
	}
	v, err := ort.NewTensor(ort.NewShape(dims...), toFloat32(x.Data))
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Destroy releases the session and the runtime environment.
func (m *Model) Destroy() {
	if m.session != nil {
		m.session.Destroy()
	}
	ort.DestroyEnvironment()
}
