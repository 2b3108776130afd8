package core

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// InitOnnxRuntime loads the onnxruntime shared library once per process.
func InitOnnxRuntime(dylib string) error {
	initOnce.Do(func() {
		ort.SetSharedLibraryPath(dylib)
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

// OnnxPredictor runs an exported digit classifier. The model takes a single
// float32 input of shape [1, 1, 28, 28] and produces [1, classes] scores.
type OnnxPredictor struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	classes int64
}

func LoadOnnxPredictor(modelPath string) (*OnnxPredictor, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("error reading model inputs and outputs: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected a model with one input and one output, got %d and %d", len(inputs), len(outputs))
	}

	classes := int64(10)
	if dims := outputs[0].Dimensions; len(dims) == 2 && dims[1] > 0 {
		classes = dims[1]
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}

	return &OnnxPredictor{session: session, classes: classes}, nil
}

func (m *OnnxPredictor) Predict(input []float32) ([]float32, error) {
	if len(input) != ImageSize*ImageSize {
		return nil, fmt.Errorf("expected %d input values, got %d", ImageSize*ImageSize, len(input))
	}

	inT, err := ort.NewTensor(ort.NewShape(1, 1, ImageSize, ImageSize), input)
	if err != nil {
		return nil, err
	}
	defer inT.Destroy()

	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(1, m.classes))
	if err != nil {
		return nil, err
	}
	defer outT.Destroy()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, fmt.Errorf("predictor has been released")
	}

	if err := m.session.Run([]ort.Value{inT}, []ort.Value{outT}); err != nil {
		return nil, fmt.Errorf("session run error: %w", err)
	}

	scores := make([]float32, m.classes)
	copy(scores, outT.GetData())
	return scores, nil
}

func (m *OnnxPredictor) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
}
