// Package inference owns the onnxruntime environment and wraps model sessions.
package inference

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var (
	initialized bool
	useCUDA     bool
	logger      = zap.NewNop()
	initMu      sync.Mutex
)

// ErrNotInitialized is returned by NewSession before Initialize.
var ErrNotInitialized = errors.New("inference: onnxruntime not initialized")

// Options configures the process-wide onnxruntime environment.
type Options struct {
	// LibraryPath points at libonnxruntime; empty keeps the library default.
	LibraryPath string
	// UseCUDA tries the CUDA execution provider for every session.
	UseCUDA bool
}

// Initialize sets up the onnxruntime environment. It is called once at cold
// start; later calls are no-ops.
func Initialize(opts Options, log *zap.Logger) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}
	if log != nil {
		logger = log.Named("inference")
	}
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}

	useCUDA = opts.UseCUDA
	initialized = true
	logger.Info("onnxruntime initialized", zap.String("version", ort.GetVersion()), zap.Bool("cuda", useCUDA))
	return nil
}

// Shutdown destroys the environment at process exit.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}
	initialized = false
	return nil
}

// Session wraps an onnxruntime session whose input and output names are read
// from the model file.
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputs      []ort.InputOutputInfo
	outputs     []ort.InputOutputInfo
	inputNames  []string
	outputNames []string
}

// NewSession loads modelPath, preferring CUDA when enabled and falling back
// to CPU when the provider cannot be appended.
func NewSession(modelPath string) (*Session, error) {
	initMu.Lock()
	ready, cuda := initialized, useCUDA
	initMu.Unlock()
	if !ready {
		return nil, ErrNotInitialized
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model io for %s: %w", modelPath, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	provider := "cpu"
	if cuda {
		if err := appendCUDA(options); err != nil {
			logger.Warn("cuda provider unavailable, using cpu", zap.String("model", modelPath), zap.Error(err))
		} else {
			provider = "cuda"
		}
	}

	inputNames := names(inputs)
	outputNames := names(outputs)
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	logger.Info("model loaded",
		zap.String("model", modelPath),
		zap.String("provider", provider),
		zap.Strings("inputs", inputNames),
		zap.Strings("outputs", outputNames),
	)
	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputs:      inputs,
		outputs:     outputs,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

func appendCUDA(options *ort.SessionOptions) error {
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOptions.Destroy()
	if err := cudaOptions.Update(map[string]string{"device_id": "0"}); err != nil {
		return err
	}
	return options.AppendExecutionProviderCUDA(cudaOptions)
}

func names(infos []ort.InputOutputInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}

// Run executes inference. Nil entries in outputs are allocated by
// onnxruntime and must be destroyed by the caller.
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// InputNames lists model inputs in declaration order.
func (s *Session) InputNames() []string {
	return s.inputNames
}

// OutputNames lists model outputs in declaration order.
func (s *Session) OutputNames() []string {
	return s.outputNames
}

// InputShape returns the declared shape of input i; dynamic dims are -1.
func (s *Session) InputShape(i int) ort.Shape {
	return s.inputs[i].Dimensions
}

// OutputShape returns the declared shape of output i; dynamic dims are -1.
func (s *Session) OutputShape(i int) ort.Shape {
	return s.outputs[i].Dimensions
}

// ModelPath returns the file the session was loaded from.
func (s *Session) ModelPath() string {
	return s.modelPath
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateTensor creates a tensor with the given shape and data
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	return ort.NewEmptyTensor[T](ort.NewShape(shape...))
}

// Float32Data extracts the data of an onnxruntime-allocated output.
func Float32Data(v ort.Value) ([]float32, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("inference: output is %T, want float32 tensor", v)
	}
	return t.GetData(), nil
}

// DestroyAll releases every non-nil value.
func DestroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}
