package voiceprint

import (
	"fmt"
	"math"
	"sync"

	"github.com/medvox/medvox/pkg/audio/fbank"
	"github.com/medvox/medvox/pkg/onnx"
)

const (
	// ERes2Net embeds fixed windows of 300 fbank frames (3 s) advanced by
	// 150 frames; longer audio is embedded per window and averaged.
	segmentFrames = 300
	segmentHop    = 150

	// minFrames is the shortest fbank sequence worth embedding, about
	// 400 ms of audio.
	minFrames = 40
)

// ONNXModel implements [Model] with an ONNX Runtime session running a
// 3D-Speaker ERes2Net speaker verification network.
//
// # Model Pipeline
//
//  1. PCM16 audio → fbank.Extractor → mel filterbank features → CMVN
//  2. Feature windows → ONNX inference → per-window embeddings
//  3. Mean over windows → L2 normalization → speaker embedding
//
// # Thread Safety
//
// ONNXModel is safe for concurrent use. The session is loaded once and
// shared; ONNX Runtime sessions are internally synchronized.
type ONNXModel struct {
	mu      sync.Mutex
	session *onnx.Session
	closed  bool

	extractor  *fbank.Extractor
	dim        int
	inputName  string
	outputName string
}

// ONNXModelOption configures an ONNXModel.
type ONNXModelOption func(*ONNXModel)

// WithEmbeddingDim overrides the expected embedding dimension.
// Default: 512 (3D-Speaker ERes2Net base model).
func WithEmbeddingDim(dim int) ONNXModelOption {
	return func(m *ONNXModel) {
		if dim > 0 {
			m.dim = dim
		}
	}
}

// WithTensorNames sets the input and output tensor names.
// Default: "x" and "embedding".
func WithTensorNames(input, output string) ONNXModelOption {
	return func(m *ONNXModel) {
		m.inputName = input
		m.outputName = output
	}
}

// NewONNXModel creates an ONNXModel from a registered model in env.
func NewONNXModel(env *onnx.Env, id onnx.ModelID, opts ...ONNXModelOption) (*ONNXModel, error) {
	session, err := onnx.LoadModel(env, id)
	if err != nil {
		return nil, fmt.Errorf("voiceprint: %w", err)
	}
	return NewONNXModelFromSession(session, opts...), nil
}

// NewONNXModelFromSession wraps a pre-built ONNX session.
func NewONNXModelFromSession(session *onnx.Session, opts ...ONNXModelOption) *ONNXModel {
	m := &ONNXModel{
		session:    session,
		extractor:  fbank.New(fbank.DefaultConfig()),
		dim:        512,
		inputName:  "x",
		outputName: "embedding",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Extract implements [Model].
func (m *ONNXModel) Extract(audio []byte) ([]float32, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("voiceprint: model is closed")
	}
	session := m.session
	m.mu.Unlock()

	features := m.extractor.ExtractFromInt16(audio)
	if len(features) < minFrames {
		return nil, fmt.Errorf("voiceprint: audio too short for embedding (%d frames)", len(features))
	}
	fbank.CMVN(features)

	sum := make([]float64, m.dim)
	windows := 0
	for start := 0; start == 0 || start+segmentFrames <= len(features); start += segmentHop {
		end := start + segmentFrames
		if end > len(features) {
			end = len(features)
		}
		vec, err := m.infer(session, features[start:end])
		if err != nil {
			return nil, err
		}
		for i, v := range vec {
			sum[i] += float64(v)
		}
		windows++
		if end == len(features) {
			break
		}
	}

	embedding := make([]float32, m.dim)
	var norm float64
	for i := range sum {
		mean := sum[i] / float64(windows)
		embedding[i] = float32(mean)
		norm += mean * mean
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range embedding {
			embedding[i] *= inv
		}
	}
	return embedding, nil
}

func (m *ONNXModel) infer(session *onnx.Session, features [][]float32) ([]float32, error) {
	frames := len(features)
	mels := len(features[0])

	input, err := onnx.NewTensor(
		[]int64{1, int64(frames), int64(mels)},
		fbank.Flatten(features),
	)
	if err != nil {
		return nil, fmt.Errorf("voiceprint: create input tensor: %w", err)
	}
	defer input.Close()

	outputs, err := session.Run([]string{m.inputName}, []*onnx.Tensor{input}, []string{m.outputName})
	if err != nil {
		return nil, fmt.Errorf("voiceprint: inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			o.Close()
		}
	}()

	data, err := outputs[0].FloatData()
	if err != nil {
		return nil, fmt.Errorf("voiceprint: read output tensor: %w", err)
	}
	if len(data) < m.dim {
		return nil, fmt.Errorf("voiceprint: output has %d values, want %d", len(data), m.dim)
	}
	vec := make([]float32, m.dim)
	copy(vec, data[:m.dim])
	return vec, nil
}

// Dimension implements [Model].
func (m *ONNXModel) Dimension() int {
	return m.dim
}

// Close implements [Model].
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
	return nil
}
