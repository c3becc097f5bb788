package onnx

import (
	"fmt"
	"os"
	"sync"
)

// ModelID identifies a known ONNX model.
type ModelID string

const (
	// ModelSpeakerERes2Net is the 3D-Speaker ERes2Net base model.
	// Input "x": [1, T, 80] float32 (mel filterbank features)
	// Output "embedding": [1, 512] float32 (speaker embedding)
	ModelSpeakerERes2Net ModelID = "speaker-eres2net"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[ModelID][]byte)
)

// RegisterModel registers raw ONNX model data under the given ID.
func RegisterModel(id ModelID, data []byte) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = data
}

// RegisterModelFile reads an .onnx file from disk and registers it.
// Model files are distributed separately from the binary and their location
// comes from configuration.
func RegisterModelFile(id ModelID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("onnx: read model %q: %w", id, err)
	}
	RegisterModel(id, data)
	return nil
}

// LoadModel loads a registered model into a Session.
func LoadModel(env *Env, id ModelID) (*Session, error) {
	registryMu.RLock()
	data, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("onnx: model %q not registered", id)
	}
	return env.NewSession(data)
}

// ListModels returns the IDs of all registered models.
func ListModels() []ModelID {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]ModelID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	return ids
}
