package commands

import (
	"context"
	"log/slog"

	"github.com/medvox/medvox/cmd/medvox/internal/config"
	"github.com/medvox/medvox/pkg/kv"
	"github.com/medvox/medvox/pkg/onnx"
	"github.com/medvox/medvox/pkg/profile"
	"github.com/medvox/medvox/pkg/vecstore"
	"github.com/medvox/medvox/pkg/voiceprint"
)

// openProfiles opens the voice profile database. The returned closer
// releases the underlying stores.
func openProfiles(ctx context.Context, cfg *config.Config) (*profile.Store, func(), error) {
	db, err := kv.NewBadger(kv.BadgerOptions{Dir: cfg.Profiles()})
	if err != nil {
		return nil, nil, err
	}
	index := vecstore.NewMemory()

	store, err := profile.NewStore(ctx, db, index, slog.Default())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	closer := func() {
		index.Close()
		if err := db.Close(); err != nil {
			slog.Warn("closing profile database", "error", err)
		}
	}
	return store, closer, nil
}

// openEmbeddingModel loads the speaker embedding model. The returned
// closer releases the ONNX session and environment.
func openEmbeddingModel(cfg *config.Config) (voiceprint.Model, func(), error) {
	if err := onnx.RegisterModelFile(onnx.ModelSpeakerERes2Net, cfg.Models.Speaker); err != nil {
		return nil, nil, err
	}
	env, err := onnx.NewEnv("medvox")
	if err != nil {
		return nil, nil, err
	}
	model, err := voiceprint.NewONNXModel(env, onnx.ModelSpeakerERes2Net)
	if err != nil {
		env.Close()
		return nil, nil, err
	}
	closer := func() {
		model.Close()
		env.Close()
	}
	return model, closer, nil
}
