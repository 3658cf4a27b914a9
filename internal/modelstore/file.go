package modelstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Alias1177/Forecaster/internal/ml"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FileStore keeps one JSON document per timeframe under a directory
type FileStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFileStore creates dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: log.With().Str("component", "model_store").Str("backend", "file").Logger(),
	}, nil
}

func (s *FileStore) path(timeframe string) string {
	return filepath.Join(s.dir, fmt.Sprintf("model_%s.json", timeframe))
}

// Load reads the state for timeframe, nil when none was saved
func (s *FileStore) Load(_ context.Context, timeframe string) (*ml.State, error) {
	data, err := os.ReadFile(s.path(timeframe))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read model %s: %w", timeframe, err)
	}

	state, err := ml.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", timeframe, err)
	}
	s.logger.Info().Str("timeframe", timeframe).Time("trained_at", state.TrainedAt).Msg("Loaded classifier state")
	return state, nil
}

// Save writes through a temp file and rename so readers never see a partial document
func (s *FileStore) Save(_ context.Context, timeframe string, state *ml.State) error {
	data, err := ml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode model %s: %w", timeframe, err)
	}

	tmp, err := os.CreateTemp(s.dir, "model_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write model %s: %w", timeframe, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model %s: %w", timeframe, err)
	}
	if err := os.Rename(tmp.Name(), s.path(timeframe)); err != nil {
		return fmt.Errorf("rename model %s: %w", timeframe, err)
	}

	s.logger.Info().Str("timeframe", timeframe).Int("samples", state.Samples).Msg("Saved classifier state")
	return nil
}
