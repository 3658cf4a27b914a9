package modelstore

import (
	"errors"

	"github.com/Alias1177/Forecaster/internal/config"
	"github.com/Alias1177/Forecaster/internal/database"
	"github.com/Alias1177/Forecaster/internal/ml"
)

// Open returns the store selected by training.store. The postgres store
// needs a connected db.
func Open(cfg config.TrainingConfig, db *database.DB) (ml.Store, error) {
	if cfg.Store == "postgres" {
		if db == nil {
			return nil, errors.New("postgres model store: database is not connected")
		}
		return db.ModelStore(), nil
	}
	return NewFileStore(cfg.ModelDir)
}
