package models

import "errors"

// Failure kinds. Callers classify with errors.Is.
var (
	ErrDataInsufficient       = errors.New("data insufficient")
	ErrMarketUnavailable      = errors.New("market unavailable")
	ErrModelUnready           = errors.New("model unready")
	ErrImbalancedTrainingData = errors.New("imbalanced training data")
	ErrInvalidRiskLevels      = errors.New("invalid risk levels")
	ErrTransportFailure       = errors.New("transport failure")
	ErrSchemaMismatch         = errors.New("feature schema mismatch")
	ErrInvalidCredentials     = errors.New("invalid credentials")
)

// ErrorKind returns a short label for metrics and logs
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrDataInsufficient):
		return "data_insufficient"
	case errors.Is(err, ErrMarketUnavailable):
		return "market_unavailable"
	case errors.Is(err, ErrModelUnready):
		return "model_unready"
	case errors.Is(err, ErrImbalancedTrainingData):
		return "imbalanced_training_data"
	case errors.Is(err, ErrInvalidRiskLevels):
		return "invalid_risk_levels"
	case errors.Is(err, ErrTransportFailure):
		return "transport_failure"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "internal"
	}
}
