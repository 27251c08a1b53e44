package errprocess

import (
	"errors"

	"conversation_sync_service/pkg/logger"
)

// Set log the error message and return it as an error
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}
