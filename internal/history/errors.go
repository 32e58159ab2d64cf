package history

import "codeberg.org/mutker/hwcontrol/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("history_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("history_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("history_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("history_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("history_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed
	ErrQueryFailed  = errors.ErrorCode("history_query_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidDBPath:          "History database path is empty",
		ErrSchemaInitFailed:       "Failed to create history schema",
		ErrSchemaValidationFailed: "Failed to read history schema version",
		ErrSchemaMigrationFailed:  "Failed to migrate history schema",
		ErrTransactionFailed:      "History transaction failed",
		ErrQueryFailed:            "History query failed",
	})
}
