package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig        ErrorCode = "invalid_configuration"
	ErrReadConfig           ErrorCode = "read_config_failed"
	ErrWriteConfig          ErrorCode = "write_config_failed"
	ErrDefaultConfigWritten ErrorCode = "default_config_written"
	ErrInvalidCooldown      ErrorCode = "invalid_cooldown"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Lifecycle errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Collection errors
	ErrSourceUnavailable ErrorCode = "source_unavailable"
	ErrDeviceReadFailed  ErrorCode = "device_read_failed"

	// Delivery errors
	ErrSendConnection ErrorCode = "send_connection_failed"
	ErrSendRejected   ErrorCode = "send_rejected"

	// Endpoint errors
	ErrServeFailed ErrorCode = "serve_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:             "Internal error occurred",
	ErrInvalidArgument:      "Invalid argument provided",
	ErrAlreadyRunning:       "Another instance is already running",
	ErrInvalidConfig:        "Invalid configuration",
	ErrReadConfig:           "Failed to read configuration",
	ErrWriteConfig:          "Failed to write configuration",
	ErrDefaultConfigWritten: "Wrote default configuration, edit it and restart",
	ErrInvalidCooldown:      "Invalid cooldown value",
	ErrInvalidLogLevel:      "Invalid log level",
	ErrInitFailed:           "Initialization failed",
	ErrShutdownFailed:       "Shutdown failed",
	ErrSourceUnavailable:    "Data source unavailable",
	ErrDeviceReadFailed:     "Failed to read device",
	ErrSendConnection:       "Failed to reach data endpoint",
	ErrSendRejected:         "Data endpoint rejected the payload",
	ErrServeFailed:          "Failed to serve data endpoint",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
