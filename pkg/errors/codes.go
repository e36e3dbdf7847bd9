package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code        ErrorCode
	Retryable   bool
	Description string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrCodeTimeout: {
		Code:        ErrCodeTimeout,
		Retryable:   true,
		Description: "Operation exceeded time limit",
	},
	ErrCodeRateLimit: {
		Code:        ErrCodeRateLimit,
		Retryable:   true,
		Description: "Upstream API rate limit exceeded",
	},
	ErrCodeUnavailable: {
		Code:        ErrCodeUnavailable,
		Retryable:   false,
		Description: "Upstream service failed with a non-rate-limit error",
	},
	ErrCodeCancelled: {
		Code:        ErrCodeCancelled,
		Retryable:   false,
		Description: "Operation cancelled by user or system",
	},
	ErrCodeInvalidInput: {
		Code:        ErrCodeInvalidInput,
		Retryable:   false,
		Description: "Input rejected by validation (bad sequence number, unknown meeting)",
	},
	ErrCodeDuplicate: {
		Code:        ErrCodeDuplicate,
		Retryable:   false,
		Description: "Request repeats previously accepted work; resolved idempotently",
	},
	ErrCodeNotReady: {
		Code:        ErrCodeNotReady,
		Retryable:   false,
		Description: "Summary has not completed yet",
	},
	ErrCodePayloadTooLarge: {
		Code:        ErrCodePayloadTooLarge,
		Retryable:   false,
		Description: "Chunk payload exceeds the configured size limit",
	},
	ErrCodeEmptyTranscript: {
		Code:        ErrCodeEmptyTranscript,
		Retryable:   false,
		Description: "Assembled transcript is empty; nothing to summarize",
	},
	ErrCodeStorage: {
		Code:        ErrCodeStorage,
		Retryable:   true,
		Description: "Persistent store operation failed",
	},
	ErrCodeProcessingError: {
		Code:        ErrCodeProcessingError,
		Retryable:   false,
		Description: "Unclassified processing error",
	},
}

// IsRetryable returns true if the given error code represents a transient,
// retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
