package errors

// Error codes are stable identifiers carried across the tool boundary.
// The numeric band encodes the category:
//
//	1xx config / bootstrap
//	2xx storage backends (vector, graph)
//	3xx search pipeline
//	4xx ingestion
//	5xx validation
//	9xx internal
const (
	ErrCodeConfigMissing = "ERR_101_CONFIG_MISSING"
	ErrCodeConfigInvalid = "ERR_102_CONFIG_INVALID"

	ErrCodeBackendUnavailable = "ERR_201_BACKEND_UNAVAILABLE"
	ErrCodeDimensionMismatch  = "ERR_202_DIMENSION_MISMATCH"
	ErrCodeNotFound           = "ERR_203_NOT_FOUND"
	ErrCodeConflict           = "ERR_204_VERSION_CONFLICT"

	ErrCodeSearchMode = "ERR_301_SEARCH_MODE_FAILED"
	ErrCodeEmbedding  = "ERR_302_EMBEDDING_FAILED"
	ErrCodeIndexing   = "ERR_303_INDEXING_FAILED"

	ErrCodeScanFailed   = "ERR_401_SCAN_FAILED"
	ErrCodeIngestLocked = "ERR_402_INGEST_LOCKED"

	ErrCodeInvalidInput = "ERR_501_INVALID_INPUT"

	ErrCodeTimeout   = "ERR_901_TIMEOUT"
	ErrCodeCancelled = "ERR_902_CANCELLED"
	ErrCodeInternal  = "ERR_999_INTERNAL"
)

// Category classifies errors for logging and metrics.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryStorage    Category = "storage"
	CategorySearch     Category = "search"
	CategoryIngestion  Category = "ingestion"
	CategoryValidation Category = "validation"
	CategoryInternal   Category = "internal"
)

// Severity indicates how the caller should react.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategorySearch
	case '4':
		return CategoryIngestion
	case '5':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigMissing, ErrCodeConfigInvalid, ErrCodeInternal:
		return SeverityFatal
	case ErrCodeNotFound, ErrCodeIngestLocked:
		return SeverityWarning
	default:
		return SeverityError
	}
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendUnavailable, ErrCodeEmbedding, ErrCodeIndexing, ErrCodeTimeout:
		return true
	default:
		return false
	}
}
